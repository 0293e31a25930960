package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrOwnerStopped is returned for work offered after Stop
var ErrOwnerStopped = errors.New("workers: owner stopped")

// Owner runs functions one at a time, in submission order, on a single
// goroutine. State only the owner touches needs no lock.
type Owner struct {
	queue chan func()
	done  chan struct{}
	log   logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
}

func NewOwner(queue int, log logrus.FieldLogger) *Owner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	o := &Owner{
		queue: make(chan func(), queue),
		done:  make(chan struct{}),
		log:   log.WithField("component", "owner"),
	}
	go o.run()
	return o
}

func (o *Owner) run() {
	defer close(o.done)
	for fn := range o.queue {
		o.call(fn)
	}
}

func (o *Owner) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("panic", fmt.Sprint(r)).Error("Owner task panicked")
		}
	}()
	fn()
}

// Dispatch queues fn and reports whether it was accepted
func (o *Owner) Dispatch(fn func()) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return false
	}
	o.queue <- fn
	return true
}

// Do runs fn on the owner goroutine and waits for it. Calling Do from the
// owner goroutine deadlocks.
func (o *Owner) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !o.Dispatch(func() {
		defer close(finished)
		fn()
	}) {
		return ErrOwnerStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop runs what is already queued and then stops the goroutine
func (o *Owner) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop owner: %w", ctx.Err())
	}
}
