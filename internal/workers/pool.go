// Package workers holds the goroutines the core runs on: a fixed pool for
// blocking I/O, a single owner goroutine for ordered side effects, a scheduler
// for periodic jobs and the shutdown queue that stops them all.
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrPoolClosed = errors.New("workers: pool closed")
	ErrQueueFull  = errors.New("workers: queue full")
)

// Task is a unit of work run by the pool
type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of goroutines
type Pool struct {
	tasks  chan Task
	wg     sync.WaitGroup
	log    logrus.FieldLogger
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func NewPool(size, queue int, log logrus.FieldLogger) *Pool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan Task, queue),
		log:    log.WithField("component", "workers"),
		ctx:    ctx,
		cancel: cancel,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.execute(task)
	}
}

func (p *Pool) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", fmt.Sprint(r)).Error("Worker task panicked")
		}
	}()
	task(p.ctx)
}

// Submit queues task, waiting for room until ctx is done
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues task only if there is room right now
func (p *Pool) TrySubmit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for the queued ones. When ctx
// expires first, running tasks see their context cancelled and the
// remaining queue is abandoned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		p.log.WithField("pending", len(p.tasks)).Warn("Worker pool drain timed out")
		return fmt.Errorf("drain worker pool: %w", ctx.Err())
	}
}
