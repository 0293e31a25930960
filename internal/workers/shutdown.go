package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// CloseFunc releases one resource during shutdown
type CloseFunc func(ctx context.Context) error

// ShutdownQueue runs close functions once, in reverse order of registration
type ShutdownQueue struct {
	mu     sync.Mutex
	names  []string
	tasks  []CloseFunc
	closed bool
}

// Add registers fn. Nothing is added once shutdown has started.
func (q *ShutdownQueue) Add(name string, fn CloseFunc) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.names = append(q.names, name)
	q.tasks = append(q.tasks, fn)
}

// Shutdown drains the queue. It stops early when ctx is done and returns
// every error met on the way.
func (q *ShutdownQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	names, tasks := q.names, q.tasks
	q.names, q.tasks = nil, nil
	q.mu.Unlock()

	var errs []error
	for i := len(tasks) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("shutdown canceled before %s: %w", names[i], ctx.Err()))
			return errors.Join(errs...)
		default:
		}
		if err := runClose(ctx, tasks[i]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

func runClose(ctx context.Context, fn CloseFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in shutdown task: %v", r)
		}
	}()
	return fn(ctx)
}
