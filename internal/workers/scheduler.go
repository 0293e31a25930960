package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler runs jobs on fixed intervals until stopped
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    logrus.FieldLogger
}

func NewScheduler(log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel, log: log.WithField("component", "scheduler")}
}

// Every runs job each time interval elapses. The interval is read again
// after every run so a configuration change takes effect on the next tick.
func (s *Scheduler) Every(name string, interval func() time.Duration, job Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(interval())
		defer timer.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-timer.C:
				s.run(name, job)
				timer.Reset(interval())
			}
		}
	}()
}

// run does not hand the job the scheduler context, so Stop never interrupts
// a job part way through
func (s *Scheduler) run(name string, job Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{"job": name, "panic": fmt.Sprint(r)}).Error("Scheduled job panicked")
		}
	}()
	job(context.WithoutCancel(s.ctx))
}

// Stop cancels future runs and waits for running jobs to return
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}
