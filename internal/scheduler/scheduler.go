// Package scheduler owns the lifecycle of the periodic background loops.
// Each task runs on its own goroutine and its own ticker, so a stall in
// one loop never holds up another. Shutdown is cooperative: cancellation
// is observed at the loop boundary, never mid-batch, so an in-flight
// commit always completes or fully rolls back.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("module", "scheduler")

// task is one periodic loop.
type task struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

// Supervisor drives a fixed set of periodic tasks.
type Supervisor struct {
	tasks []task
}

// New returns an empty supervisor.
func New() *Supervisor {
	return &Supervisor{}
}

// Add registers a periodic task. Must be called before Run.
func (s *Supervisor) Add(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.tasks = append(s.tasks, task{name: name, interval: interval, run: run})
}

// Run blocks until ctx is canceled, ticking every registered task at its
// own cadence. A task error is logged and retried on the next tick;
// periodic failures never stop the supervisor.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, t := range s.tasks {
		t := t
		g.Go(func() error {
			log.WithFields(logrus.Fields{
				"task":     t.name,
				"interval": t.interval,
			}).Info("task started")

			ticker := time.NewTicker(t.interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					log.WithField("task", t.name).Info("task stopped")
					return nil
				case <-ticker.C:
					if err := t.run(ctx); err != nil {
						log.WithError(err).WithField("task", t.name).Warn("task tick failed, will retry next tick")
					}
				}
			}
		})
	}

	return g.Wait()
}
