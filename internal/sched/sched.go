// Package sched runs the periodic jobs: an explicit singleton owned by
// process startup, started exactly once under programmatic control.
package sched

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one scheduled unit of work. Errors are logged, never fatal: the
// next tick is the retry.
type Job func(ctx context.Context) error

type entry struct {
	name     string
	interval time.Duration
	at       *clockTime // nil for interval jobs
	fn       Job
}

type clockTime struct{ hour, minute int }

// Scheduler owns the long-lived job goroutines.
type Scheduler struct {
	log     *zap.Logger
	entries []entry
	once    sync.Once
	wg      sync.WaitGroup
}

// New constructs an empty scheduler.
func New(log *zap.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// Every registers a job on a fixed interval. Must be called before Start.
func (s *Scheduler) Every(name string, interval time.Duration, fn Job) {
	s.entries = append(s.entries, entry{name: name, interval: interval, fn: fn})
}

// Daily registers a job at a fixed local time. Must be called before Start.
func (s *Scheduler) Daily(name string, hour, minute int, fn Job) {
	s.entries = append(s.entries, entry{name: name, at: &clockTime{hour, minute}, fn: fn})
}

// Start launches all registered jobs. Subsequent calls are no-ops, so a
// second initialization path cannot double the schedule.
func (s *Scheduler) Start(ctx context.Context) {
	s.once.Do(func() {
		for _, e := range s.entries {
			s.wg.Add(1)
			go s.run(ctx, e)
		}
	})
}

// Wait blocks until all job goroutines have observed cancellation.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) run(ctx context.Context, e entry) {
	defer s.wg.Done()
	for {
		var wait time.Duration
		if e.at != nil {
			wait = untilNext(time.Now(), e.at.hour, e.at.minute)
		} else {
			wait = e.interval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		s.invoke(ctx, e)
	}
}

func (s *Scheduler) invoke(ctx context.Context, e entry) {
	start := time.Now()
	if err := e.fn(ctx); err != nil {
		s.log.Error("job failed",
			zap.String("job", e.name),
			zap.Duration("dur", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	s.log.Info("job done",
		zap.String("job", e.name),
		zap.Duration("dur", time.Since(start)),
	)
}

// untilNext computes the wait until the next local hh:mm.
func untilNext(now time.Time, hour, minute int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
