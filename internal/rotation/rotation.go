// Package rotation runs the weekly archive rotation: expired reports are
// moved from the active table into the archive in one transaction, and the
// run is recorded for scheduling across restarts.
package rotation

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/floodwatch-fl/floodwatch/internal/confidence"
	"github.com/floodwatch-fl/floodwatch/internal/observability"
)

// ArchiveStore is the slice of the report store the rotation job needs.
type ArchiveStore interface {
	ArchiveExpired(ctx context.Context, now time.Time) (int, error)
	LastRotation(ctx context.Context) (time.Time, error)
}

// CounterPurger reaps expired rate-limit counters. Optional housekeeping
// piggybacked on the weekly run.
type CounterPurger interface {
	Purge(ctx context.Context) (int, error)
}

// ErrRotationInProgress is returned when a run is triggered while another
// is still executing.
var ErrRotationInProgress = eris.New("rotation: run already in progress")

// Rotator executes a single rotation as an idempotent unit of work.
// Running twice in immediate succession is safe: the second run finds no
// eligible reports.
type Rotator struct {
	store   ArchiveStore
	purger  CounterPurger
	clock   clockwork.Clock
	metrics *observability.Metrics
	running atomic.Bool
	log     *zap.Logger
}

// NewRotator creates a Rotator. purger and metrics may be nil.
func NewRotator(store ArchiveStore, purger CounterPurger, clock clockwork.Clock, metrics *observability.Metrics) *Rotator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Rotator{
		store:   store,
		purger:  purger,
		clock:   clock,
		metrics: metrics,
		log:     zap.L().With(zap.String("component", "rotation")),
	}
}

// Run archives all expired reports. It refuses to overlap itself: a second
// trigger while a run is executing returns ErrRotationInProgress.
func (r *Rotator) Run(ctx context.Context) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, ErrRotationInProgress
	}
	defer r.running.Store(false)

	now := r.clock.Now()
	r.log.Info("starting archive rotation", zap.Time("now", now))

	archived, err := r.store.ArchiveExpired(ctx, now)
	if err != nil {
		// Operational alert; no partial state was committed. The next
		// scheduled trigger is the retry, and expired reports stay
		// invisible to readers regardless.
		r.log.Error("archive rotation failed", zap.Error(err))
		if r.metrics != nil {
			r.metrics.RotationRuns.WithLabelValues("error").Inc()
		}
		return 0, eris.Wrap(err, "rotation: archive expired")
	}

	if r.metrics != nil {
		r.metrics.RotationRuns.WithLabelValues("ok").Inc()
		r.metrics.ReportsArchived.Add(float64(archived))
	}
	r.log.Info("archive rotation completed", zap.Int("archived", archived))

	if r.purger != nil {
		purged, err := r.purger.Purge(ctx)
		if err != nil {
			r.log.Warn("counter purge failed", zap.Error(err))
		} else if purged > 0 {
			r.log.Info("purged expired rate-limit counters", zap.Int("purged", purged))
		}
	}

	return archived, nil
}

// Scheduler fires the rotator at the configured weekly instant. The next
// fire time is computed from the wall clock and the persisted last run, so
// a process restart neither double-fires nor misses a week: if a scheduled
// instant passed while the process was down, the scheduler fires once
// immediately on start.
type Scheduler struct {
	rotator *Rotator
	store   ArchiveStore
	sched   confidence.Schedule
	clock   clockwork.Clock
	log     *zap.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(rotator *Rotator, store ArchiveStore, sched confidence.Schedule, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		rotator: rotator,
		store:   store,
		sched:   sched,
		clock:   clock,
		log:     zap.L().With(zap.String("component", "rotation.scheduler")),
	}
}

// missedRun reports whether a scheduled instant passed since the last
// recorded rotation. A store error or a fresh install (no rotation ever
// recorded) waits for the next scheduled instant instead of firing.
func (s *Scheduler) missedRun(ctx context.Context, now time.Time) bool {
	last, err := s.store.LastRotation(ctx)
	if err != nil {
		s.log.Warn("could not read last rotation, waiting for next scheduled instant", zap.Error(err))
		return false
	}
	if last.IsZero() {
		return false
	}
	return !confidence.NextRotation(last, s.sched).After(now)
}

// Run blocks, firing rotations until ctx is canceled. A failed run is
// logged by the rotator and retried at the next weekly instant, never
// mid-cycle.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("rotation scheduler started",
		zap.String("weekday", s.sched.Weekday.String()),
		zap.Int("hour", s.sched.Hour),
		zap.String("timezone", s.sched.Location.String()),
	)

	if s.missedRun(ctx, s.clock.Now()) {
		s.log.Info("missed rotation detected, running catch-up")
		s.fire(ctx)
	}

	for {
		now := s.clock.Now()
		next := confidence.NextRotation(now, s.sched)
		s.log.Info("next rotation scheduled", zap.Time("at", next))

		timer := s.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("rotation scheduler stopped")
			return nil
		case <-timer.Chan():
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	if _, err := s.rotator.Run(ctx); err != nil && !errors.Is(err, ErrRotationInProgress) {
		s.log.Error("scheduled rotation failed, next attempt in one week", zap.Error(err))
	}
}
