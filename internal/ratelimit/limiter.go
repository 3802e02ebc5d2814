// Package ratelimit enforces the per-device daily submission quota against
// a shared counter store. Counter keys are device + local calendar date, so
// the quota window is wall-clock days, not rolling 24 hours, and counters
// self-expire at local midnight.
//
// The limiter fails open: if the counter store is unreachable the check
// degrades to "not limited" with a logged warning. Availability of
// emergency reporting wins over strict quota enforcement.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/floodwatch-fl/floodwatch/internal/observability"
)

// DefaultQuota is the accepted submissions per device per calendar day.
const DefaultQuota = 3

// CounterStore is the shared counter the limiter increments. Increment
// must be atomic against concurrent increments of the same key, and must
// set the key's expiry only on the first write. Count treats expired keys
// as absent.
type CounterStore interface {
	Increment(ctx context.Context, key string, expiresAt time.Time) (int, error)
	Count(ctx context.Context, key string) (int, error)
}

// Config holds the limiter's tunables.
type Config struct {
	// Quota is the daily maximum. Zero means DefaultQuota.
	Quota int `yaml:"reports_per_day" mapstructure:"reports_per_day"`
}

// Limiter tracks per-device daily submission counts.
type Limiter struct {
	store   CounterStore
	quota   int
	loc     *time.Location
	clock   clockwork.Clock
	metrics *observability.Metrics
	log     *zap.Logger
}

// NewLimiter creates a Limiter counting against calendar days in loc.
// metrics may be nil.
func NewLimiter(store CounterStore, cfg Config, loc *time.Location, clock clockwork.Clock, metrics *observability.Metrics) *Limiter {
	quota := cfg.Quota
	if quota <= 0 {
		quota = DefaultQuota
	}
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{
		store:   store,
		quota:   quota,
		loc:     loc,
		clock:   clock,
		metrics: metrics,
		log:     zap.L().With(zap.String("component", "ratelimit")),
	}
}

// Quota returns the configured daily maximum.
func (l *Limiter) Quota() int {
	return l.quota
}

// key derives the counter key for a device on the current local date.
func (l *Limiter) key(device string, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s", device, now.In(l.loc).Format("2006-01-02"))
}

// nextMidnight returns the start of the next local calendar day, when the
// device's window resets.
func (l *Limiter) nextMidnight(now time.Time) time.Time {
	local := now.In(l.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, l.loc).AddDate(0, 0, 1)
}

// Remaining returns the submissions the device has left today and when the
// window resets. The reset time is valid even when the store errors.
func (l *Limiter) Remaining(ctx context.Context, device string) (int, time.Time, error) {
	now := l.clock.Now()
	resetAt := l.nextMidnight(now)

	count, err := l.store.Count(ctx, l.key(device, now))
	if err != nil {
		return 0, resetAt, err
	}
	remaining := l.quota - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, nil
}

// IsLimited reports whether the device has exhausted today's quota. A
// counter-store failure degrades to false (fail open) and is logged, never
// fatal.
func (l *Limiter) IsLimited(ctx context.Context, device string) bool {
	remaining, _, err := l.Remaining(ctx, device)
	if err != nil {
		l.degraded("check", device, err)
		return false
	}
	return remaining <= 0
}

// Increment charges one submission against the device's counter for today.
// On the first increment of a day the counter's expiry is set to local
// midnight so it self-clears without a cleanup job.
func (l *Limiter) Increment(ctx context.Context, device string) error {
	now := l.clock.Now()
	_, err := l.store.Increment(ctx, l.key(device, now), l.nextMidnight(now))
	return err
}

func (l *Limiter) degraded(op, device string, err error) {
	l.log.Warn("counter store unreachable, failing open",
		zap.String("op", op),
		zap.String("device", device),
		zap.Error(err),
	)
	if l.metrics != nil {
		l.metrics.RateLimitDegraded.Inc()
	}
}
