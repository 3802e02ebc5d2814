// Package confidence scores new reports by counting corroborating reports
// nearby in space and time, and computes the weekly rotation instant that
// becomes each report's expiry.
package confidence

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// NearbyCounter is the spatial query the aggregator needs from the store:
// the number of reports within meters of the point created after since.
type NearbyCounter interface {
	NearbyCount(ctx context.Context, lat, lng, meters float64, since time.Time) (int, error)
}

// Config holds the spatial-temporal window for corroboration.
type Config struct {
	DistanceMeters float64       `yaml:"distance_meters" mapstructure:"distance_meters"`
	Window         time.Duration `yaml:"window" mapstructure:"window"`
}

// Aggregator computes confidence scores against the report store.
type Aggregator struct {
	store NearbyCounter
	cfg   Config
}

// NewAggregator creates an Aggregator. Zero config fields fall back to the
// defaults (100 m, 2 h).
func NewAggregator(store NearbyCounter, cfg Config) *Aggregator {
	if cfg.DistanceMeters <= 0 {
		cfg.DistanceMeters = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = 2 * time.Hour
	}
	return &Aggregator{store: store, cfg: cfg}
}

// Score returns 1 plus the number of reports within the configured distance
// of (lat, lng) created inside the recency window ending at now. The new
// report counts itself, so the minimum score is 1.
//
// The count is read before the new report is inserted; two near-simultaneous
// submissions in the same vicinity may both score from the pre-insert
// snapshot. Confidence is a best-effort heuristic, not a strict count.
func (a *Aggregator) Score(ctx context.Context, lat, lng float64, now time.Time) (int, error) {
	since := now.Add(-a.cfg.Window)
	nearby, err := a.store.NearbyCount(ctx, lat, lng, a.cfg.DistanceMeters, since)
	if err != nil {
		return 0, eris.Wrap(err, "confidence: nearby count")
	}
	return nearby + 1, nil
}

// Schedule fixes the weekly rotation instant: a weekday and hour in a
// reference time zone.
type Schedule struct {
	Weekday  time.Weekday
	Hour     int
	Location *time.Location
}

// NextRotation returns the next occurrence of the schedule strictly after
// now. If now is the scheduled weekday at or past the scheduled hour, the
// result is seven days later. Deterministic for a fixed now.
func NextRotation(now time.Time, s Schedule) time.Time {
	local := now.In(s.Location)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), s.Hour, 0, 0, 0, s.Location)
	days := (int(s.Weekday) - int(local.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, days)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
