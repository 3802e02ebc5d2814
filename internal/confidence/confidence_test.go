package confidence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCounter implements NearbyCounter for testing.
type mockCounter struct {
	count     int
	err       error
	gotLat    float64
	gotLng    float64
	gotMeters float64
	gotSince  time.Time
}

func (m *mockCounter) NearbyCount(_ context.Context, lat, lng, meters float64, since time.Time) (int, error) {
	m.gotLat, m.gotLng, m.gotMeters, m.gotSince = lat, lng, meters, since
	return m.count, m.err
}

func TestScoreIsolatedReport(t *testing.T) {
	mc := &mockCounter{count: 0}
	agg := NewAggregator(mc, Config{})

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	score, err := agg.Score(context.Background(), 29.0, -81.1, now)
	require.NoError(t, err)
	assert.Equal(t, 1, score, "isolated report always scores 1")

	// Defaults applied.
	assert.Equal(t, 100.0, mc.gotMeters)
	assert.Equal(t, now.Add(-2*time.Hour), mc.gotSince)
	assert.Equal(t, 29.0, mc.gotLat)
	assert.Equal(t, -81.1, mc.gotLng)
}

func TestScoreCorroborated(t *testing.T) {
	agg := NewAggregator(&mockCounter{count: 2}, Config{
		DistanceMeters: 50,
		Window:         10 * time.Minute,
	})

	score, err := agg.Score(context.Background(), 29.0005, -81.1005, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, score)
}

func TestScoreStoreError(t *testing.T) {
	agg := NewAggregator(&mockCounter{err: errors.New("connection refused")}, Config{})

	_, err := agg.Score(context.Background(), 29.0, -81.1, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nearby count")
}

func easternSchedule(t *testing.T) Schedule {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return Schedule{Weekday: time.Wednesday, Hour: 5, Location: loc}
}

func TestNextRotationBeforeCutoff(t *testing.T) {
	s := easternSchedule(t)

	// Wednesday 2026-08-26 04:59 Eastern.
	now := time.Date(2026, 8, 26, 4, 59, 0, 0, s.Location)
	next := NextRotation(now, s)
	assert.Equal(t, time.Date(2026, 8, 26, 5, 0, 0, 0, s.Location), next, "same day at 05:00")
}

func TestNextRotationAfterCutoff(t *testing.T) {
	s := easternSchedule(t)

	now := time.Date(2026, 8, 26, 5, 1, 0, 0, s.Location)
	next := NextRotation(now, s)
	assert.Equal(t, time.Date(2026, 9, 2, 5, 0, 0, 0, s.Location), next, "seven days later")
}

func TestNextRotationExactlyAtCutoff(t *testing.T) {
	s := easternSchedule(t)

	now := time.Date(2026, 8, 26, 5, 0, 0, 0, s.Location)
	next := NextRotation(now, s)
	assert.Equal(t, time.Date(2026, 9, 2, 5, 0, 0, 0, s.Location), next, "05:00 sharp rolls to next week")
}

func TestNextRotationMidWeek(t *testing.T) {
	s := easternSchedule(t)

	// Monday 2026-08-24.
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, s.Location)
	next := NextRotation(now, s)
	assert.Equal(t, time.Date(2026, 8, 26, 5, 0, 0, 0, s.Location), next)
	assert.Equal(t, time.Wednesday, next.Weekday())
}

func TestNextRotationConvertsZones(t *testing.T) {
	s := easternSchedule(t)

	// Wednesday 08:30 UTC = Wednesday 04:30 Eastern (EDT), still before cutoff.
	now := time.Date(2026, 8, 26, 8, 30, 0, 0, time.UTC)
	next := NextRotation(now, s)
	assert.Equal(t, time.Date(2026, 8, 26, 5, 0, 0, 0, s.Location), next)
	assert.True(t, next.After(now))
}

func TestNextRotationDeterministic(t *testing.T) {
	s := easternSchedule(t)
	now := time.Date(2026, 8, 25, 17, 42, 13, 0, s.Location)
	assert.Equal(t, NextRotation(now, s), NextRotation(now, s))
}

func TestNextRotationAlwaysFuture(t *testing.T) {
	s := easternSchedule(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 14; i++ {
		next := NextRotation(now, s)
		assert.True(t, next.After(now), "at %v", now)
		now = now.Add(17 * time.Hour)
	}
}
