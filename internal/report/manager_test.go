package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodwatch-fl/floodwatch/internal/confidence"
	"github.com/floodwatch-fl/floodwatch/internal/geofence"
)

type mockStore struct {
	inserted    []*Report
	insertErr   error
	nearby      int
	nearbyErr   error
	listReports []Report
	listErr     error
	deleted     bool
	deleteErr   error
	cleared     int
}

func (m *mockStore) Insert(_ context.Context, r *Report) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, r)
	return nil
}

func (m *mockStore) NearbyCount(context.Context, float64, float64, float64, time.Time) (int, error) {
	return m.nearby, m.nearbyErr
}

func (m *mockStore) ListActive(context.Context, time.Time, Filter) ([]Report, error) {
	return m.listReports, m.listErr
}

func (m *mockStore) Delete(context.Context, string, string) (bool, error) {
	return m.deleted, m.deleteErr
}

func (m *mockStore) AdminList(context.Context) ([]Report, error) {
	return m.listReports, m.listErr
}

func (m *mockStore) AdminDelete(context.Context, string) (bool, error) {
	return m.deleted, m.deleteErr
}

func (m *mockStore) AdminClearAll(context.Context) (int, error) {
	return m.cleared, nil
}

func (m *mockStore) Stats(context.Context, time.Time) (*Stats, error) {
	return &Stats{Total: len(m.listReports)}, nil
}

func (m *mockStore) ArchiveExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (m *mockStore) LastRotation(context.Context) (time.Time, error) {
	return time.Time{}, nil
}

func (m *mockStore) Close() error { return nil }

type mockQuota struct {
	limited     bool
	remaining   int
	resetAt     time.Time
	remainErr   error
	incremented int
	incErr      error
}

func (m *mockQuota) IsLimited(context.Context, string) bool { return m.limited }

func (m *mockQuota) Remaining(context.Context, string) (int, time.Time, error) {
	return m.remaining, m.resetAt, m.remainErr
}

func (m *mockQuota) Increment(context.Context, string) error {
	m.incremented++
	return m.incErr
}

func (m *mockQuota) Quota() int { return 3 }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func easternLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func testManager(t *testing.T, store *mockStore, quota *mockQuota, now time.Time) *Manager {
	t.Helper()
	validator, err := geofence.NewValidator([]geofence.Region{
		{Name: "Volusia", Bounds: geofence.Bounds{North: 29.3, South: 28.7, East: -80.7, West: -81.5}},
		{Name: "Palm Beach", Bounds: geofence.Bounds{North: 27.0, South: 26.1, East: -80.0, West: -80.9}},
	})
	require.NoError(t, err)

	sched := confidence.Schedule{
		Weekday:  time.Wednesday,
		Hour:     5,
		Location: easternLocation(t),
	}
	agg := confidence.NewAggregator(store, confidence.Config{})
	return NewManager(validator, agg, store, quota, sched, fixedClock{now: now})
}

func TestManagerCreate(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{nearby: 2}
	quota := &mockQuota{remaining: 3}
	// Monday noon Eastern.
	now := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	m := testManager(t, store, quota, now)

	r, err := m.Create(ctx, Submission{
		Latitude:  29.0,
		Longitude: -81.0,
		RoadName:  "Beach St",
		Severity:  "severe",
		Device:    "device-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, SeveritySevere, r.Severity)
	assert.Equal(t, "device-1", r.Device)
	// Two corroborating reports nearby plus the report itself.
	assert.Equal(t, 3, r.Confidence)
	assert.True(t, r.CreatedAt.Equal(now))

	// Expiry is the next scheduled rotation: Wednesday 05:00 Eastern.
	want := time.Date(2026, 8, 26, 5, 0, 0, 0, easternLocation(t))
	assert.True(t, r.ExpiresAt.Equal(want), "expires_at = %v, want %v", r.ExpiresAt, want)

	require.Len(t, store.inserted, 1)
	assert.Same(t, r, store.inserted[0])

	// Create never touches the quota; the charge is the caller's step.
	assert.Equal(t, 0, quota.incremented)
}

func TestManagerCreateRejections(t *testing.T) {
	now := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		sub      Submission
		store    *mockStore
		wantCode RejectCode
	}{
		{
			name:     "latitude out of range",
			sub:      Submission{Latitude: 91, Longitude: -81, Severity: "minor"},
			store:    &mockStore{},
			wantCode: RejectInvalidCoordinates,
		},
		{
			name:     "longitude out of range",
			sub:      Submission{Latitude: 29, Longitude: -181, Severity: "minor"},
			store:    &mockStore{},
			wantCode: RejectInvalidCoordinates,
		},
		{
			name:     "outside every region",
			sub:      Submission{Latitude: 40.7, Longitude: -74.0, Severity: "minor"},
			store:    &mockStore{},
			wantCode: RejectOutsideServiceArea,
		},
		{
			name:     "unknown severity",
			sub:      Submission{Latitude: 29, Longitude: -81, Severity: "catastrophic"},
			store:    &mockStore{},
			wantCode: RejectInvalidSeverity,
		},
		{
			name:     "nearby count fails",
			sub:      Submission{Latitude: 29, Longitude: -81, Severity: "minor"},
			store:    &mockStore{nearbyErr: assert.AnError},
			wantCode: RejectStorageFailure,
		},
		{
			name:     "insert fails",
			sub:      Submission{Latitude: 29, Longitude: -81, Severity: "minor"},
			store:    &mockStore{insertErr: assert.AnError},
			wantCode: RejectStorageFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testManager(t, tt.store, &mockQuota{}, now)
			_, err := m.Create(context.Background(), tt.sub)
			require.Error(t, err)
			rej, ok := AsRejection(err)
			require.True(t, ok, "error should be a rejection: %v", err)
			assert.Equal(t, tt.wantCode, rej.Code)
			assert.Empty(t, tt.store.inserted)
		})
	}
}

func TestManagerCreateRegionEdgeInclusive(t *testing.T) {
	store := &mockStore{}
	now := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	m := testManager(t, store, &mockQuota{}, now)

	// Exactly on the Volusia northern boundary.
	_, err := m.Create(context.Background(), Submission{
		Latitude:  29.3,
		Longitude: -81.0,
		Severity:  "minor",
		Device:    "device-1",
	})
	require.NoError(t, err)
}

func TestManagerCreateSecondRegion(t *testing.T) {
	store := &mockStore{}
	now := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	m := testManager(t, store, &mockQuota{}, now)

	// Inside Palm Beach, outside Volusia.
	_, err := m.Create(context.Background(), Submission{
		Latitude:  26.5,
		Longitude: -80.2,
		Severity:  "moderate",
		Device:    "device-1",
	})
	require.NoError(t, err)
}

func TestManagerCheckQuota(t *testing.T) {
	ctx := context.Background()
	resetAt := time.Date(2026, 8, 25, 4, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)

	m := testManager(t, &mockStore{}, &mockQuota{remaining: 1, resetAt: resetAt}, now)
	state := m.CheckQuota(ctx, "device-1")
	assert.False(t, state.Limited)
	assert.Equal(t, 3, state.Quota)
	assert.Equal(t, 1, state.Remaining)
	assert.True(t, state.ResetAt.Equal(resetAt))

	m = testManager(t, &mockStore{}, &mockQuota{limited: true, resetAt: resetAt}, now)
	state = m.CheckQuota(ctx, "device-1")
	assert.True(t, state.Limited)
	assert.Equal(t, 0, state.Remaining)
}

func TestManagerCheckQuotaDegradesToFull(t *testing.T) {
	now := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	m := testManager(t, &mockStore{}, &mockQuota{remainErr: assert.AnError}, now)

	state := m.CheckQuota(context.Background(), "device-1")
	assert.False(t, state.Limited)
	assert.Equal(t, 3, state.Remaining)
}

func TestManagerChargeQuota(t *testing.T) {
	now := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	quota := &mockQuota{remaining: 2}
	m := testManager(t, &mockStore{}, quota, now)

	state := m.ChargeQuota(context.Background(), "device-1")
	assert.Equal(t, 1, quota.incremented)
	assert.Equal(t, 2, state.Remaining)

	// Charge failures are swallowed; the state still comes back.
	quota.incErr = assert.AnError
	state = m.ChargeQuota(context.Background(), "device-1")
	assert.Equal(t, 2, quota.incremented)
	assert.False(t, state.Limited)
}

func TestManagerListActiveOwnership(t *testing.T) {
	now := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	store := &mockStore{listReports: []Report{
		{ID: "r-1", Device: "device-1", Severity: SeverityMinor},
		{ID: "r-2", Device: "device-2", Severity: SeveritySevere},
	}}
	m := testManager(t, store, &mockQuota{}, now)

	out, err := m.ListActive(context.Background(), Filter{}, "device-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Mine)
	assert.False(t, out[1].Mine)

	// Anonymous readers own nothing.
	out, err = m.ListActive(context.Background(), Filter{}, "")
	require.NoError(t, err)
	assert.False(t, out[0].Mine)
	assert.False(t, out[1].Mine)
}

func TestManagerDelete(t *testing.T) {
	now := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)

	m := testManager(t, &mockStore{deleted: true}, &mockQuota{}, now)
	ok, err := m.Delete(context.Background(), "r-1", "device-1")
	require.NoError(t, err)
	assert.True(t, ok)

	m = testManager(t, &mockStore{deleted: false}, &mockQuota{}, now)
	ok, err = m.Delete(context.Background(), "r-1", "other-device")
	require.NoError(t, err)
	assert.False(t, ok)
}
