package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/floodwatch-fl/floodwatch/internal/confidence"
	"github.com/floodwatch-fl/floodwatch/internal/geofence"
)

// QuotaChecker is the per-device submission quota the manager consults.
// Implementations fail open: an unreachable counter store must never block
// a submission.
type QuotaChecker interface {
	// IsLimited reports whether the device has exhausted today's quota.
	IsLimited(ctx context.Context, device string) bool
	// Remaining returns the submissions left today and when the window
	// resets. The reset time is valid even when err is non-nil.
	Remaining(ctx context.Context, device string) (int, time.Time, error)
	// Increment charges one submission against the device's counter.
	Increment(ctx context.Context, device string) error
	// Quota returns the configured daily maximum.
	Quota() int
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Manager orchestrates the report lifecycle: geofence validation,
// confidence scoring, persistence, reads, and deletes. The quota charge is
// deliberately a separate step (ChargeQuota) performed by the caller after
// a successful Create: a crash between the two leaves the report persisted
// with the quota uncharged, favoring report durability over perfect quota
// accounting.
type Manager struct {
	validator *geofence.Validator
	agg       *confidence.Aggregator
	store     Store
	quota     QuotaChecker
	sched     confidence.Schedule
	clock     Clock
	log       *zap.Logger
}

// NewManager wires the lifecycle manager from its collaborators.
func NewManager(validator *geofence.Validator, agg *confidence.Aggregator, store Store, quota QuotaChecker, sched confidence.Schedule, clock Clock) *Manager {
	return &Manager{
		validator: validator,
		agg:       agg,
		store:     store,
		quota:     quota,
		sched:     sched,
		clock:     clock,
		log:       zap.L().With(zap.String("component", "report.manager")),
	}
}

// QuotaState is a point-in-time view of a device's submission quota.
type QuotaState struct {
	Limited   bool      `json:"limited"`
	Quota     int       `json:"quota"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// CheckQuota returns the device's current quota state. Counter-store
// failures degrade to the full quota rather than blocking submission.
func (m *Manager) CheckQuota(ctx context.Context, device string) QuotaState {
	limited := m.quota.IsLimited(ctx, device)
	remaining, resetAt, err := m.quota.Remaining(ctx, device)
	if err != nil {
		remaining = m.quota.Quota()
	}
	return QuotaState{Limited: limited, Quota: m.quota.Quota(), Remaining: remaining, ResetAt: resetAt}
}

// ChargeQuota increments the device's daily counter after a successful
// creation and returns the updated state. Charge failures are logged as
// degraded-mode events, never surfaced: the report is already durable.
func (m *Manager) ChargeQuota(ctx context.Context, device string) QuotaState {
	if err := m.quota.Increment(ctx, device); err != nil {
		m.log.Warn("quota charge failed, proceeding uncharged",
			zap.String("device", device), zap.Error(err))
	}
	return m.CheckQuota(ctx, device)
}

// Create validates and persists a new report. It is the only path that
// creates reports and never mutates an existing one. Rejections leave no
// state behind. Create does not touch the rate limiter; see ChargeQuota.
func (m *Manager) Create(ctx context.Context, sub Submission) (*Report, error) {
	if err := geofence.CheckCoordinates(sub.Latitude, sub.Longitude); err != nil {
		return nil, NewRejection(RejectInvalidCoordinates, err.Error())
	}
	if !m.validator.InAnyRegion(sub.Latitude, sub.Longitude) {
		return nil, NewRejection(RejectOutsideServiceArea,
			"reports can only be submitted from inside a service region")
	}
	severity, err := ParseSeverity(sub.Severity)
	if err != nil {
		return nil, NewRejection(RejectInvalidSeverity, err.Error())
	}

	now := m.clock.Now()

	// Nearby reports are counted before the insert so a report never
	// counts itself.
	score, err := m.agg.Score(ctx, sub.Latitude, sub.Longitude, now)
	if err != nil {
		return nil, NewStorageRejection(err)
	}

	r := &Report{
		ID:         uuid.NewString(),
		Latitude:   sub.Latitude,
		Longitude:  sub.Longitude,
		RoadName:   sub.RoadName,
		Severity:   severity,
		Device:     sub.Device,
		CreatedAt:  now,
		ExpiresAt:  confidence.NextRotation(now, m.sched),
		Confidence: score,
	}
	if err := m.store.Insert(ctx, r); err != nil {
		return nil, NewStorageRejection(err)
	}

	region, _ := m.validator.RegionName(sub.Latitude, sub.Longitude)
	m.log.Info("report created",
		zap.String("id", r.ID),
		zap.String("severity", string(r.Severity)),
		zap.String("region", region),
		zap.Int("confidence", r.Confidence),
		zap.Time("expires_at", r.ExpiresAt),
	)
	return r, nil
}

// ListActive returns unexpired reports matching the filter, newest first.
// Each result carries an ownership flag relative to device; other
// submitters' fingerprints are never exposed.
func (m *Manager) ListActive(ctx context.Context, f Filter, device string) ([]ActiveReport, error) {
	rows, err := m.store.ListActive(ctx, m.clock.Now(), f)
	if err != nil {
		return nil, NewStorageRejection(err)
	}
	out := make([]ActiveReport, 0, len(rows))
	for _, r := range rows {
		out = append(out, ActiveReport{
			ID:         r.ID,
			Latitude:   r.Latitude,
			Longitude:  r.Longitude,
			RoadName:   r.RoadName,
			Severity:   r.Severity,
			CreatedAt:  r.CreatedAt,
			ExpiresAt:  r.ExpiresAt,
			Confidence: r.Confidence,
			Mine:       device != "" && r.Device == device,
		})
	}
	return out, nil
}

// Delete removes a report only when device matches its submitter. A
// non-owner delete returns false, indistinguishable from an unknown id, so
// existence never leaks to non-owners.
func (m *Manager) Delete(ctx context.Context, id, device string) (bool, error) {
	ok, err := m.store.Delete(ctx, id, device)
	if err != nil {
		return false, NewStorageRejection(err)
	}
	if ok {
		m.log.Info("report deleted by owner", zap.String("id", id))
	}
	return ok, nil
}

// AdminList returns every report in the active table, including expired
// ones awaiting rotation and submitter fingerprints.
func (m *Manager) AdminList(ctx context.Context) ([]Report, error) {
	rows, err := m.store.AdminList(ctx)
	if err != nil {
		return nil, NewStorageRejection(err)
	}
	return rows, nil
}

// AdminDelete removes any report, bypassing the ownership check. The caller
// is responsible for authorization; the distinct log line records the
// privileged actor.
func (m *Manager) AdminDelete(ctx context.Context, id string) (bool, error) {
	ok, err := m.store.AdminDelete(ctx, id)
	if err != nil {
		return false, NewStorageRejection(err)
	}
	if ok {
		m.log.Info("report deleted", zap.String("id", id), zap.String("actor", "admin"))
	}
	return ok, nil
}

// AdminClearAll removes every report in the active table.
func (m *Manager) AdminClearAll(ctx context.Context) (int, error) {
	count, err := m.store.AdminClearAll(ctx)
	if err != nil {
		return 0, NewStorageRejection(err)
	}
	m.log.Warn("all reports cleared", zap.Int("count", count), zap.String("actor", "admin"))
	return count, nil
}

// Stats summarizes the active table for the admin dashboard.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	s, err := m.store.Stats(ctx, m.clock.Now())
	if err != nil {
		return nil, NewStorageRejection(err)
	}
	return s, nil
}
