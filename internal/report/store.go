package report

import (
	"context"
	"time"

	"github.com/floodwatch-fl/floodwatch/internal/geofence"
)

// Filter narrows an active-set listing.
type Filter struct {
	// BBox restricts results to a bounding rectangle when non-nil.
	BBox *geofence.Bounds
	// MinConfidence drops reports below the threshold when > 0.
	MinConfidence int
}

// Store is the persistence boundary for reports. Every operation re-reads
// state fresh; callers hold no references across calls.
type Store interface {
	// Insert persists a fully-populated report.
	Insert(ctx context.Context, r *Report) error

	// NearbyCount returns the number of active-table reports within meters
	// of the point created after since. Distance is geodesic.
	NearbyCount(ctx context.Context, lat, lng, meters float64, since time.Time) (int, error)

	// ListActive returns reports with expires_at after now matching the
	// filter, newest first. Device fingerprints are included; the manager
	// is responsible for not exposing them.
	ListActive(ctx context.Context, now time.Time, f Filter) ([]Report, error)

	// Delete removes a report only if it belongs to device. Returns true
	// when a row was removed.
	Delete(ctx context.Context, id, device string) (bool, error)

	// AdminList returns every active-table report regardless of expiry,
	// newest first.
	AdminList(ctx context.Context) ([]Report, error)

	// AdminDelete removes a report regardless of owner.
	AdminDelete(ctx context.Context, id string) (bool, error)

	// AdminClearAll removes every active-table report and returns the count.
	AdminClearAll(ctx context.Context) (int, error)

	// Stats summarizes the active table relative to now.
	Stats(ctx context.Context, now time.Time) (*Stats, error)

	// ArchiveExpired moves every report with expires_at <= now into the
	// archive and records an audit row, all in one transaction. Partial
	// archival is never observable. Returns the number archived.
	ArchiveExpired(ctx context.Context, now time.Time) (int, error)

	// LastRotation returns the time of the most recent archive rotation,
	// or the zero time if none has run.
	LastRotation(ctx context.Context) (time.Time, error)

	// Close releases the store's resources.
	Close() error
}
