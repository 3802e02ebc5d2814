package report

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on modernc.org/sqlite for single-node
// deploys without Postgres. SQLite has no geodesic types, so nearby
// queries bounding-box prefilter in SQL and finish with a haversine check
// in Go.
type SQLiteStore struct {
	db *sql.DB
}

// sqliteTimeLayout is fixed-width UTC so lexicographic comparison in SQL
// matches chronological order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000"

func sqTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSqTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "report: parse stored time %q", s)
	}
	return t, nil
}

// NewSQLiteStore opens a SQLite database at the given path, configures WAL
// mode, and creates the schema.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "report: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "report: sqlite exec %s", pragma)
		}
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the handle so the rate-limit counter store can share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS flood_reports (
	id                 TEXT PRIMARY KEY,
	latitude           REAL NOT NULL,
	longitude          REAL NOT NULL,
	road_name          TEXT,
	severity           TEXT NOT NULL CHECK (severity IN ('minor', 'moderate', 'severe')),
	device_fingerprint TEXT NOT NULL,
	created_at         TEXT NOT NULL,
	expires_at         TEXT NOT NULL,
	confidence_score   INTEGER NOT NULL CHECK (confidence_score >= 1)
);

CREATE INDEX IF NOT EXISTS idx_flood_reports_expires_at ON flood_reports(expires_at);
CREATE INDEX IF NOT EXISTS idx_flood_reports_created_at ON flood_reports(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_flood_reports_latlng ON flood_reports(latitude, longitude);

CREATE TABLE IF NOT EXISTS flood_reports_archive (
	id                 TEXT PRIMARY KEY,
	latitude           REAL NOT NULL,
	longitude          REAL NOT NULL,
	road_name          TEXT,
	severity           TEXT NOT NULL,
	device_fingerprint TEXT NOT NULL,
	created_at         TEXT NOT NULL,
	confidence_score   INTEGER NOT NULL,
	archived_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rotation_runs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	ran_at         TEXT NOT NULL,
	archived_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rate_limit_counters (
	key        TEXT PRIMARY KEY,
	count      INTEGER NOT NULL,
	expires_at TEXT NOT NULL
);
`

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "report: sqlite migrate")
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, r *Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flood_reports (id, latitude, longitude, road_name, severity, device_fingerprint, created_at, expires_at, confidence_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Latitude, r.Longitude, nilIfEmpty(r.RoadName), string(r.Severity),
		r.Device, sqTime(r.CreatedAt), sqTime(r.ExpiresAt), r.Confidence,
	)
	return eris.Wrap(err, "report: sqlite insert")
}

// haversineMeters returns the great-circle distance between two points.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusM = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// NearbyCount implements Store.
func (s *SQLiteStore) NearbyCount(ctx context.Context, lat, lng, meters float64, since time.Time) (int, error) {
	// Degrees-per-meter prefilter box; the haversine pass below trims the
	// corners the box over-includes.
	latDelta := meters / 111320.0
	lngDelta := latDelta / math.Max(math.Cos(lat*math.Pi/180), 0.01)

	rows, err := s.db.QueryContext(ctx, `
		SELECT latitude, longitude FROM flood_reports
		WHERE latitude BETWEEN ? AND ?
		AND longitude BETWEEN ? AND ?
		AND created_at > ?`,
		lat-latDelta, lat+latDelta, lng-lngDelta, lng+lngDelta, sqTime(since),
	)
	if err != nil {
		return 0, eris.Wrap(err, "report: sqlite nearby query")
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var rLat, rLng float64
		if err := rows.Scan(&rLat, &rLng); err != nil {
			return 0, eris.Wrap(err, "report: sqlite scan nearby")
		}
		if haversineMeters(lat, lng, rLat, rLng) <= meters {
			count++
		}
	}
	return count, eris.Wrap(rows.Err(), "report: sqlite iterate nearby")
}

// ListActive implements Store.
func (s *SQLiteStore) ListActive(ctx context.Context, now time.Time, f Filter) ([]Report, error) {
	query := `
		SELECT id, latitude, longitude, road_name, severity, device_fingerprint, created_at, expires_at, confidence_score
		FROM flood_reports WHERE expires_at > ?`
	args := []any{sqTime(now)}

	if f.BBox != nil {
		query += ` AND latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?`
		args = append(args, f.BBox.South, f.BBox.North, f.BBox.West, f.BBox.East)
	}
	if f.MinConfidence > 0 {
		query += ` AND confidence_score >= ?`
		args = append(args, f.MinConfidence)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "report: sqlite list active")
	}
	defer rows.Close()
	return s.scanRows(rows)
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id, device string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM flood_reports WHERE id = ? AND device_fingerprint = ?`, id, device)
	if err != nil {
		return false, eris.Wrapf(err, "report: sqlite delete %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "report: sqlite rows affected")
	}
	return n > 0, nil
}

// AdminList implements Store.
func (s *SQLiteStore) AdminList(ctx context.Context) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, latitude, longitude, road_name, severity, device_fingerprint, created_at, expires_at, confidence_score
		FROM flood_reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "report: sqlite admin list")
	}
	defer rows.Close()
	return s.scanRows(rows)
}

// AdminDelete implements Store.
func (s *SQLiteStore) AdminDelete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flood_reports WHERE id = ?`, id)
	if err != nil {
		return false, eris.Wrapf(err, "report: sqlite admin delete %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "report: sqlite rows affected")
	}
	return n > 0, nil
}

// AdminClearAll implements Store.
func (s *SQLiteStore) AdminClearAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flood_reports`)
	if err != nil {
		return 0, eris.Wrap(err, "report: sqlite clear all")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "report: sqlite rows affected")
	}
	return int(n), nil
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	y, mo, d := now.Date()
	dayStart := time.Date(y, mo, d, 0, 0, 0, 0, now.Location())
	weekStart := now.AddDate(0, 0, -7)

	stats := &Stats{BySeverity: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM flood_reports`).Scan(&stats.Total); err != nil {
		return nil, eris.Wrap(err, "report: sqlite stats total")
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM flood_reports WHERE created_at >= ?`, sqTime(dayStart)).Scan(&stats.Today); err != nil {
		return nil, eris.Wrap(err, "report: sqlite stats today")
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM flood_reports WHERE created_at >= ?`, sqTime(weekStart)).Scan(&stats.ThisWeek); err != nil {
		return nil, eris.Wrap(err, "report: sqlite stats week")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, count(*) FROM flood_reports GROUP BY severity`)
	if err != nil {
		return nil, eris.Wrap(err, "report: sqlite stats by severity")
	}
	defer rows.Close()
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, eris.Wrap(err, "report: sqlite scan severity stat")
		}
		stats.BySeverity[severity] = count
	}
	return stats, eris.Wrap(rows.Err(), "report: sqlite iterate severity stats")
}

// ArchiveExpired implements Store.
func (s *SQLiteStore) ArchiveExpired(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "report: sqlite begin rotation tx")
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := sqTime(now)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO flood_reports_archive (id, latitude, longitude, road_name, severity, device_fingerprint, created_at, confidence_score, archived_at)
		SELECT id, latitude, longitude, road_name, severity, device_fingerprint, created_at, confidence_score, ?
		FROM flood_reports WHERE expires_at <= ?`, cutoff, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "report: sqlite copy to archive")
	}
	archived64, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "report: sqlite rows affected")
	}
	archived := int(archived64)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM flood_reports WHERE expires_at <= ?`, cutoff); err != nil {
		return 0, eris.Wrap(err, "report: sqlite delete expired")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rotation_runs (ran_at, archived_count) VALUES (?, ?)`,
		cutoff, archived); err != nil {
		return 0, eris.Wrap(err, "report: sqlite record rotation")
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "report: sqlite commit rotation tx")
	}
	return archived, nil
}

// LastRotation implements Store.
func (s *SQLiteStore) LastRotation(ctx context.Context) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT ran_at FROM rotation_runs ORDER BY ran_at DESC LIMIT 1`).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, eris.Wrap(err, "report: sqlite last rotation")
	}
	return parseSqTime(raw)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) scanRows(rows *sql.Rows) ([]Report, error) {
	var out []Report
	for rows.Next() {
		var r Report
		var road sql.NullString
		var severity, createdAt, expiresAt string
		if err := rows.Scan(&r.ID, &r.Latitude, &r.Longitude, &road, &severity,
			&r.Device, &createdAt, &expiresAt, &r.Confidence); err != nil {
			return nil, eris.Wrap(err, "report: sqlite scan row")
		}
		r.RoadName = road.String
		r.Severity = Severity(severity)
		var err error
		if r.CreatedAt, err = parseSqTime(createdAt); err != nil {
			return nil, err
		}
		if r.ExpiresAt, err = parseSqTime(expiresAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "report: sqlite iterate rows")
}
