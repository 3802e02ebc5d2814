// Package report implements the flood-report lifecycle: validated creation
// with confidence scoring, active-set reads, owner and admin deletes, and
// the weekly move of expired reports into the archive.
package report

import (
	"time"

	"github.com/rotisserie/eris"
)

// Severity classifies how bad the flooding is at a reported location.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// ParseSeverity validates a raw severity value.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityMinor, SeverityModerate, SeveritySevere:
		return Severity(s), nil
	default:
		return "", eris.Errorf("report: invalid severity %q (must be minor, moderate, or severe)", s)
	}
}

// Report is an active flood report. All fields are immutable after
// creation; the only state changes a report undergoes are deletion and
// archival.
type Report struct {
	ID         string    `json:"id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RoadName   string    `json:"road_name,omitempty"`
	Severity   Severity  `json:"severity"`
	Device     string    `json:"device_fingerprint,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Confidence int       `json:"confidence_score"`
}

// ArchivedReport is a report moved to the long-term archive. Expiry is no
// longer meaningful once archived; archived reports never re-enter the
// active set.
type ArchivedReport struct {
	ID         string    `json:"id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RoadName   string    `json:"road_name,omitempty"`
	Severity   Severity  `json:"severity"`
	Device     string    `json:"device_fingerprint"`
	CreatedAt  time.Time `json:"created_at"`
	Confidence int       `json:"confidence_score"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Submission is the inbound payload for a new report.
type Submission struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RoadName  string  `json:"road_name,omitempty"`
	Severity  string  `json:"severity"`
	Device    string  `json:"-"`
}

// ActiveReport is a report as exposed to map readers: the submitter's
// fingerprint is replaced by an ownership flag relative to the requesting
// device.
type ActiveReport struct {
	ID         string    `json:"id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RoadName   string    `json:"road_name,omitempty"`
	Severity   Severity  `json:"severity"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Confidence int       `json:"confidence_score"`
	Mine       bool      `json:"is_own_report"`
}

// Stats summarizes the active set for the admin dashboard.
type Stats struct {
	Total      int            `json:"total"`
	Today      int            `json:"today"`
	ThisWeek   int            `json:"this_week"`
	BySeverity map[string]int `json:"by_severity"`
}
