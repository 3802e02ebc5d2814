package report

import (
	"errors"
	"fmt"
	"time"
)

// RejectCode is a machine-checkable reason a submission was refused.
type RejectCode string

const (
	RejectInvalidCoordinates RejectCode = "invalid_coordinates"
	RejectOutsideServiceArea RejectCode = "outside_service_area"
	RejectInvalidSeverity    RejectCode = "invalid_severity"
	RejectRateLimited        RejectCode = "rate_limited"
	RejectStorageFailure     RejectCode = "storage_failure"
)

// Rejection is a refused submission. Validation rejections are terminal;
// storage failures are retryable and quota rejections carry the reset time.
type Rejection struct {
	Code      RejectCode `json:"code"`
	Detail    string     `json:"detail"`
	Retryable bool       `json:"retryable"`
	ResetAt   time.Time  `json:"reset_at,omitempty"`
	cause     error
}

func (r *Rejection) Error() string {
	if r.cause != nil {
		return fmt.Sprintf("report: %s: %s: %v", r.Code, r.Detail, r.cause)
	}
	return fmt.Sprintf("report: %s: %s", r.Code, r.Detail)
}

func (r *Rejection) Unwrap() error {
	return r.cause
}

// NewRejection creates a terminal validation rejection.
func NewRejection(code RejectCode, detail string) *Rejection {
	return &Rejection{Code: code, Detail: detail}
}

// NewQuotaRejection creates a rate-limit rejection carrying the reset time.
func NewQuotaRejection(resetAt time.Time) *Rejection {
	return &Rejection{
		Code:    RejectRateLimited,
		Detail:  "daily report limit reached",
		ResetAt: resetAt,
	}
}

// NewStorageRejection wraps a persistence failure as a retryable rejection.
// The submission was not accepted; the caller may retry.
func NewStorageRejection(cause error) *Rejection {
	return &Rejection{
		Code:      RejectStorageFailure,
		Detail:    "temporary storage failure, retry later",
		Retryable: true,
		cause:     cause,
	}
}

// AsRejection extracts a Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
