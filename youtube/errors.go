package youtube

import (
	"fmt"
	"time"
)

// ErrorKind categorizes an upstream failure. Nothing above this package
// inspects raw transport errors — the scheduler switches on Kind alone.
type ErrorKind string

const (
	// KindTransient covers network failures, 5xx and 429 — retry with backoff.
	KindTransient ErrorKind = "transient"
	// KindNotFound means the resource does not exist (deleted or private id).
	KindNotFound ErrorKind = "not_found"
	// KindPermissionDenied is a 403 that is not quota-related.
	KindPermissionDenied ErrorKind = "permission_denied"
	// KindQuotaExhausted means the daily allocation is spent; ResetAt says
	// when calls may resume.
	KindQuotaExhausted ErrorKind = "quota_exhausted"
)

// APIError is a classified upstream failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Reason     string // upstream reason token, e.g. "quotaExceeded"
	Message    string
	ResetAt    time.Time // set only for KindQuotaExhausted
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("youtube: %s (http %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("youtube: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the failure may succeed on a plain retry.
// Quota exhaustion is not retryable here — it needs suspension until ResetAt.
func (e *APIError) Retryable() bool {
	return e.Kind == KindTransient
}

// Terminal reports whether the failure maps to an unavailable entity.
func (e *APIError) Terminal() bool {
	return e.Kind == KindNotFound || e.Kind == KindPermissionDenied
}

// quotaReasons are the 403 reason tokens that mean "allocation spent" rather
// than "forbidden".
var quotaReasons = map[string]bool{
	"quotaExceeded":      true,
	"dailyLimitExceeded": true,
	"rateLimitExceeded":  true,
}

// classifyStatus maps an HTTP status and upstream reason token to a Kind.
// Unrecognized statuses classify as transient so the retry budget, not this
// table, decides when to give up.
func classifyStatus(status int, reason string) ErrorKind {
	switch {
	case status == 403 && quotaReasons[reason]:
		return KindQuotaExhausted
	case status == 403 || status == 401:
		return KindPermissionDenied
	case status == 404 || status == 410:
		return KindNotFound
	case status == 429:
		return KindTransient
	case status >= 500:
		return KindTransient
	default:
		return KindTransient
	}
}
