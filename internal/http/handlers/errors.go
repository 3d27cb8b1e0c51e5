// Package handlers defines the HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case and stable; clients branch on
// them programmatically while the message field stays human-readable.
package handlers

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeRateLimited = "too_many_requests"
	ErrCodeInternal    = "internal_error"

	// Domain-specific:
	ErrCodeClassifyFailed   = "classify_failed"
	ErrCodeProcessFailed    = "process_failed"
	ErrCodeIngestFailed     = "ingest_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeSettingsInvalid  = "settings_invalid"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
