package models

import "fmt"

// APIError represents a standardized error response format for the API.
// @Description APIError is the standardized error response format, carrying an application-specific error code, a human-readable message, and optional details.
type APIError struct {
	Code    string      `json:"code"`              // Application-specific error code (e.g., "NOT_FOUND", "VALIDATION_ERROR")
	Message string      `json:"message"`           // Human-readable message describing the error
	Details interface{} `json:"details,omitempty"` // Optional field for additional error details (e.g., validation failures per field)
}

// Predefined application-specific error codes
const (
	// Generic Errors
	ErrorCodeInternalServerError = "INTERNAL_SERVER_ERROR"
	ErrorCodeServiceUnavailable  = "SERVICE_UNAVAILABLE"

	// Input Validation & Data Errors
	ErrorCodeValidation      = "VALIDATION_ERROR"
	ErrorCodeInvalidJSON     = "INVALID_JSON"
	ErrorCodeInvalidIDFormat = "INVALID_ID_FORMAT"
	ErrorCodeValueOutOfRange = "VALUE_OUT_OF_RANGE"
	ErrorCodeInvalidEnum     = "INVALID_ENUM_VALUE"

	// Resource Specific Errors
	ErrorCodeNotFound       = "NOT_FOUND"
	ErrorCodeMetricNotFound = "METRIC_NOT_FOUND"
	ErrorCodeGoalNotFound   = "GOAL_NOT_FOUND"

	// Business Logic / State Errors
	ErrorCodeConflict      = "CONFLICT_ERROR"
	ErrorCodeDuplicateGoal = "DUPLICATE_GOAL"
)

// ValidationError rejects a request synchronously; it is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NotFoundError signals an unknown metric or goal id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError signals a uniqueness violation, e.g. a second goal for the
// same (bond, metric type) pair or a stale optimistic-concurrency write.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}

// StorageError wraps an unreachable or failing store. It is retryable at the
// caller's discretion; on the ingestion write path it propagates so data is
// never silently dropped.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NotarizationError is logged and recorded as an absent receipt; it is never
// propagated to the ingestion caller.
type NotarizationError struct {
	RecordID string
	Err      error
}

func (e *NotarizationError) Error() string {
	return fmt.Sprintf("notarization failed for record %s: %v", e.RecordID, e.Err)
}

func (e *NotarizationError) Unwrap() error { return e.Err }
