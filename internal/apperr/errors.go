package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Definition is a business error with a stable code and default message.
type Definition struct {
	Code    string
	Message string
}

func (d Definition) Error() string {
	return d.Message
}

// Is matches any Definition carrying the same code, so a Definition with a
// custom message still satisfies errors.Is against the sentinel.
func (d Definition) Is(target error) bool {
	t, ok := target.(Definition)
	return ok && t.Code == d.Code
}

// WithMessage returns a copy of d with a more specific message.
func (d Definition) WithMessage(msg string) Definition {
	return Definition{Code: d.Code, Message: msg}
}

// Wrap attaches cause to d. The public code and message stay d's; cause is
// kept for logs and errors.Is.
func (d Definition) Wrap(cause error) error {
	return fmt.Errorf("%w: %w", d, cause)
}

// Request and auth errors.
var (
	InvalidRequest = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	Unauthorized   = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	Forbidden      = Definition{Code: "FORBIDDEN", Message: "Permission denied"}
	RateLimited    = Definition{Code: "RATE_LIMITED", Message: "Too many requests"}
)

// Storage errors.
var (
	NotFound           = Definition{Code: "NOT_FOUND", Message: "Resource not found"}
	Conflict           = Definition{Code: "CONFLICT", Message: "Resource is still referenced"}
	StorageUnavailable = Definition{Code: "STORAGE_UNAVAILABLE", Message: "Storage unavailable"}
)

// Attendance errors.
var (
	ActivityNotStarted  = Definition{Code: "ACTIVITY_NOT_STARTED", Message: "Activity has not started yet"}
	ActivityNotFound    = Definition{Code: "ACTIVITY_NOT_FOUND", Message: "Activity not found"}
	AttendeeNotFound    = Definition{Code: "ATTENDEE_NOT_FOUND", Message: "Attendee not found"}
	TutorNotAssigned    = Definition{Code: "TUTOR_NOT_ASSIGNED", Message: "Tutor is not assigned to this activity"}
	DuplicateAttendance = Definition{Code: "DUPLICATE_ATTENDANCE", Message: "Attendance already recorded for this activity"}
	InvalidQRToken      = Definition{Code: "INVALID_QR_TOKEN", Message: "QR token is invalid"}
)

// Photo storage errors.
var (
	PhotoStorageDisabled = Definition{Code: "PHOTO_STORAGE_DISABLED", Message: "Photo storage not configured"}
	PhotoUploadFailed    = Definition{Code: "PHOTO_UPLOAD_FAILED", Message: "Photo upload failed"}
)

var statusByCode = map[string]int{
	InvalidRequest.Code:       http.StatusBadRequest,
	InvalidQRToken.Code:       http.StatusBadRequest,
	Unauthorized.Code:         http.StatusUnauthorized,
	Forbidden.Code:            http.StatusForbidden,
	RateLimited.Code:          http.StatusTooManyRequests,
	NotFound.Code:             http.StatusNotFound,
	ActivityNotFound.Code:     http.StatusNotFound,
	AttendeeNotFound.Code:     http.StatusNotFound,
	Conflict.Code:             http.StatusConflict,
	DuplicateAttendance.Code:  http.StatusConflict,
	ActivityNotStarted.Code:   http.StatusUnprocessableEntity,
	TutorNotAssigned.Code:     http.StatusUnprocessableEntity,
	StorageUnavailable.Code:   http.StatusServiceUnavailable,
	PhotoStorageDisabled.Code: http.StatusServiceUnavailable,
	PhotoUploadFailed.Code:    http.StatusBadGateway,
}

// HTTPStatus maps an error to a response status; unknown errors are 500.
func HTTPStatus(err error) int {
	var def Definition
	if errors.As(err, &def) {
		if status, ok := statusByCode[def.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// CodeAndMessage returns the public code and message for err.
func CodeAndMessage(err error) (string, string) {
	var def Definition
	if errors.As(err, &def) {
		return def.Code, def.Message
	}
	return "INTERNAL_ERROR", err.Error()
}
