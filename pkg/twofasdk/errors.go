package twofasdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/caseloop/twofactor/pkg/httpx"
)

// Wire error codes. The code is the contract; descriptions are advisory.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeInvalidToken        = "invalid_token"
	ErrorCodeNotEnrolled         = "not_enrolled"
	ErrorCodeAlreadyEnrolled     = "already_enrolled"
	ErrorCodeSessionExpired      = "session_expired"
	ErrorCodeInvalidCode         = "invalid_code"
	ErrorCodeInvalidRecoveryCode = "invalid_recovery_code"
	ErrorCodeCodeAlreadyUsed     = "code_already_used"
	ErrorCodeTooManyAttempts     = "too_many_attempts"
	ErrorCodeDeviceNotFound      = "device_not_found"
	ErrorCodeDeviceRevoked       = "device_revoked"
	ErrorCodeDeviceExpired       = "device_expired"
	ErrorCodeStoreUnavailable    = "store_unavailable"
)

// Error is the service's single wire error shape. It is used by the server
// to write responses and by the SDK to represent decoded failures.
type Error struct {
	// StatusCode is the HTTP status code for this error.
	StatusCode int `json:"-"`

	// Code is the machine-readable error code.
	Code string `json:"error"`

	// Description is a human-readable description of the error.
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on the wire code, so errors.Is works against the predefined
// values regardless of description text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WriteError writes this error to an HTTP response writer.
func (e *Error) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

var (
	// ErrInvalidRequest is returned for malformed bodies or missing fields.
	ErrInvalidRequest = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidToken is returned when the service token is missing or bad.
	ErrInvalidToken = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "invalid or missing service token",
	}

	// ErrNotEnrolled is returned when the user has no active enrollment.
	ErrNotEnrolled = &Error{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeNotEnrolled,
		Description: "two-factor authentication is not enabled for this user",
	}

	// ErrAlreadyEnrolled is returned when enrollment is attempted twice.
	ErrAlreadyEnrolled = &Error{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeAlreadyEnrolled,
		Description: "two-factor authentication is already enabled for this user",
	}

	// ErrSessionExpired is returned for unknown, expired, or consumed nonces.
	// Deliberately indistinguishable from each other.
	ErrSessionExpired = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeSessionExpired,
		Description: "the verification session is no longer valid",
	}

	// ErrInvalidCode is returned when the submitted code does not match.
	ErrInvalidCode = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCode,
		Description: "the code is not valid",
	}

	// ErrInvalidRecoveryCode is returned when the recovery code is unknown
	// or was already used.
	ErrInvalidRecoveryCode = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidRecoveryCode,
		Description: "the recovery code is not valid",
	}

	// ErrCodeAlreadyUsed is returned when a valid code's period was already
	// claimed. The login attempt is burned; the caller must start over.
	ErrCodeAlreadyUsed = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeCodeAlreadyUsed,
		Description: "this code was already used; wait for the next one",
	}

	// ErrTooManyAttempts is returned once a nonce's attempt budget is spent.
	ErrTooManyAttempts = &Error{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeTooManyAttempts,
		Description: "too many failed attempts; restart the login",
	}

	// ErrDeviceNotFound is returned for unknown device tokens or ids.
	ErrDeviceNotFound = &Error{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeDeviceNotFound,
		Description: "no such trusted device",
	}

	// ErrDeviceRevoked is returned for revoked device-trust grants.
	ErrDeviceRevoked = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeDeviceRevoked,
		Description: "this device's trust was revoked",
	}

	// ErrDeviceExpired is returned for expired device-trust grants.
	ErrDeviceExpired = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeDeviceExpired,
		Description: "this device's trust has expired",
	}

	// ErrStoreUnavailable is the only retryable error the service emits.
	ErrStoreUnavailable = &Error{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeStoreUnavailable,
		Description: "the service is temporarily unable to process the request",
	}
)

// decodeError turns a non-2xx response body into an *Error. Bodies that do
// not parse map to a generic error carrying the status code.
func decodeError(statusCode int, body []byte) *Error {
	var e Error
	if err := json.Unmarshal(body, &e); err != nil || e.Code == "" {
		return &Error{
			StatusCode:  statusCode,
			Code:        ErrorCodeInvalidRequest,
			Description: fmt.Sprintf("unexpected response (status %d)", statusCode),
		}
	}
	e.StatusCode = statusCode
	return &e
}
