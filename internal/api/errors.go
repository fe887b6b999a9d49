package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind names a failure class as presented to the user
type Kind string

const (
	KindRateLimit  Kind = "rate-limit"
	KindAuth       Kind = "auth"
	KindPermission Kind = "permission"
	KindValidation Kind = "validation"
	KindServer     Kind = "server"
	KindGeneric    Kind = "generic"
)

// DefaultRetryAfter is used when a 429 carries no usable retry-after header
const DefaultRetryAfter = 60 * time.Second

const (
	DefaultFallbackMessage   = "Something went wrong"
	defaultRateLimitMessage  = "Too many requests"
	defaultValidationMessage = "Invalid data"
	sessionExpiredMessage    = "Session expired, please sign in again"
	permissionMessage        = "You do not have permission to perform this action"
	serverMessage            = "Server error, try again later"
)

// RateLimitError is returned for HTTP 429. It never affects the session.
type RateLimitError struct {
	Message    string
	Details    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s (retry after %s)", e.Message, e.RetryAfter)
}

// AuthExpiredError is returned for HTTP 401. Message is the backend's, if any.
type AuthExpiredError struct {
	Message string
}

func (e *AuthExpiredError) Error() string {
	if e.Message == "" {
		return "authentication expired"
	}
	return "authentication expired: " + e.Message
}

// PermissionError is returned for HTTP 403
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string {
	if e.Message == "" {
		return "permission denied"
	}
	return "permission denied: " + e.Message
}

// ValidationError is returned for HTTP 400
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

// ServerError is returned for HTTP 5xx
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error %d", e.Status)
	}
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

// GenericError covers every other failure, including transport errors
type GenericError struct {
	Status  int
	Message string
	Err     error
}

func (e *GenericError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
	}
	return e.Message
}

func (e *GenericError) Unwrap() error {
	return e.Err
}

// errorBody is the backend's failure payload. message may be a string or,
// for validation failures, a list of strings.
type errorBody struct {
	Message json.RawMessage `json:"message"`
	Details json.RawMessage `json:"details"`
}

func (b errorBody) message() string {
	return flattenMessage(b.Message)
}

func (b errorBody) details() string {
	return flattenMessage(b.Details)
}

func flattenMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

func parseErrorBody(data []byte) errorBody {
	var body errorBody
	_ = json.Unmarshal(data, &body)
	return body
}

func retryDetails(retry time.Duration) string {
	return fmt.Sprintf("Try again in %d seconds", int(retry.Seconds()))
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
		return 0
	}
	return DefaultRetryAfter
}

// classify maps a non-2xx response to exactly one typed error
func classify(status int, header http.Header, data []byte, fallback string, now time.Time) error {
	body := parseErrorBody(data)
	msg := body.message()

	switch {
	case status == http.StatusTooManyRequests:
		if msg == "" {
			msg = defaultRateLimitMessage
		}
		retry := parseRetryAfter(header.Get("Retry-After"), now)
		details := body.details()
		if details == "" {
			details = retryDetails(retry)
		}
		return &RateLimitError{Message: msg, Details: details, RetryAfter: retry}
	case status == http.StatusUnauthorized:
		return &AuthExpiredError{Message: msg}
	case status == http.StatusForbidden:
		return &PermissionError{Message: msg}
	case status == http.StatusBadRequest:
		if msg == "" {
			msg = defaultValidationMessage
		}
		return &ValidationError{Message: msg}
	case status >= http.StatusInternalServerError:
		return &ServerError{Status: status, Message: msg}
	default:
		if msg == "" {
			msg = fallback
		}
		return &GenericError{Status: status, Message: msg}
	}
}

// Describe returns the kind and user-facing message for err
func Describe(err error) (Kind, string) {
	var (
		rateErr *RateLimitError
		authErr *AuthExpiredError
		permErr *PermissionError
		valErr  *ValidationError
		srvErr  *ServerError
		genErr  *GenericError
	)
	switch {
	case errors.As(err, &rateErr):
		msg := rateErr.Message + ". " + rateErr.Details
		if rateErr.Details != retryDetails(rateErr.RetryAfter) {
			msg += fmt.Sprintf(" (retry in %ds)", int(rateErr.RetryAfter.Seconds()))
		}
		return KindRateLimit, msg
	case errors.As(err, &authErr):
		return KindAuth, sessionExpiredMessage
	case errors.As(err, &permErr):
		return KindPermission, permissionMessage
	case errors.As(err, &valErr):
		return KindValidation, valErr.Message
	case errors.As(err, &srvErr):
		return KindServer, serverMessage
	case errors.As(err, &genErr):
		return KindGeneric, genErr.Message
	case err == nil:
		return "", ""
	default:
		return KindGeneric, err.Error()
	}
}

// KindOf returns the classification of err, or "ok" for nil
func KindOf(err error) string {
	if err == nil {
		return "ok"
	}
	kind, _ := Describe(err)
	return string(kind)
}

// Message returns the backend-provided message carried by err, or fallback
// when err is untyped or carries none.
func Message(err error, fallback string) string {
	var (
		rateErr *RateLimitError
		authErr *AuthExpiredError
		permErr *PermissionError
		valErr  *ValidationError
		srvErr  *ServerError
		genErr  *GenericError
	)
	var msg string
	switch {
	case errors.As(err, &rateErr):
		msg = rateErr.Message
	case errors.As(err, &authErr):
		msg = authErr.Message
	case errors.As(err, &permErr):
		msg = permErr.Message
	case errors.As(err, &valErr):
		msg = valErr.Message
	case errors.As(err, &srvErr):
		msg = srvErr.Message
	case errors.As(err, &genErr):
		msg = genErr.Message
	}
	if msg == "" {
		return fallback
	}
	return msg
}
