package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrInvalidRequest  ErrorType = "INVALID_REQUEST"
	ErrAuthFailed      ErrorType = "AUTH_FAILED"
	ErrScopeViolation  ErrorType = "SCOPE_VIOLATION"
	ErrGuardrailReject ErrorType = "GUARDRAIL_REJECT"
	ErrRateLimited     ErrorType = "RATE_LIMITED"
	ErrNotRunning      ErrorType = "INSTANCE_NOT_RUNNING"
	ErrNotFound        ErrorType = "NOT_FOUND"
	ErrUpstream        ErrorType = "UPSTREAM_ERROR"
	ErrConfig          ErrorType = "CONFIG_ERROR"
	ErrInternal        ErrorType = "INTERNAL_ERROR"
)

// Machine codes carried by guardrail rejections.
const (
	CodeMinNotional = "min_notional"
	CodeMaxQty      = "max_qty"
	CodeLossCap     = "loss_cap"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Machine    string    `json:"machine_code,omitempty"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewAuthFailed(msg string) *AppError {
	return New(ErrAuthFailed, msg, nil)
}

func NewScopeViolation(msg string) *AppError {
	return New(ErrScopeViolation, msg, nil)
}

func NewNotFound(msg string) *AppError {
	return New(ErrNotFound, msg, nil)
}

func NewUpstream(msg string, cause error) *AppError {
	return New(ErrUpstream, msg, cause)
}

func NewConfig(msg string) *AppError {
	return New(ErrConfig, msg, nil)
}

// NewGuardrail builds a policy rejection carrying a machine code. Loss-cap
// breaches are a scope-level refusal and surface as 403 rather than 400.
func NewGuardrail(machine, msg string) *AppError {
	e := New(ErrGuardrailReject, msg, nil)
	e.Machine = machine
	if machine == CodeLossCap {
		e.HTTPStatus = http.StatusForbidden
	}
	return e
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// IsRetryable reports whether a failed delivery may be re-attempted.
// Policy rejections are final; only transport-level failures retry.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return true
	}
	return appErr.Type == ErrUpstream || appErr.Type == ErrInternal
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest, ErrGuardrailReject:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrScopeViolation:
		return http.StatusForbidden
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrNotRunning:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream:
		return http.StatusBadGateway
	case ErrConfig:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrGuardrailReject:
		return "Check order parameters against the instance guardrails."
	case ErrAuthFailed:
		return "Check the bearer token, signature header or source IP."
	case ErrScopeViolation:
		return "The token does not belong to this workspace."
	case ErrNotRunning:
		return "Start the bot instance before sending orders."
	case ErrRateLimited:
		return "Slow down and retry after the window resets."
	case ErrUpstream:
		return "The exchange is unreachable; delivery will be retried."
	default:
		return ""
	}
}
