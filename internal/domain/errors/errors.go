package errors

import (
	"errors"
	"net/http"
)

// Sentinel domain errors, matched with errors.Is across repositories and usecases.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrBadRequest         = errors.New("bad request")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrAmbiguous          = errors.New("ambiguous match")
	ErrQueueFull          = errors.New("queue full")
	ErrAlreadyProcessing  = errors.New("already processing")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrExternalProvider   = errors.New("external provider error")
	ErrIntegrityMismatch  = errors.New("integrity mismatch")
	ErrFatalConfig        = errors.New("fatal configuration error")
	ErrLicenseUnavailable = errors.New("no license available")
)

// Code classifies an AppError per the error taxonomy: callers branch on it
// instead of string-matching messages (webhook ingress acking 200 on
// CodeNotFound, background loops retrying CodeExternalProvider, ...).
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeInvalidInput     Code = "VALIDATION_ERROR"
	CodeBadRequest       Code = "VALIDATION_ERROR"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeIdempotent       Code = "IDEMPOTENCY_DUPLICATE"
	CodeRateLimit        Code = "RATE_LIMIT_EXCEEDED"
	CodeExternalProvider Code = "EXTERNAL_PROVIDER_ERROR"
	CodeIntegrity        Code = "INTEGRITY_ERROR"
	CodeFatalConfig      Code = "FATAL_CONFIG_ERROR"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeInternalError    Code = "INTERNAL_ERROR"
)

// AppError is the error type surfaced across usecase and handler boundaries.
// Status is the HTTP status it maps to; Code drives internal branching.
type AppError struct {
	Status  int    `json:"-"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(status int, code Code, message string, err error) *AppError {
	return &AppError{Status: status, Code: code, Message: message, Err: err}
}

func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, ErrNotFound)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeInvalidInput, message, ErrInvalidInput)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeForbidden, message, ErrForbidden)
}

func Conflict(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeConflict, message, ErrConflict)
}

func RateLimited(message string) *AppError {
	return NewAppError(http.StatusTooManyRequests, CodeRateLimit, message, ErrRateLimitExceeded)
}

func ExternalProvider(message string, err error) *AppError {
	return NewAppError(http.StatusBadGateway, CodeExternalProvider, message, errOrWrap(err, ErrExternalProvider))
}

func Integrity(message string, err error) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, CodeIntegrity, message, errOrWrap(err, ErrIntegrityMismatch))
}

func FatalConfig(message string, err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeFatalConfig, message, errOrWrap(err, ErrFatalConfig))
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, "internal server error", err)
}

func InternalServerError(message string) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, message, nil)
}

func errOrWrap(err, sentinel error) error {
	if err != nil {
		return err
	}
	return sentinel
}

// NewError creates an error with a custom message wrapping an existing error,
// surfaced as a 400 — used by usecases validating caller-supplied input.
func NewError(message string, err error) *AppError {
	return NewAppError(http.StatusBadRequest, CodeValidation, message, err)
}
