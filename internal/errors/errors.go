package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse error category surfaced to HTTP callers.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindAuth       Kind = "AUTH"
	KindNotFound   Kind = "NOT_FOUND"
	KindForbidden  Kind = "FORBIDDEN"
	KindConflict   Kind = "CONFLICT"
	KindInternal   Kind = "INTERNAL"
)

// StatusCode returns the HTTP status associated with the kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Reason is the machine readable subtype of an AUTH failure. Clients branch on it:
// only ReasonTokenExpired is worth a refresh and retry.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonTokenMissing       Reason = "TOKEN_MISSING"
	ReasonTokenExpired       Reason = "TOKEN_EXPIRED"
	ReasonTokenInvalid       Reason = "TOKEN_INVALID"
	ReasonUserNotFound       Reason = "USER_NOT_FOUND"
	ReasonInvalidCredentials Reason = "INVALID_CREDENTIALS"
)

// Sentinels carried in the cause chain of the matching AppError, so callers can use
// errors.Is without inspecting the Reason.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")

	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenMissing = errors.New("token missing")

	ErrInternal = errors.New("internal error")
)

// AppError is an error tagged with a Kind, an optional Reason and optional details
// that are safe to show to the caller.
type AppError struct {
	Kind    Kind
	Reason  Reason
	Message string
	Details any
	cause   error
}

func (e *AppError) Error() string {
	msg := string(e.Kind)
	if e.Reason != ReasonNone {
		msg += "/" + string(e.Reason)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// StatusCode returns the HTTP status of the error kind.
func (e *AppError) StatusCode() int {
	return e.Kind.StatusCode()
}

// WithCause records an underlying error. It is logged but never written to clients.
// Repeated calls keep every cause in the chain.
func (e *AppError) WithCause(err error) *AppError {
	switch {
	case err == nil:
	case e.cause == nil:
		e.cause = err
	default:
		e.cause = fmt.Errorf("%w: %w", e.cause, err)
	}
	return e
}

// WithDetails attaches structured detail for the response body.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func Validation(message string) *AppError {
	return New(KindValidation, message)
}

// Auth builds an AUTH failure carrying reason.
func Auth(reason Reason, message string) *AppError {
	return &AppError{Kind: KindAuth, Reason: reason, Message: message}
}

func NotFound(message string) *AppError {
	return New(KindNotFound, message)
}

func Forbidden(message string) *AppError {
	return New(KindForbidden, message)
}

func Conflict(message string) *AppError {
	return New(KindConflict, message)
}

// Internal wraps an unexpected failure. The message returned to callers stays generic.
func Internal(err error) *AppError {
	return New(KindInternal, "Internal Server Error").WithCause(ErrInternal).WithCause(err)
}

// AsAppError returns the first AppError in err's chain. Errors that carry no tag are
// reported as INTERNAL.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// StatusCode maps any error to an HTTP status.
func StatusCode(err error) int {
	return AsAppError(err).StatusCode()
}

// ReasonOf returns the AUTH reason carried by err, if any.
func ReasonOf(err error) Reason {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ReasonNone
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
