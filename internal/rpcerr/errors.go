// Package rpcerr defines the error taxonomy of the messaging core and its
// mapping onto response statuses.
package rpcerr

import (
	"errors"
	"fmt"

	"mqtt-rpc/internal/model"
)

// Kind classifies an error
type Kind int

const (
	KindUnknown Kind = iota
	KindUsage
	KindConfiguration
	KindExternalService
	KindInternal
	KindInvalidInput
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindTimeout
	KindLocked
)

var kindNames = map[Kind]string{
	KindUnknown:         "UnknownError",
	KindUsage:           "UsageError",
	KindConfiguration:   "ConfigurationError",
	KindExternalService: "ExternalServiceError",
	KindInternal:        "InternalError",
	KindInvalidInput:    "InvalidInputError",
	KindUnauthorized:    "UnauthorizedError",
	KindForbidden:       "ForbiddenError",
	KindNotFound:        "NotFoundError",
	KindTimeout:         "TimeoutError",
	KindLocked:          "LockedError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Status maps a kind onto the nearest response status
func (k Kind) Status() model.Status {
	switch k {
	case KindUsage, KindInvalidInput:
		return model.StatusBadRequest
	case KindUnauthorized:
		return model.StatusUnauthorized
	case KindForbidden:
		return model.StatusForbidden
	case KindNotFound:
		return model.StatusNotFound
	case KindTimeout:
		return model.StatusTimeout
	case KindLocked:
		return model.StatusLocked
	case KindExternalService:
		return model.StatusExternalServerError
	default:
		return model.StatusInternalServerError
	}
}

// Error is a classified error with an optional cause
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so errors.Is(err, rpcerr.ErrConfiguration) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is
var (
	ErrUsage           = &Error{Kind: KindUsage}
	ErrConfiguration   = &Error{Kind: KindConfiguration}
	ErrExternalService = &Error{Kind: KindExternalService}
	ErrInternal        = &Error{Kind: KindInternal}
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrLocked          = &Error{Kind: KindLocked}
)

func newError(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Usage(format string, args ...interface{}) error {
	return newError(KindUsage, nil, format, args...)
}

func Configuration(cause error, format string, args ...interface{}) error {
	return newError(KindConfiguration, cause, format, args...)
}

func ExternalService(cause error, format string, args ...interface{}) error {
	return newError(KindExternalService, cause, format, args...)
}

func Internal(cause error, format string, args ...interface{}) error {
	return newError(KindInternal, cause, format, args...)
}

func InvalidInput(cause error, format string, args ...interface{}) error {
	return newError(KindInvalidInput, cause, format, args...)
}

func Unauthorized(format string, args ...interface{}) error {
	return newError(KindUnauthorized, nil, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return newError(KindForbidden, nil, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newError(KindNotFound, nil, format, args...)
}

func Timeout(format string, args ...interface{}) error {
	return newError(KindTimeout, nil, format, args...)
}

func Locked(format string, args ...interface{}) error {
	return newError(KindLocked, nil, format, args...)
}

// KindOf returns the kind of the outermost classified error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusOf maps any error onto a response status
func StatusOf(err error) model.Status {
	return KindOf(err).Status()
}
