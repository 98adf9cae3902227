// Package autherrors provides the closed error taxonomy shared by every
// component of the authentication core. Every error a caller can observe
// from this module is, or wraps, an *Error from this package so that a
// single switch over Kind is enough for a middleware layer to project an
// HTTP status code.
package autherrors

import (
	"fmt"
	"time"
)

// Kind identifies one of the closed set of error categories the core can
// raise. New kinds are added here, never invented ad hoc at call sites.
type Kind string

const (
	KindAuth                Kind = "auth_error"
	KindTokenNotFound       Kind = "token_not_found"
	KindTokenRevoked        Kind = "token_revoked"
	KindTokenExpired        Kind = "token_expired"
	KindTokenValidation     Kind = "token_validation_error"
	KindTokenService        Kind = "token_service_error"
	KindInvalidGroup        Kind = "invalid_group"
	KindGroupAccessDenied   Kind = "group_access_denied"
	KindFingerprintMismatch Kind = "fingerprint_mismatch"
	KindStorageUnavailable  Kind = "storage_unavailable"
	KindConflict            Kind = "conflict"
	KindValidation          Kind = "validation_error"
)

// httpStatus is the default HTTP status each Kind projects to. Middleware
// outside this core is free to override per-endpoint; this is the default.
var httpStatus = map[Kind]int{
	KindAuth:                401,
	KindTokenNotFound:       401,
	KindTokenRevoked:        401,
	KindTokenExpired:        401,
	KindTokenValidation:     401,
	KindTokenService:        500,
	KindInvalidGroup:        403,
	KindGroupAccessDenied:   403,
	KindFingerprintMismatch: 401,
	KindStorageUnavailable:  503,
	KindConflict:            409,
	KindValidation:          400,
}

// redactedFields never make it into a logged Error, even when callers pass
// them to WithField: the signed credential string and the signing secret.
var redactedFields = map[string]bool{
	"credential": true,
	"token":      true,
	"secret":     true,
	"jwt_secret": true,
}

// Error is the structured error type returned across the whole core.
type Error struct {
	Kind      Kind
	Message   string
	Cause     error
	Timestamp time.Time
	Fields    map[string]string
}

// New creates a structured error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    make(map[string]string),
	}
}

// Wrap creates a structured error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return New(kind, message).WithCause(cause)
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithField attaches structured context (record id, backend name, group
// name). Fields on the redaction deny-list are dropped rather than stored.
func (e *Error) WithField(key, value string) *Error {
	if redactedFields[key] {
		return e
	}
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[key] = value
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// LogFields returns the error's structured fields plus its kind, ready to
// pass to logrus.WithFields. Redacted fields never entered e.Fields in the
// first place, so there is nothing to filter here.
func (e *Error) LogFields() map[string]interface{} {
	fields := make(map[string]interface{}, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields["kind"] = string(e.Kind)
	return fields
}

// HTTPStatus returns the default HTTP status for the error's Kind.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatus[e.Kind]; ok {
		return status
	}
	return 500
}

// Is reports whether err carries the given Kind, looking through wrapping.
func Is(err error, kind Kind) bool {
	var ae *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			ae = e
			break
		}
		unwrappable, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrappable.Unwrap()
	}
	return ae != nil && ae.Kind == kind
}
