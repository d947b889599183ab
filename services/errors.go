package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ServiceError so callers can choose retry or abandon.
type ErrorKind string

const (
	// KindValidation: missing or malformed input. Nothing changed.
	KindValidation ErrorKind = "validation"
	// KindConflict: taken username/email, duplicate queue join, or an
	// operation on an account in the wrong state. Nothing changed.
	KindConflict ErrorKind = "conflict"
	// KindNotFound: a referenced user or game does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindUnauthorized: bad credentials or token.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindStoreUnavailable: the durable or queue store failed. Retryable.
	KindStoreUnavailable ErrorKind = "store_unavailable"
)

// ServiceError is the error type every service operation returns.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Retryable is true when the same call may succeed later.
func (e *ServiceError) Retryable() bool { return e.Kind == KindStoreUnavailable }

func validationError(format string, args ...interface{}) error {
	return &ServiceError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflictError(format string, args ...interface{}) error {
	return &ServiceError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...interface{}) error {
	return &ServiceError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func unauthorizedError(format string, args ...interface{}) error {
	return &ServiceError{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func storeError(err error, format string, args ...interface{}) error {
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &ServiceError{Kind: KindStoreUnavailable, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or "" for errors that are not ServiceErrors.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func IsValidation(err error) bool       { return KindOf(err) == KindValidation }
func IsConflict(err error) bool         { return KindOf(err) == KindConflict }
func IsNotFound(err error) bool         { return KindOf(err) == KindNotFound }
func IsUnauthorized(err error) bool     { return KindOf(err) == KindUnauthorized }
func IsStoreUnavailable(err error) bool { return KindOf(err) == KindStoreUnavailable }
