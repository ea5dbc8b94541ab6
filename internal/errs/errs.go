// Package errs holds the sentinel errors shared by the storage and service
// layers of the development backend. HTTP handlers map them to status codes.
package errs

import "errors"

var (
	// ErrNotFound is returned when a requested entity is not found
	ErrNotFound = errors.New("entity not found")
	// ErrForbidden is returned when the caller's role does not allow the operation
	ErrForbidden = errors.New("operation not allowed for this role")
	// ErrInvalidTransition is returned when a session status change is not allowed
	ErrInvalidTransition = errors.New("invalid session status transition")
	// ErrNotLive is returned when joining or chatting in a session that is not live
	ErrNotLive = errors.New("session is not live")
	// ErrSessionFull is returned when a session has reached its participant limit
	ErrSessionFull = errors.New("session has maximum participants")
)
