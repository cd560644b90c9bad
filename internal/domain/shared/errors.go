// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrClosed          = errors.New("closed")

	// Wire/transport errors
	ErrProtocol  = errors.New("protocol error")
	ErrTransport = errors.New("transport error")
	ErrTimeout   = errors.New("operation timeout")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "presence", "notification", "ws"
	Op      string // Operation that failed, e.g., "Register", "Broadcast"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Presence domain errors
var (
	ErrIdentityEmpty     = NewDomainError("presence", "Validate", ErrInvalidID, "identity id cannot be empty")
	ErrAlreadyConnected  = NewDomainError("presence", "Dial", ErrInvalidState, "client already connected")
	ErrNotConnected      = NewDomainError("presence", "Announce", ErrInvalidState, "client is not connected")
	ErrMalformedFrame    = NewDomainError("ws", "Decode", ErrProtocol, "malformed inbound frame")
	ErrUnknownFrameType  = NewDomainError("ws", "Decode", ErrProtocol, "unknown frame type")
	ErrSendQueueFull    = NewDomainError("ws", "Send", ErrTransport, "session send queue full")
	ErrSessionClosed    = NewDomainError("ws", "Send", ErrTransport, "session closed")
	ErrConnectionFailed = NewDomainError("presence", "Dial", ErrTransport, "connection failed")
)

// Notification domain errors
var (
	ErrOwnerEmpty         = NewDomainError("notification", "Validate", ErrInvalidID, "owner id cannot be empty")
	ErrTitleEmpty         = NewDomainError("notification", "Validate", ErrEmptyValue, "title cannot be empty")
	ErrInvalidKind        = NewDomainError("notification", "Validate", ErrInvalidInput, "invalid notification type")
	ErrArchiveUnavailable = NewDomainError("notification", "Archive", ErrServiceUnavailable, "notification archive is unavailable")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsProtocol checks if the error is a malformed/unroutable message error.
// Protocol errors are dropped and logged, never fatal to the hub.
func IsProtocol(err error) bool {
	return errors.Is(err, ErrProtocol)
}

// IsTransport checks if the error is a send/receive failure.
// Transport errors are treated as a disconnect of the affected connection only.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue)
}
