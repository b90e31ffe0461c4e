// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the error taxonomy shared by the multiplexer and
// its runtimes.
package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// ErrResourceNotFound indicates a client argument names an id unknown to
	// its session.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrWrongType indicates a client argument names an object of another
	// interface.
	ErrWrongType = errors.New("resource has wrong type")

	// ErrSessionNotFound indicates a request arrived for a client with no
	// registered session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrVersionTooLow indicates a bind below the interface minimum.
	ErrVersionTooLow = errors.New("version too low")

	// ErrCapabilityUnavailable indicates the upstream compositor lacks the
	// requested capability.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrNotStarted indicates the multiplexer has not been started.
	ErrNotStarted = errors.New("not started")

	// ErrAlreadyStarted indicates a second startup.
	ErrAlreadyStarted = errors.New("already started")

	// ErrConnectionClosed indicates the connection was closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrProtocolViolation indicates a protocol-level error.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrInvalidArgument indicates a nil or malformed argument.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ProtocolError wraps an error with the object it concerns.
type ProtocolError struct {
	Op        string // Operation that failed
	Interface string // Interface of the object
	SessionID string // Session identifier
	ObjectID  uint32 // Downstream object id, 0 when not applicable
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s %s@%d [%s]: %v", e.Op, e.Interface, e.ObjectID, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s %s@%d: %v", e.Op, e.Interface, e.ObjectID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// New creates a new ProtocolError.
func New(op, iface, sessionID string, objectID uint32, err error) error {
	if err == nil {
		return nil
	}
	return &ProtocolError{
		Op:        op,
		Interface: iface,
		SessionID: sessionID,
		ObjectID:  objectID,
		Err:       err,
	}
}

// ResourceError reports an object argument that could not be resolved.
// Interface is the class the argument was expected to have.
type ResourceError struct {
	Interface string
	ID        uint32
	Err       error
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	if errors.Is(e.Err, ErrWrongType) {
		return fmt.Sprintf("resource %d is not a %s", e.ID, e.Interface)
	}
	return fmt.Sprintf("resource %d (%s) not found", e.ID, e.Interface)
}

// Unwrap returns the underlying error.
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
