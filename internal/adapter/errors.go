package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Class partitions adapter errors by how the Device must react.
type Class int

const (
	// Transient covers network timeouts and resets; the Device may
	// reconnect and keep going.
	Transient Class = iota
	// Protocol covers payloads or queries the server rejected; retrying
	// the same bytes cannot succeed, so the attempt becomes a failed
	// sample and the Device moves on.
	Protocol
	// Fatal covers authentication failures and protocol desync; the
	// Device terminates immediately.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "connection"
	case Protocol:
		return "protocol"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Error carries a classification alongside the wrapped cause.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errf wraps an error with a class.
func Errf(class Class, format string, args ...any) error {
	return &Error{Class: class, Err: fmt.Errorf(format, args...)}
}

// ClassOf classifies err. Unwrapped network and deadline errors default to
// Transient; anything unclassified is treated as Fatal so a misbehaving
// adapter can never silently bias the measurements.
func ClassOf(err error) Class {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Class
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	return Fatal
}
