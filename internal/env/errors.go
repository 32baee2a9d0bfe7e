package env

import (
	"errors"
	"fmt"
)

// Sentinels for the adapter error taxonomy. Transport failures carry
// their own sentinel in the transport package; the three classes below
// are never retried.
var (
	// ErrServer marks a semantic error reported by a backend that
	// accepted the request.
	ErrServer = errors.New("backend reported error")
	// ErrProtocol marks a response shape the adapter does not recognize.
	ErrProtocol = errors.New("unrecognized response shape")
	// ErrValidation marks an invalid caller-supplied argument.
	ErrValidation = errors.New("invalid request")
)

// ServerError is returned when the backend answered but reported a
// semantic failure in its response body.
type ServerError struct {
	Kind Kind
	Op   string
	// Message is the backend's own error text.
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s %s: backend error: %s", e.Kind, e.Op, e.Message)
}

func (e *ServerError) Unwrap() error {
	return ErrServer
}

// ProtocolError is returned when a response cannot be mapped onto the
// normalized result types, indicating an adapter/backend mismatch.
type ProtocolError struct {
	Kind   Kind
	Op     string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s %s: protocol error: %s", e.Kind, e.Op, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

// ValidationError is returned for malformed caller input such as an
// empty action or an unknown kind.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
