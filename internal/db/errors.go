package db

import (
	"errors"
	"fmt"
)

// ErrManagerClosed is returned once Disconnect has been called.
var ErrManagerClosed = errors.New("connection manager closed")

// ConnectionError reports that a handle could not be (re)connected.
// Callers treat it as a request-level failure.
type ConnectionError struct {
	Role     Role
	Attempts int
	Err      error

	// startup marks the result of the construction-time retry sequence.
	startup bool
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s: connect failed after %d attempts: %v", e.Role, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: connect failed: %v", e.Role, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// QueryError wraps a failure returned while running a data operation on a
// connected handle. The underlying driver error is reachable with errors.As.
type QueryError struct {
	Role Role
	Err  error
}

func (e *QueryError) Error() string {
	return e.Role.String() + ": " + e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// ShutdownError wraps a failure to close a handle during Disconnect.
type ShutdownError struct {
	Role Role
	Err  error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("%s: close failed: %v", e.Role, e.Err)
}

func (e *ShutdownError) Unwrap() error {
	return e.Err
}

func startupExhausted(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr) && connErr.startup
}

// IsConnectionError reports whether err carries a *ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
