package adapter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotImplemented classifies contract methods a concrete adapter has not
	// overridden. Hitting it is a bug in the adapter, not in the caller.
	ErrNotImplemented = errors.New("adapter operation not implemented")
	// ErrNotSupported classifies operations that are architecturally
	// inapplicable to a backend. Callers are expected to handle it.
	ErrNotSupported = errors.New("adapter operation not supported")
	// ErrDisconnected classifies any operation attempted on a resource handle
	// after Disconnect. The failure is the same whichever method was called.
	ErrDisconnected = errors.New("adapter disconnected")
	// ErrNotFound classifies reads that matched no record.
	ErrNotFound = errors.New("adapter record not found")
	// ErrMissingURI classifies a blank connection locator at construction.
	ErrMissingURI = errors.New("adapter missing URI")
)

// MissingURIError reports a blank connection locator at construction time.
// It names the concrete adapter so a misconfigured backend is diagnosable
// without reading source.
type MissingURIError struct {
	Adapter string
}

func (e *MissingURIError) Error() string {
	return fmt.Sprintf("URI for the %s adapter is missing or blank, please check your database configuration", e.Adapter)
}

func (e *MissingURIError) Unwrap() error { return ErrMissingURI }

// CheckURI validates the connection locator for the given concrete adapter.
// A blank locator (absent, empty, or whitespace-only) fails with a
// MissingURIError naming the adapter. Every concrete constructor runs this
// guard before touching its backend.
func CheckURI(a any, uri string) error {
	if strings.TrimSpace(uri) == "" {
		return &MissingURIError{Adapter: Name(a)}
	}
	return nil
}

// NotImplemented builds the failure for a contract method the adapter has not
// overridden.
func NotImplemented(op string) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, op)
}

// NotSupported builds the failure for an operation that never applies to the
// backend.
func NotSupported(op string) error {
	return fmt.Errorf("%w: %s", ErrNotSupported, op)
}
