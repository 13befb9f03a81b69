package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors for adapter operations. Check with errors.Is.
var (
	// ErrUnavailable indicates the backing store cannot be reached.
	ErrUnavailable = errors.New("adapter unavailable")

	// ErrBadRequest indicates the request shape is invalid for this
	// family. Never retried.
	ErrBadRequest = errors.New("bad adapter request")
)

// Error wraps a backend failure with the adapter name and operation, and
// classifies it as transient or permanent. The coordinator retries only
// transient errors.
type Error struct {
	Adapter   string
	Op        string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("adapter %s: %s: %s error: %v", e.Adapter, e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapError classifies err and wraps it as an adapter *Error.
// Returns nil for nil.
func wrapError(name, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Adapter: name, Op: op, Transient: isTransient(err), Err: err}
}

// isTransient reports whether an error class is worth a single retry.
// Network and availability failures are transient; validation and request
// shape problems are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBadRequest) {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "timeout", "unavailable", "temporar"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is a retryable adapter failure.
func IsTransient(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Transient
	}
	return isTransient(err)
}
