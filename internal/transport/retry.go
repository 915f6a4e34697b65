package transport

import (
	"errors"
	"net"
	"net/url"
	"syscall"
)

// MaxAttempts and RetryDelay are the fixed retry constants of spec.md §4.1:
// up to 3 attempts total, with a 2s fixed delay between attempts. No
// exponential backoff, no Retry-After handling.
const (
	MaxAttempts = 3
	RetryDelay  = 2 // seconds; kept as an int so tests can assert on it directly
)

// isTransient reports whether err represents a connection-establishment
// failure or a read timeout — the only failure kinds Transport retries.
// HTTP non-2xx responses are not errors at this layer and are never passed
// here; everything else (DNS failure aside, which net.Error.Timeout also
// covers for the dial phase) falls through to a single attempt.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		err = opErr.Err
	}

	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
