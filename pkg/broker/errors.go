package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailed means the session could not be created or refreshed; the
	// connection is unusable until credentials change.
	ErrAuthFailed = errors.New("broker: authentication failed")

	// ErrOrderRejected is a business rejection from the broker. Never retried
	// automatically: a blind replay could double-submit.
	ErrOrderRejected = errors.New("broker: order rejected")

	// ErrServerUnavailable is returned after transient 5xx retries are
	// exhausted.
	ErrServerUnavailable = errors.New("broker: server unavailable")

	// ErrNotConnected is returned when a request is attempted before a
	// session exists.
	ErrNotConnected = errors.New("broker: not connected")
)

// HTTPError carries a non-retryable broker status code.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("broker: http %d: %s", e.Status, e.Body)
}
