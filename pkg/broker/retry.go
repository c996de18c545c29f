package broker

import (
	"net/http"
	"strconv"
	"time"
)

const maxServerRetries = 3

// retryAction tells the request loop what to do with a response status.
type retryAction int

const (
	actionDone retryAction = iota
	actionSleepReplay     // 429: honor Retry-After, replay unmodified
	actionRefreshReplay   // 401: refresh the session once, then replay
	actionBackoffReplay   // 5xx: exponential backoff, bounded attempts
	actionFail
)

// retryState is the bounded retry machine for a single logical request.
// The ordering matters: a rate-limited replay must re-check auth before
// being retried again, which falls out of evaluating 429 before 401 on
// every response.
type retryState struct {
	serverAttempts int
	authRefreshed  bool
}

// next classifies a response status into an action plus the delay to apply
// before replaying. It mutates the state's attempt counters.
func (s *retryState) next(status int, retryAfter string) (retryAction, time.Duration) {
	switch {
	case status == http.StatusTooManyRequests:
		return actionSleepReplay, parseRetryAfter(retryAfter)

	case status == http.StatusUnauthorized:
		if s.authRefreshed {
			return actionFail, 0
		}
		s.authRefreshed = true
		return actionRefreshReplay, 0

	case status >= 500:
		if s.serverAttempts >= maxServerRetries {
			return actionFail, 0
		}
		delay := time.Duration(1<<uint(s.serverAttempts)) * time.Second
		s.serverAttempts++
		return actionBackoffReplay, delay

	case status >= 400:
		return actionFail, 0
	}
	return actionDone, 0
}

// parseRetryAfter reads a Retry-After header in seconds, defaulting to 1s.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return time.Second
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return time.Second
	}
	return time.Duration(secs) * time.Second
}

// sleeper lets tests replace wall-clock delays.
type sleeper func(d time.Duration)
