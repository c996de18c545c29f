package aggregate

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidTimeframe is returned for timeframe strings the broker does not
// understand. Local and recoverable.
var ErrInvalidTimeframe = errors.New("aggregate: invalid timeframe")

// ParseTimeframe converts strings like "1m", "4h", "1d" into a duration.
// The trailing unit character multiplies the numeric prefix; unknown units
// fail fast.
func ParseTimeframe(tf string) (time.Duration, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, tf)
	}

	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, tf)
	}

	switch tf[len(tf)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, tf)
	}
}
