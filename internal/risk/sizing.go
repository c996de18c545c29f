package risk

import (
	"errors"
	"math"
)

// ErrNoStopDistance means the entry and stop-loss coincide; position size
// would be unbounded.
var ErrNoStopDistance = errors.New("risk: zero distance between entry and stop")

// PositionSize computes the quantity that risks riskPct percent of the total
// balance over the entry-to-stop distance, floored to the broker's minimum
// increment. The result is additionally clamped to what the available margin
// supports at the instrument's leverage, so the formula alone can never
// over-leverage the account.
func PositionSize(balanceTotal, availableMargin, riskPct, entry, stop, minIncrement, maxLeverage float64) (float64, error) {
	dist := math.Abs(entry - stop)
	if dist == 0 {
		return 0, ErrNoStopDistance
	}

	riskAmount := balanceTotal * riskPct / 100
	qty := riskAmount / dist

	if maxLeverage > 0 && entry > 0 {
		marginCap := availableMargin * maxLeverage / entry
		if qty > marginCap {
			qty = marginCap
		}
	}

	return FloorToIncrement(qty, minIncrement), nil
}

// FloorToIncrement rounds qty down to a multiple of inc.
func FloorToIncrement(qty, inc float64) float64 {
	if inc <= 0 {
		return qty
	}
	return math.Floor(qty/inc) * inc
}
