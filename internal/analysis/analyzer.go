// Package analysis defines the chart-analysis collaborator contract. The
// collaborator is a black box: it receives a symbol and timeframes and
// returns a signal with confidence and risk levels, with no side effects on
// engine state.
package analysis

import (
	"context"
	"time"
)

// Signal is the collaborator's trading recommendation.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// RiskAssessment carries the levels the collaborator proposes for a trade.
type RiskAssessment struct {
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
}

// Result is one chart analysis outcome.
type Result struct {
	Epic       string         `json:"epic"`
	Signal     Signal         `json:"signal"`
	Confidence float64        `json:"confidence"` // [0,1]
	Analysis   string         `json:"analysis"`
	Risk       RiskAssessment `json:"risk_assessment"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Analyzer produces chart analyses. Implementations must be safe for
// concurrent use.
type Analyzer interface {
	Analyze(ctx context.Context, epic string, timeframes []string) (*Result, error)
}
