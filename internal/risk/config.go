package risk

// Config bounds the engine's exposure.
type Config struct {
	MaxPositions    int     // cap on simultaneously open positions
	MaxRiskPerTrade float64 // percent of total balance risked per trade
	MaxDrawdown     float64 // percent of total balance; entries pause beyond it
	MinIncrement    float64 // broker's minimum tradable increment
	EntryThreshold  float64 // minimum confidence to open
	ExitThreshold   float64 // minimum confidence on an opposing signal to close
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxPositions:    3,
		MaxRiskPerTrade: 2,
		MaxDrawdown:     10,
		MinIncrement:    0.01,
		EntryThreshold:  0.8,
		ExitThreshold:   0.7,
	}
}
