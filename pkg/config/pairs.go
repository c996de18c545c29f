package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pair represents one tradable instrument entry in the YAML pairs file.
type Pair struct {
	Epic            string   `yaml:"epic"`
	Timeframes      []string `yaml:"timeframes"`
	MaxRiskPerTrade float64  `yaml:"max_risk_per_trade"` // 0 = inherit global
	MinIncrement    float64  `yaml:"min_increment"`      // 0 = inherit global
	Enabled         bool     `yaml:"enabled"`
}

// PairsFile is the top-level YAML structure.
type PairsFile struct {
	Pairs []Pair `yaml:"pairs"`
}

// LoadPairs reads the pair universe from a YAML file.
func LoadPairs(path string) ([]Pair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file PairsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pairs file: %w", err)
	}

	out := make([]Pair, 0, len(file.Pairs))
	for _, p := range file.Pairs {
		if !p.Enabled || p.Epic == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ApplyPairs overrides the symbol/timeframe universe from the pairs file.
// Timeframes become the union across enabled pairs.
func (c *Config) ApplyPairs(pairs []Pair) {
	if len(pairs) == 0 {
		return
	}
	symbols := make([]string, 0, len(pairs))
	seen := make(map[string]bool)
	var timeframes []string
	for _, p := range pairs {
		symbols = append(symbols, p.Epic)
		for _, tf := range p.Timeframes {
			if !seen[tf] {
				seen[tf] = true
				timeframes = append(timeframes, tf)
			}
		}
	}
	c.Symbols = symbols
	if len(timeframes) > 0 {
		c.Timeframes = timeframes
	}
}
