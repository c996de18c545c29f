package config

import (
	"os"
	"path/filepath"
	"testing"
)

const pairsYAML = `
pairs:
  - epic: EURUSD
    timeframes: ["1h", "4h"]
    enabled: true
  - epic: GBPUSD
    timeframes: ["1h"]
    enabled: true
  - epic: USDJPY
    timeframes: ["15m"]
    enabled: false
`

func writePairsFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pairs.yaml")
	if err := os.WriteFile(path, []byte(pairsYAML), 0o644); err != nil {
		t.Fatalf("write pairs file: %v", err)
	}
	return path
}

func TestLoadPairsSkipsDisabled(t *testing.T) {
	pairs, err := LoadPairs(writePairsFile(t))
	if err != nil {
		t.Fatalf("LoadPairs: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("loaded %d pairs, want 2 enabled", len(pairs))
	}
	for _, p := range pairs {
		if p.Epic == "USDJPY" {
			t.Fatal("disabled pair was loaded")
		}
	}
}

func TestApplyPairsOverridesUniverse(t *testing.T) {
	pairs, err := LoadPairs(writePairsFile(t))
	if err != nil {
		t.Fatalf("LoadPairs: %v", err)
	}

	cfg := &Config{Symbols: []string{"XAUUSD"}, Timeframes: []string{"5m"}}
	cfg.ApplyPairs(pairs)

	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "EURUSD" || cfg.Symbols[1] != "GBPUSD" {
		t.Fatalf("symbols not replaced: %v", cfg.Symbols)
	}
	if len(cfg.Timeframes) != 2 {
		t.Fatalf("timeframes not unioned: %v", cfg.Timeframes)
	}
}

func TestApplyPairsEmptyKeepsDefaults(t *testing.T) {
	cfg := &Config{Symbols: []string{"EURUSD"}, Timeframes: []string{"1m"}}
	cfg.ApplyPairs(nil)
	if len(cfg.Symbols) != 1 || len(cfg.Timeframes) != 1 {
		t.Fatalf("empty pairs mutated config: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadPairs(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing pairs file")
	}
}
