package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnalyzeDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Symbol     string   `json:"symbol"`
			Timeframes []string `json:"timeframes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Symbol != "EURUSD" || len(req.Timeframes) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Write([]byte(`{
			"signal": "BUY",
			"confidence": 0.85,
			"analysis": "breakout above resistance",
			"risk_assessment": {"stop_loss": 1.0950, "take_profit": 1.1100, "risk_reward_ratio": 2.5}
		}`))
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL)
	res, err := a.Analyze(context.Background(), "EURUSD", []string{"15m", "1h"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.Signal != SignalBuy || res.Confidence != 0.85 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Risk.StopLoss != 1.0950 || res.Risk.TakeProfit != 1.1100 {
		t.Fatalf("unexpected risk levels: %+v", res.Risk)
	}
	if res.Epic != "EURUSD" {
		t.Fatalf("epic=%q, expected EURUSD", res.Epic)
	}
	if res.Timestamp.IsZero() {
		t.Fatal("timestamp not defaulted")
	}
}

func TestAnalyzeRejectsOutOfRangeConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"signal":"SELL","confidence":1.7}`))
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL)
	if _, err := a.Analyze(context.Background(), "EURUSD", []string{"1h"}); err == nil {
		t.Fatal("expected error for confidence outside [0,1]")
	}
}

func TestAnalyzeSurfacesServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL)
	if _, err := a.Analyze(context.Background(), "EURUSD", []string{"1h"}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
