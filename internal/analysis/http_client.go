package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPAnalyzer calls the external analysis service over JSON.
type HTTPAnalyzer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPAnalyzer builds a client for the analysis service.
func NewHTTPAnalyzer(baseURL string) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Analyze requests a chart analysis for one epic.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, epic string, timeframes []string) (*Result, error) {
	body, err := json.Marshal(map[string]any{
		"symbol":     epic,
		"timeframes": timeframes,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis service status %d", res.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	result.Epic = epic
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, fmt.Errorf("analysis confidence %v out of range", result.Confidence)
	}
	return &result, nil
}
