package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"timekill-backend/internal/models"
)

// Detector returns the probability that a text is AI-generated.
type Detector interface {
	Detect(ctx context.Context, text string) (models.DetectionResult, error)
}

// SaplingClient calls the Sapling AI-detection endpoint.
type SaplingClient struct {
	httpClient *http.Client
	apiKey     string
	endpoint   string
}

func NewSaplingClient(apiKey, endpoint string) *SaplingClient {
	return &SaplingClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiKey:     apiKey,
		endpoint:   endpoint,
	}
}

func (c *SaplingClient) Detect(ctx context.Context, text string) (models.DetectionResult, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("failed to encode detection request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("failed to build detection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	// Transport failures carry the same typed error as bad statuses so
	// callers can map every detection outage the same way.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.DetectionResult{}, &DetectionError{Body: fmt.Sprintf("detection request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.DetectionResult{}, &DetectionError{Status: resp.StatusCode, Body: fmt.Sprintf("failed to read detection response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.DetectionResult{}, &DetectionError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.DetectionResult{}, &DetectionError{Status: resp.StatusCode, Body: string(body)}
	}

	return models.DetectionResult{Score: parsed.Score, Text: text}, nil
}
