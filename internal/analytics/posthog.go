package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultPostHogHost = "https://us.i.posthog.com"

// PostHogConfig configures the HTTP capture client.
type PostHogConfig struct {
	APIKey  string
	Host    string
	Timeout time.Duration
}

// PostHogSink posts capture events to the PostHog ingestion endpoint.
type PostHogSink struct {
	cfg    PostHogConfig
	client *http.Client
}

var _ Sink = (*PostHogSink)(nil)

// NewPostHogSink constructs a sink. The API key is required.
func NewPostHogSink(cfg PostHogConfig) (*PostHogSink, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("analytics: posthog api key is required")
	}
	if cfg.Host == "" {
		cfg.Host = defaultPostHogHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &PostHogSink{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type captureRequest struct {
	APIKey     string                 `json:"api_key"`
	Event      string                 `json:"event"`
	DistinctID string                 `json:"distinct_id"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Capture posts a single event.
func (s *PostHogSink) Capture(ctx context.Context, event Event) error {
	payload := captureRequest{
		APIKey:     s.cfg.APIKey,
		Event:      event.Name,
		DistinctID: event.DistinctID,
		Properties: event.Properties,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("analytics: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Host+"/i/v0/e/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("analytics: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("analytics: capture: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("analytics: capture returned status %d", resp.StatusCode)
	}
	return nil
}
