package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parakeet-ai/parakeet/pkg/logger"
	"github.com/parakeet-ai/parakeet/pkg/metrics"
)

const (
	defaultReplicateBaseURL = "https://api.replicate.com/v1"
	replicatePollInterval   = 2 * time.Second
)

// ReplicateConfig configures the prediction-run engine.
type ReplicateConfig struct {
	APIToken string
	// BaseURL overrides the provider endpoint, primarily for tests.
	BaseURL string
	Timeout time.Duration
	// PollInterval controls how often pending predictions are re-checked.
	PollInterval time.Duration
}

// ReplicateEngine submits a prediction run and polls it to completion. The
// caller's context cancels the poll loop, and a best-effort cancel request is
// sent upstream so an aborted HTTP request stops the remote job.
type ReplicateEngine struct {
	cfg    ReplicateConfig
	client *http.Client
	log    *zap.Logger
}

var _ Engine = (*ReplicateEngine)(nil)

// NewReplicateEngine constructs the engine. The API token is required.
func NewReplicateEngine(cfg ReplicateConfig) (*ReplicateEngine, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, fmt.Errorf("replicate engine: api token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultReplicateBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = replicatePollInterval
	}

	return &ReplicateEngine{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout),
		log:    logger.WithModule("tts.replicate"),
	}, nil
}

type replicatePrediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	// Output is a URL string or a list of URL strings depending on the model.
	Output json.RawMessage `json:"output"`
	// Error is populated inside 2xx bodies when the run itself failed.
	Error *string `json:"error"`
	URLs  struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

// Synthesize submits {text, voice} to the voice's model and downloads the
// resulting audio stream.
func (e *ReplicateEngine) Synthesize(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.SynthesisDuration.WithLabelValues("replicate").Observe(time.Since(start).Seconds())
	}()

	prediction, err := e.create(ctx, req)
	if err != nil {
		return nil, err
	}

	prediction, err = e.wait(ctx, prediction)
	if err != nil {
		return nil, err
	}

	// A completed prediction can still carry a soft error in the body.
	if prediction.Error != nil && *prediction.Error != "" {
		return nil, &ProviderError{Provider: "replicate", Message: *prediction.Error}
	}
	if prediction.Status != "succeeded" {
		return nil, &ProviderError{
			Provider: "replicate",
			Message:  fmt.Sprintf("prediction finished with status %q", prediction.Status),
		}
	}

	outputURL, err := extractOutputURL(prediction.Output)
	if err != nil {
		return nil, err
	}

	data, contentType, err := e.download(ctx, outputURL)
	if err != nil {
		return nil, err
	}

	return &Result{
		Audio:        data,
		ContentType:  contentType,
		ModelUsed:    req.ModelID,
		PredictionID: prediction.ID,
	}, nil
}

func (e *ReplicateEngine) create(ctx context.Context, req Request) (*replicatePrediction, error) {
	payload := map[string]interface{}{
		"input": map[string]string{
			"text":  req.Text,
			"voice": req.Voice,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("replicate engine: marshal request: %w", err)
	}

	// Model identifiers without a pinned version go through the models
	// endpoint; "owner/name:version" pins go through /predictions.
	var url string
	if owner, rest, found := strings.Cut(req.ModelID, "/"); found && !strings.Contains(rest, ":") {
		url = fmt.Sprintf("%s/models/%s/%s/predictions", e.cfg.BaseURL, owner, rest)
	} else {
		url = e.cfg.BaseURL + "/predictions"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("replicate engine: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIToken)
	httpReq.Header.Set("Prefer", "wait=60")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "replicate", Message: err.Error()}
	}
	defer resp.Body.Close()

	return decodePrediction(resp)
}

// wait polls the prediction until it reaches a terminal state. Context
// cancellation aborts the wait and fires a best-effort upstream cancel.
func (e *ReplicateEngine) wait(ctx context.Context, prediction *replicatePrediction) (*replicatePrediction, error) {
	for !terminalStatus(prediction.Status) {
		if prediction.URLs.Get == "" {
			return nil, &ProviderError{Provider: "replicate", Message: "prediction missing poll URL"}
		}

		select {
		case <-ctx.Done():
			e.cancel(prediction)
			return nil, ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, prediction.URLs.Get, nil)
		if err != nil {
			return nil, fmt.Errorf("replicate engine: build poll request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIToken)

		resp, err := e.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				e.cancel(prediction)
				return nil, ctx.Err()
			}
			return nil, &ProviderError{Provider: "replicate", Message: err.Error()}
		}

		prediction, err = decodePrediction(resp)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
	}
	return prediction, nil
}

// cancel notifies the provider that the run is no longer wanted. Runs on a
// detached context because the request context is already done.
func (e *ReplicateEngine) cancel(prediction *replicatePrediction) {
	if prediction == nil || prediction.URLs.Cancel == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, prediction.URLs.Cancel, nil)
	if err != nil {
		return
	}
	httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIToken)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		e.log.Warn("prediction cancel failed", zap.String("prediction_id", prediction.ID), zap.Error(err))
		return
	}
	resp.Body.Close()
}

func (e *ReplicateEngine) download(ctx context.Context, url string) ([]byte, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("replicate engine: build download request: %w", err)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, "", &ProviderError{Provider: "replicate", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &ProviderError{
			Provider:   "replicate",
			StatusCode: resp.StatusCode,
			Message:    "output download failed",
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &ProviderError{Provider: "replicate", Message: err.Error()}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return data, contentType, nil
}

func decodePrediction(resp *http.Response) (*replicatePrediction, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: "replicate", Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := strings.TrimSpace(string(raw))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, &ProviderError{Provider: "replicate", StatusCode: resp.StatusCode, Message: message}
	}

	var prediction replicatePrediction
	if err := json.Unmarshal(raw, &prediction); err != nil {
		return nil, &ProviderError{Provider: "replicate", Message: "unparseable prediction response"}
	}
	return &prediction, nil
}

func terminalStatus(status string) bool {
	switch status {
	case "succeeded", "failed", "canceled":
		return true
	default:
		return false
	}
}

func extractOutputURL(output json.RawMessage) (string, error) {
	if len(output) == 0 {
		return "", &ProviderError{Provider: "replicate", Message: "prediction produced no output"}
	}

	var single string
	if err := json.Unmarshal(output, &single); err == nil && single != "" {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(output, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}

	return "", &ProviderError{Provider: "replicate", Message: "unrecognised prediction output shape"}
}
