// Package tts contains the synthesis engine adapters. Each engine hides one
// provider's wire protocol behind the Engine interface; transport failures
// and provider soft errors both surface as *ProviderError.
package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Request carries the finalized text and resolved voice for one synthesis.
type Request struct {
	// Text is the final text to speak, style variant already applied.
	Text string
	// Voice is the public catalog voice name.
	Voice string
	// ModelID is the provider-specific model identifier from the catalog.
	ModelID string
}

// Result is the provider-agnostic synthesis outcome.
type Result struct {
	Audio        []byte
	ContentType  string
	ModelUsed    string
	PredictionID string
}

// Engine produces audio for a synthesis request.
type Engine interface {
	Synthesize(ctx context.Context, req Request) (*Result, error)
}

// ProviderError normalises provider failures, including soft errors returned
// inside 2xx response bodies.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// QuotaExceeded reports whether the failure was an upstream rate/quota limit.
func (e *ProviderError) QuotaExceeded() bool {
	return e != nil && e.StatusCode == http.StatusTooManyRequests
}

// IsQuotaExceeded reports whether err is a provider quota failure.
func IsQuotaExceeded(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.QuotaExceeded()
}

const defaultHTTPTimeout = 5 * time.Minute

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}
