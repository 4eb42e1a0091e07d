package app

import (
	"strings"

	"github.com/parakeet-ai/parakeet/internal/tts"
)

// GeminiEngineConfig converts the provider settings into the tts package representation.
func (p ProviderConfig) GeminiEngineConfig() tts.GeminiConfig {
	return tts.GeminiConfig{
		APIKey:          strings.TrimSpace(p.Gemini.APIKey),
		BaseURL:         strings.TrimSpace(p.Gemini.BaseURL),
		FallbackModelID: strings.TrimSpace(p.Gemini.FallbackModel),
		Timeout:         p.Gemini.Timeout,
	}
}

// ReplicateEngineConfig converts the provider settings into the tts package representation.
func (p ProviderConfig) ReplicateEngineConfig() tts.ReplicateConfig {
	return tts.ReplicateConfig{
		APIToken:     strings.TrimSpace(p.Replicate.APIToken),
		BaseURL:      strings.TrimSpace(p.Replicate.BaseURL),
		Timeout:      p.Replicate.Timeout,
		PollInterval: p.Replicate.PollInterval,
	}
}
