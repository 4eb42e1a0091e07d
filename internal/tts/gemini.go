package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parakeet-ai/parakeet/internal/tts/audio"
	"github.com/parakeet-ai/parakeet/pkg/logger"
	"github.com/parakeet-ai/parakeet/pkg/metrics"
)

const (
	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	geminiFallbackModelID = "gemini-2.5-flash-preview-tts"
)

// GeminiConfig configures the hosted generative model engine.
type GeminiConfig struct {
	APIKey string
	// BaseURL overrides the provider endpoint, primarily for tests.
	BaseURL string
	// FallbackModelID is tried exactly once when the primary model fails.
	FallbackModelID string
	Timeout         time.Duration
}

// GeminiEngine synthesizes speech through the generateContent API with an
// audio response modality. A failing primary model is retried exactly once
// on the fallback model before the error is surfaced.
type GeminiEngine struct {
	cfg    GeminiConfig
	client *http.Client
	log    *zap.Logger
}

var _ Engine = (*GeminiEngine)(nil)

// NewGeminiEngine constructs the engine. The API key is required.
func NewGeminiEngine(cfg GeminiConfig) (*GeminiEngine, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini engine: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.FallbackModelID == "" {
		cfg.FallbackModelID = geminiFallbackModelID
	}

	return &GeminiEngine{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout),
		log:    logger.WithModule("tts.gemini"),
	}, nil
}

type geminiGenerateRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	SpeechConfig       geminiSpeechConfig `json:"speechConfig"`
}

type geminiSpeechConfig struct {
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Synthesize calls the primary model and falls back to the secondary model
// variant on failure. A second failure is surfaced without further retries.
func (e *GeminiEngine) Synthesize(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.SynthesisDuration.WithLabelValues("gemini").Observe(time.Since(start).Seconds())
	}()

	modelUsed := req.ModelID
	result, err := e.generate(ctx, modelUsed, req)
	if err == nil {
		result.ModelUsed = modelUsed
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	e.log.Warn("primary model failed, retrying with fallback",
		zap.String("model", modelUsed),
		zap.String("fallback", e.cfg.FallbackModelID),
		zap.Error(err),
	)
	metrics.EngineFallbacks.WithLabelValues("gemini").Inc()

	modelUsed = e.cfg.FallbackModelID
	result, err = e.generate(ctx, modelUsed, req)
	if err != nil {
		return nil, err
	}
	result.ModelUsed = modelUsed
	return result, nil
}

func (e *GeminiEngine) generate(ctx context.Context, modelID string, req Request) (*Result, error) {
	payload := geminiGenerateRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Text}}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: geminiSpeechConfig{
				VoiceConfig: geminiVoiceConfig{
					PrebuiltVoiceConfig: geminiPrebuiltVoice{
						VoiceName: capitalize(req.Voice),
					},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gemini engine: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", e.cfg.BaseURL, modelID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini engine: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", e.cfg.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Message: err.Error()}
	}

	var decoded geminiGenerateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &ProviderError{
			Provider:   "gemini",
			StatusCode: resp.StatusCode,
			Message:    "unparseable response",
		}
	}

	if resp.StatusCode != http.StatusOK || decoded.Error != nil {
		message := http.StatusText(resp.StatusCode)
		status := resp.StatusCode
		if decoded.Error != nil {
			message = decoded.Error.Message
			if decoded.Error.Code != 0 {
				status = decoded.Error.Code
			}
		}
		return nil, &ProviderError{Provider: "gemini", StatusCode: status, Message: message}
	}

	inline := firstInlineData(decoded)
	if inline == nil || inline.Data == "" {
		return nil, &ProviderError{Provider: "gemini", Message: "no audio data in response"}
	}

	pcm, err := base64.StdEncoding.DecodeString(inline.Data)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Message: "invalid base64 audio data"}
	}

	return &Result{
		Audio:       audio.WrapPCM(pcm, inline.MimeType),
		ContentType: "audio/wav",
	}, nil
}

func firstInlineData(resp geminiGenerateResponse) *geminiInlineData {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil {
				return part.InlineData
			}
		}
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
