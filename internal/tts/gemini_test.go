package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func geminiAudioResponse(t *testing.T, pcm []byte) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{{
			"content": map[string]interface{}{
				"parts": []map[string]interface{}{{
					"inlineData": map[string]string{
						"mimeType": "audio/L16;codec=pcm;rate=24000",
						"data":     base64.StdEncoding.EncodeToString(pcm),
					},
				}},
			},
		}},
	})
	require.NoError(t, err)
	return body
}

func TestGeminiSynthesizeWrapsPCM(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/model-a:generateContent", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var payload geminiGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "hello", payload.Contents[0].Parts[0].Text)
		// Prebuilt voice names are capitalised on the wire.
		require.Equal(t, "Kore",
			payload.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(geminiAudioResponse(t, pcm))
	}))
	defer server.Close()

	engine, err := NewGeminiEngine(GeminiConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	result, err := engine.Synthesize(context.Background(), Request{
		Text:    "hello",
		Voice:   "kore",
		ModelID: "model-a",
	})
	require.NoError(t, err)
	require.Equal(t, "model-a", result.ModelUsed)
	require.Equal(t, "audio/wav", result.ContentType)
	require.Equal(t, "RIFF", string(result.Audio[:4]))
	require.Equal(t, pcm, result.Audio[44:])
}

func TestGeminiSynthesizeFallsBackExactlyOnce(t *testing.T) {
	var primaryCalls, fallbackCalls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "model-a"):
			primaryCalls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"code":500,"message":"model overloaded"}}`))
		case strings.Contains(r.URL.Path, "model-b"):
			fallbackCalls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(geminiAudioResponse(t, []byte{0x0a, 0x0b}))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer server.Close()

	engine, err := NewGeminiEngine(GeminiConfig{
		APIKey:          "test-key",
		BaseURL:         server.URL,
		FallbackModelID: "model-b",
	})
	require.NoError(t, err)

	result, err := engine.Synthesize(context.Background(), Request{
		Text:    "hello",
		Voice:   "kore",
		ModelID: "model-a",
	})
	require.NoError(t, err)
	require.Equal(t, "model-b", result.ModelUsed)
	require.Equal(t, int32(1), primaryCalls.Load())
	require.Equal(t, int32(1), fallbackCalls.Load())
}

func TestGeminiSynthesizeBothModelsFail(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	}))
	defer server.Close()

	engine, err := NewGeminiEngine(GeminiConfig{
		APIKey:          "test-key",
		BaseURL:         server.URL,
		FallbackModelID: "model-b",
	})
	require.NoError(t, err)

	_, err = engine.Synthesize(context.Background(), Request{
		Text:    "hello",
		Voice:   "kore",
		ModelID: "model-a",
	})
	require.Error(t, err)
	require.True(t, IsQuotaExceeded(err))
	// Primary plus fallback, never a third attempt.
	require.Equal(t, int32(2), calls.Load())
}

func TestGeminiSynthesizeSoftErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// 200 with an error object in the body still fails the call.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"unsupported voice"}}`))
	}))
	defer server.Close()

	engine, err := NewGeminiEngine(GeminiConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = engine.Synthesize(context.Background(), Request{Text: "hello", Voice: "kore", ModelID: "model-a"})

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, "gemini", providerErr.Provider)
	require.Equal(t, "unsupported voice", providerErr.Message)
}

func TestGeminiSynthesizeMissingAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"no audio here"}]}}]}`))
	}))
	defer server.Close()

	engine, err := NewGeminiEngine(GeminiConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = engine.Synthesize(context.Background(), Request{Text: "hello", Voice: "kore", ModelID: "model-a"})

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Contains(t, providerErr.Message, "no audio data")
}

func TestNewGeminiEngineRequiresAPIKey(t *testing.T) {
	_, err := NewGeminiEngine(GeminiConfig{})
	require.Error(t, err)
}
