// Package analytics provides the fire-and-forget telemetry sink. Events are
// emitted from the outbox dispatcher, never from the request path.
package analytics

import "context"

// Event is one product analytics capture.
type Event struct {
	DistinctID string                 `json:"distinct_id"`
	Name       string                 `json:"event"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Sink delivers events to an analytics backend. Implementations must treat
// delivery as best-effort; callers log and move on when Capture fails.
type Sink interface {
	Capture(ctx context.Context, event Event) error
}

// NopSink discards all events. Used when analytics is not configured.
type NopSink struct{}

// Capture implements Sink.
func (NopSink) Capture(context.Context, Event) error { return nil }
