// Package generate abstracts language-model calls behind a Provider
// interface and routes each pipeline feature to a provider with fallback.
package generate

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Feature names a pipeline stage that calls a model. Routing is per feature.
type Feature string

const (
	FeatureCandidateExtraction Feature = "candidate_extraction"
	FeatureSignalEvaluation    Feature = "signal_evaluation"
)

// ErrNoProvider means no usable generation provider is configured.
var ErrNoProvider = eris.New("generate: no provider configured")

// Request is one prompt.
type Request struct {
	Feature     Feature
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature *float64
	// Schema, when set, asks for JSON matching this JSON Schema document.
	Schema json.RawMessage
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
}

// Response is the model output.
type Response struct {
	Text     string
	Provider string
	Model    string
	Usage    Usage
	CostUSD  float64
}

// Provider is one model vendor.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Generator is what the pipeline calls. Router and Metered implement it.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Metered wraps a Generator and reports every successful response to fn.
// A run uses it to accumulate tokens and cost without sharing state across runs.
type Metered struct {
	Next Generator
	Fn   func(*Response)
}

// Generate implements Generator.
func (m Metered) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := m.Next.Generate(ctx, req)
	if err == nil && resp != nil && m.Fn != nil {
		m.Fn(resp)
	}
	return resp, err
}
