package generate

import (
	"context"
	"strings"

	"github.com/sells-group/signal-hunter/pkg/anthropic"
)

// AnthropicProvider calls Claude through the Messages API. The signal
// evaluation system prompt is cached; every evaluation in a run shares it.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider creates an AnthropicProvider.
func NewAnthropicProvider(client anthropic.Client, model string, maxTokens int64) *AnthropicProvider {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicProvider{client: client, model: model, maxTokens: maxTokens}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Generate implements Provider. A schema is appended to the system prompt
// since the Messages API has no native JSON mode.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	system := req.System
	if len(req.Schema) > 0 {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object matching this JSON Schema and nothing else:\n" + string(req.Schema))
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	mr := anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	if req.Feature == FeatureSignalEvaluation {
		mr.System = anthropic.CachedSystem(system)
	} else {
		mr.System = anthropic.PlainSystem(system)
	}

	resp, err := p.client.CreateMessage(ctx, mr)
	if err != nil {
		return nil, err
	}
	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &Response{
		Text:     resp.Text(),
		Provider: p.Name(),
		Model:    model,
		Usage: Usage{
			InputTokens:      resp.Usage.InputTokens,
			OutputTokens:     resp.Usage.OutputTokens,
			CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:  resp.Usage.CacheReadInputTokens,
		},
	}, nil
}
