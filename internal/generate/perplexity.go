package generate

import (
	"context"

	"github.com/sells-group/signal-hunter/pkg/perplexity"
)

// PerplexityProvider calls Perplexity chat completions. Its answers are
// web-grounded, which suits it as the fallback for evaluations.
type PerplexityProvider struct {
	client perplexity.Client
	model  string
}

// NewPerplexityProvider creates a PerplexityProvider. An empty model uses
// the client's default.
func NewPerplexityProvider(client perplexity.Client, model string) *PerplexityProvider {
	return &PerplexityProvider{client: client, model: model}
}

func (p *PerplexityProvider) Name() string { return "perplexity" }

// Generate implements Provider. Schemas are passed as response_format.
func (p *PerplexityProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]perplexity.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: req.Prompt})

	cr := perplexity.ChatCompletionRequest{
		Model:       p.model,
		Messages:    msgs,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		n := int(req.MaxTokens)
		cr.MaxTokens = &n
	}
	if len(req.Schema) > 0 {
		cr.ResponseFormat = &perplexity.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: perplexity.JSONSchema{Schema: req.Schema},
		}
	}

	resp, err := p.client.ChatCompletion(ctx, cr)
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:     resp.Text(),
		Provider: p.Name(),
		Model:    resp.Model,
		Usage: Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}, nil
}
