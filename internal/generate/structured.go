package generate

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrInvalidOutput means the model never produced a value matching the schema.
var ErrInvalidOutput = eris.New("generate: output failed validation")

// Validator is implemented by structured outputs that check their own fields.
type Validator interface {
	Validate() error
}

// GenerateStructured asks for JSON matching schema and decodes it into T.
// Output that does not parse or validate is re-requested with the same
// prompt, up to attempts times in total. Transport errors return at once;
// the Generator has already retried those.
func GenerateStructured[T any](ctx context.Context, g Generator, req Request, schema json.RawMessage, attempts int) (T, *Response, error) {
	var zero T
	if attempts <= 0 {
		attempts = 1
	}
	req.Schema = schema

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := g.Generate(ctx, req)
		if err != nil {
			return zero, nil, err
		}

		var out T
		if err := json.Unmarshal([]byte(cleanJSON(resp.Text)), &out); err != nil {
			lastErr = eris.Wrap(err, "decode")
		} else if v, ok := any(&out).(Validator); ok {
			lastErr = v.Validate()
		} else {
			lastErr = nil
		}
		if lastErr == nil {
			return out, resp, nil
		}

		zap.L().Debug("generate: structured output rejected",
			zap.String("feature", string(req.Feature)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return zero, nil, eris.Wrapf(ErrInvalidOutput, "%s: %v", req.Feature, lastErr)
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or prose around it.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
