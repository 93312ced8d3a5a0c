package generate

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Handler produces the text for one simulated request.
type Handler func(req Request) (string, error)

// Simulated is a deterministic offline provider. Handlers are registered per
// feature; features without a handler get an empty JSON object.
type Simulated struct {
	mu       sync.Mutex
	handlers map[Feature]Handler
	calls    map[Feature]int
}

// NewSimulated creates a Simulated provider.
func NewSimulated() *Simulated {
	return &Simulated{handlers: make(map[Feature]Handler), calls: make(map[Feature]int)}
}

// Handle registers the handler for a feature.
func (s *Simulated) Handle(f Feature, h Handler) *Simulated {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[f] = h
	return s
}

// Calls reports how many requests a feature has received.
func (s *Simulated) Calls(f Feature) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[f]
}

func (s *Simulated) Name() string { return "simulated" }

// Generate implements Provider.
func (s *Simulated) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls[req.Feature]++
	h := s.handlers[req.Feature]
	s.mu.Unlock()

	text := "{}"
	if h != nil {
		var err error
		if text, err = h(req); err != nil {
			return nil, eris.Wrap(err, "simulated")
		}
	}
	return &Response{
		Text:     text,
		Provider: s.Name(),
		Model:    "simulated",
		Usage: Usage{
			InputTokens:  int64(len(req.System)+len(req.Prompt)) / 4,
			OutputTokens: int64(len(text)) / 4,
		},
	}, nil
}
