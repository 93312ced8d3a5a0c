package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-hunter/internal/resilience"
	"github.com/sells-group/signal-hunter/pkg/jina"
)

// JinaAdapter reads pages through Jina Reader. A breaker skips Jina for a
// while after repeated failures so the chain falls through quickly.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.Breaker
}

// NewJinaAdapter opens after 3 consecutive failures for 60s.
func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{
		client:  client,
		breaker: resilience.NewBreaker("jina_reader", resilience.BreakerConfig{FailureThreshold: 3, Cooldown: 60 * time.Second}),
	}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports is false while the breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return j.breaker.State() != resilience.StateOpen
}

// Scrape reads a URL and rejects empty or challenge pages.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	return resilience.Call(ctx, j.breaker, func(ctx context.Context) (*Page, error) {
		resp, err := j.client.Read(ctx, targetURL)
		if err != nil {
			return nil, err
		}
		if needsFallback(resp) {
			return nil, eris.Errorf("jina: unusable content for %s", targetURL)
		}
		u := resp.Data.URL
		if u == "" {
			u = targetURL
		}
		return &Page{
			URL:        u,
			Title:      resp.Data.Title,
			Markdown:   resp.Data.Content,
			StatusCode: 200,
			Source:     "jina",
			FetchedAt:  time.Now().UTC(),
		}, nil
	})
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
}

// needsFallback reports whether a Reader response is empty or an anti-bot page.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}
	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}
	if len(content) < 1000 {
		lower := strings.ToLower(content)
		for _, sig := range challengeSignatures {
			if strings.Contains(lower, sig) {
				return true
			}
		}
	}
	return false
}
