package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrExcluded is returned for URLs the path matcher rejects.
var ErrExcluded = eris.New("scrape: url excluded")

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	matcher  *PathMatcher
	scrapers []Scraper
}

// NewChain creates a Chain. Scrapers are tried in the given order.
func NewChain(matcher *PathMatcher, scrapers ...Scraper) *Chain {
	if matcher == nil {
		matcher = NewPathMatcher(nil)
	}
	return &Chain{matcher: matcher, scrapers: scrapers}
}

// Names lists the scrapers in order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.scrapers))
	for i, s := range c.scrapers {
		out[i] = s.Name()
	}
	return out
}

// Fetch implements Fetcher.
func (c *Chain) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if c.matcher.IsExcluded(targetURL) {
		return nil, eris.Wrapf(ErrExcluded, "%s", targetURL)
	}

	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		page, err := s.Scrape(ctx, targetURL)
		if err == nil && page != nil {
			return page, nil
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}
