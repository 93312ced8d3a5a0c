package search

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Multi fans a query out to several searchers and merges the hits, first
// searcher first, dropping repeated URLs. It fails only when every
// searcher fails.
type Multi struct {
	searchers []Searcher
}

// NewMulti creates a Multi. With one searcher, use that searcher directly.
func NewMulti(searchers ...Searcher) *Multi {
	return &Multi{searchers: searchers}
}

func (m *Multi) Name() string { return "multi" }

// Search implements Searcher.
func (m *Multi) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	if len(m.searchers) == 0 {
		return nil, eris.New("search: no searchers configured")
	}

	results := make([]*Response, len(m.searchers))
	errs := make([]error, len(m.searchers))
	var g errgroup.Group
	for i, s := range m.searchers {
		g.Go(func() error {
			results[i], errs[i] = s.Search(ctx, query, opts)
			return nil
		})
	}
	_ = g.Wait()

	out := &Response{}
	seen := make(map[string]bool)
	var firstErr error
	for i, r := range results {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			zap.L().Warn("search: provider failed",
				zap.String("provider", m.searchers[i].Name()),
				zap.String("query", query),
				zap.Error(errs[i]),
			)
			continue
		}
		if r == nil {
			continue
		}
		out.Providers = append(out.Providers, r.Providers...)
		out.TotalResults += r.TotalResults
		for _, h := range r.Results {
			if seen[h.URL] {
				continue
			}
			seen[h.URL] = true
			out.Results = append(out.Results, h)
		}
	}
	if len(out.Providers) == 0 {
		if firstErr == nil {
			firstErr = eris.New("search: no results")
		}
		return nil, eris.Wrap(firstErr, "search: all providers failed")
	}
	return out, nil
}
