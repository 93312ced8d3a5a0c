// Package search runs web searches through interchangeable providers.
package search

import (
	"context"

	"github.com/sells-group/signal-hunter/internal/model"
)

// Options narrows a search.
type Options struct {
	MaxResults     int
	SearchDepth    string // "basic" or "advanced"
	IncludeDomains []string
	ExcludeDomains []string
}

// Response holds the hits for one query.
type Response struct {
	Results      []model.SearchHit
	TotalResults int
	// Providers lists every provider that answered, for cost accounting.
	Providers []string
}

// Searcher runs one query against one backend.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) (*Response, error)
}

// filterDomains applies include/exclude lists to hits.
func filterDomains(hits []model.SearchHit, include, exclude []string) []model.SearchHit {
	if len(include) == 0 && len(exclude) == 0 {
		return hits
	}
	out := hits[:0:0]
	for _, h := range hits {
		if len(include) > 0 && !matchesAny(h.URL, include) {
			continue
		}
		if matchesAny(h.URL, exclude) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func matchesAny(u string, domains []string) bool {
	for _, d := range domains {
		if model.DomainMatches(u, d) {
			return true
		}
	}
	return false
}

func capResults(hits []model.SearchHit, n int) []model.SearchHit {
	if n > 0 && len(hits) > n {
		return hits[:n]
	}
	return hits
}
