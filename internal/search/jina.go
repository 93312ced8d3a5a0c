package search

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/pkg/jina"
)

// JinaSearcher searches the open web through Jina Search.
type JinaSearcher struct {
	client jina.Client
}

// NewJinaSearcher creates a JinaSearcher.
func NewJinaSearcher(client jina.Client) *JinaSearcher {
	return &JinaSearcher{client: client}
}

func (s *JinaSearcher) Name() string { return "jina" }

// Search implements Searcher. A single include domain becomes a site filter;
// other domain lists are applied to the results. Advanced depth asks for twice
// as many results to leave room for filtering.
func (s *JinaSearcher) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	var jopts []jina.SearchOption
	if len(opts.IncludeDomains) == 1 {
		jopts = append(jopts, jina.WithSiteFilter(model.NormalizeDomain(opts.IncludeDomains[0])))
	}
	count := opts.MaxResults
	if opts.SearchDepth == "advanced" && count > 0 {
		count *= 2
	}
	if count > 0 {
		jopts = append(jopts, jina.WithCount(count))
	}

	resp, err := s.client.Search(ctx, query, jopts...)
	if err != nil {
		return nil, err
	}

	hits := make([]model.SearchHit, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.URL == "" {
			continue
		}
		snippet := r.Description
		if snippet == "" {
			snippet = truncate(r.Content, 500)
		}
		hits = append(hits, model.SearchHit{
			Title:         r.Title,
			URL:           r.URL,
			Snippet:       snippet,
			PublishedDate: parseDate(r.Date),
		})
	}
	total := len(hits)
	hits = capResults(filterDomains(hits, opts.IncludeDomains, opts.ExcludeDomains), opts.MaxResults)
	return &Response{Results: hits, TotalResults: total, Providers: []string{s.Name()}}, nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "Jan 2, 2006", "January 2, 2006"}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "…"
}
