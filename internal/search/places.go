package search

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/pkg/google"
)

// placesMaxPage is the Text Search page size ceiling.
const placesMaxPage = 20

// PlacesSearcher finds local businesses through Google Places Text Search.
// Places without a website are dropped since nothing downstream can use them.
type PlacesSearcher struct {
	client  google.Client
	limiter *rate.Limiter
}

// NewPlacesSearcher creates a PlacesSearcher. ratePerSec <= 0 disables limiting.
func NewPlacesSearcher(client google.Client, ratePerSec float64) *PlacesSearcher {
	s := &PlacesSearcher{client: client}
	if ratePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return s
}

func (s *PlacesSearcher) Name() string { return "places" }

// Search implements Searcher.
func (s *PlacesSearcher) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	size := opts.MaxResults
	if size <= 0 || size > placesMaxPage {
		size = placesMaxPage
	}

	resp, err := s.client.TextSearch(ctx, google.TextSearchRequest{
		TextQuery:    query,
		PageSize:     size,
		LanguageCode: "en",
	})
	if err != nil {
		return nil, err
	}

	hits := make([]model.SearchHit, 0, len(resp.Places))
	for _, p := range resp.Places {
		if p.WebsiteURI == "" {
			continue
		}
		hits = append(hits, model.SearchHit{
			Title:   p.DisplayName.Text,
			URL:     p.WebsiteURI,
			Snippet: placeSnippet(p),
		})
	}
	total := len(hits)
	hits = capResults(filterDomains(hits, opts.IncludeDomains, opts.ExcludeDomains), opts.MaxResults)
	return &Response{Results: hits, TotalResults: total, Providers: []string{s.Name()}}, nil
}

func placeSnippet(p google.Place) string {
	parts := make([]string, 0, 3)
	if p.PrimaryTypeDisplayName.Text != "" {
		parts = append(parts, p.PrimaryTypeDisplayName.Text)
	}
	if p.FormattedAddress != "" {
		parts = append(parts, p.FormattedAddress)
	}
	if p.UserRatingCount > 0 {
		parts = append(parts, fmt.Sprintf("%.1f stars (%d reviews)", p.Rating, p.UserRatingCount))
	}
	return strings.Join(parts, " · ")
}
