package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-hunter/pkg/firecrawl"
)

// FirecrawlAdapter is the paid last-resort scraper.
type FirecrawlAdapter struct {
	client firecrawl.Client
}

// NewFirecrawlAdapter creates a FirecrawlAdapter from a Firecrawl client.
func NewFirecrawlAdapter(client firecrawl.Client) *FirecrawlAdapter {
	return &FirecrawlAdapter{client: client}
}

func (f *FirecrawlAdapter) Name() string { return "firecrawl" }

func (f *FirecrawlAdapter) Supports(_ string) bool { return true }

// Scrape fetches a single URL, main content only.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:             targetURL,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
		TimeoutMs:       30000,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Data.Markdown) == "" {
		return nil, eris.Errorf("firecrawl: empty page %s", targetURL)
	}
	u := resp.Data.Metadata.SourceURL
	if u == "" {
		u = targetURL
	}
	return &Page{
		URL:        u,
		Title:      resp.Data.Metadata.Title,
		Markdown:   resp.Data.Markdown,
		StatusCode: resp.Data.Metadata.StatusCode,
		Source:     "firecrawl",
		FetchedAt:  time.Now().UTC(),
	}, nil
}
