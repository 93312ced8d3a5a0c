// Package scrape fetches candidate web pages through an ordered chain of
// scrapers: plain HTTP first, then Jina Reader, then Firecrawl.
package scrape

import (
	"context"
	"time"
)

// Page is one fetched page rendered as markdown or plain text.
type Page struct {
	URL        string
	Title      string
	Markdown   string
	StatusCode int
	Source     string
	FetchedAt  time.Time
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Page, error)
	Name() string
	Supports(url string) bool
}

// Fetcher is the page-fetch interface the pipeline depends on.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}
