package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Simulated serves canned pages so runs can execute without network access.
// Pages registered with Set win; anything else gets a generic page built
// from the host name. Hosts listed in Fail always error.
type Simulated struct {
	Pages map[string]string
	Fail  map[string]bool
}

// NewSimulated creates an empty Simulated fetcher.
func NewSimulated() *Simulated {
	return &Simulated{Pages: map[string]string{}, Fail: map[string]bool{}}
}

// Set registers page content for an exact URL.
func (s *Simulated) Set(u, content string) *Simulated {
	s.Pages[u] = content
	return s
}

// Fetch implements Fetcher.
func (s *Simulated) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(targetURL)
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("simulated: bad url %q", targetURL)
	}
	host := strings.TrimPrefix(u.Host, "www.")
	if s.Fail[host] {
		return nil, eris.Errorf("simulated: fetch failed for %s", host)
	}

	content, ok := s.Pages[targetURL]
	if !ok {
		name := strings.Split(host, ".")[0]
		section := strings.Trim(u.Path, "/")
		if section == "" {
			section = "home"
		}
		content = fmt.Sprintf("%s %s page. %s is a growing company building software for its customers.", name, section, name)
	}
	return &Page{
		URL:        targetURL,
		Title:      host,
		Markdown:   content,
		StatusCode: 200,
		Source:     "simulated",
		FetchedAt:  time.Now().UTC(),
	}, nil
}
