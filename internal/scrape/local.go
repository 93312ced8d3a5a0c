package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-hunter/internal/resilience"
)

const maxBodyBytes = 512 * 1024

// LocalScraper fetches HTML with net/http and strips it to text. It is free,
// so it runs first; blocked pages fall through to the paid scrapers.
type LocalScraper struct {
	client *http.Client
}

// NewLocalScraper creates a LocalScraper with a 15s timeout.
func NewLocalScraper() *LocalScraper {
	return &LocalScraper{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (l *LocalScraper) Name() string { return "local" }

func (l *LocalScraper) Supports(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Scrape fetches a URL, detects anti-bot blocks and strips HTML to text.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; SignalHunter/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local: read body")
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local: blocked (%s)", kind)
	}
	if resp.StatusCode >= 400 {
		return nil, resilience.HTTPError("local", resp.StatusCode, "")
	}
	if len(body) < 100 {
		return nil, eris.New("local: empty page")
	}

	return &Page{
		URL:        resp.Request.URL.String(),
		Title:      extractTitle(body),
		Markdown:   stripHTML(string(body)),
		StatusCode: resp.StatusCode,
		Source:     "local",
		FetchedAt:  time.Now().UTC(),
	}, nil
}

var (
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	dropRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
		regexp.MustCompile(`(?is)<nav[^>]*>.*?</nav>`),
		regexp.MustCompile(`(?is)<footer[^>]*>.*?</footer>`),
		regexp.MustCompile(`(?s)<!--.*?-->`),
	}
	blockTagRe = regexp.MustCompile(`(?i)</?(p|div|br|li|h[1-6]|section|article|tr)[^>]*>`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	spaceRe    = regexp.MustCompile(`[ \t]+`)
	nlRe       = regexp.MustCompile(`\s*\n\s*(\n\s*)+`)
	entities   = strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	)
)

func extractTitle(body []byte) string {
	if m := titleRe.FindSubmatch(body); len(m) > 1 {
		return strings.TrimSpace(entities.Replace(string(m[1])))
	}
	return ""
}

// stripHTML drops scripts, styles and chrome, keeps paragraph breaks and
// collapses whitespace.
func stripHTML(html string) string {
	for _, re := range dropRes {
		html = re.ReplaceAllString(html, "")
	}
	html = blockTagRe.ReplaceAllString(html, "\n")
	html = tagRe.ReplaceAllString(html, " ")
	html = entities.Replace(html)
	html = spaceRe.ReplaceAllString(html, " ")
	html = nlRe.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}
