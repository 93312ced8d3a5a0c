package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/resilience"
	"github.com/sells-group/signal-hunter/internal/scrape"
	"github.com/sells-group/signal-hunter/internal/search"
)

// evidencePages is the fixed page set fetched per candidate.
var evidencePages = []struct {
	path   string
	source model.SourceType
}{
	{"", model.SourceWebsite},
	{"/about", model.SourceAbout},
	{"/blog", model.SourceBlog},
	{"/careers", model.SourceCareers},
}

// accountSearchResults caps the per-account news search.
const accountSearchResults = 5

// collectEvidence gathers and deduplicates evidence chunks for one
// candidate. Page failures only shrink the evidence; when every page fails
// the returned error is an EvidenceFetchFailure and the chunks still hold
// whatever search evidence exists.
func (c *Coordinator) collectEvidence(ctx context.Context, cand model.CandidateCompany, mode model.RunModeKind, st *runState) ([]model.EvidenceChunk, error) {
	var (
		mu      sync.Mutex
		chunks  []model.EvidenceChunk
		costUSD float64
	)
	add := func(ch ...model.EvidenceChunk) {
		mu.Lock()
		chunks = append(chunks, ch...)
		mu.Unlock()
	}

	if mode == model.ModeHunt && strings.TrimSpace(cand.Snippet) != "" {
		add(newChunk(cand.SourceURL, cand.CompanyName, cand.Snippet, model.SourceSearch, time.Now().UTC(), c.settings.MaxEvidenceChars))
	}

	var fetched, failed int
	var lastErr error
	var g errgroup.Group
	g.SetLimit(max(c.settings.Limits.FetchConcurrency, 1))

	if c.deps.Fetcher != nil {
		policy := c.settings.Retry.WithLogger("fetch", "page")
		for _, p := range evidencePages {
			target := homepage(cand.Domain) + p.path
			g.Go(func() error {
				page, err := resilience.RetryVal(ctx, policy, func(ctx context.Context) (*scrape.Page, error) {
					return c.deps.Fetcher.Fetch(ctx, target)
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					lastErr = err
					return nil
				}
				fetched++
				costUSD += c.deps.Cost.Fetch(page.Source)
				if ch := pageChunk(page, p.source, c.settings.MaxEvidenceChars); ch != nil {
					chunks = append(chunks, *ch)
				}
				return nil
			})
		}
	}

	if c.settings.AccountSearch && c.deps.Searcher != nil {
		g.Go(func() error {
			found, cost, err := c.accountSearch(ctx, cand)
			if err != nil {
				zap.L().Debug("pipeline: account search failed", zap.String("domain", cand.Domain), zap.Error(err))
				return nil
			}
			add(found...)
			mu.Lock()
			costUSD += cost
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	chunks = dedupeChunks(chunks)
	st.update(func(s *model.SignalRunStats) {
		s.PagesFetched += fetched
		s.EvidenceChunksFetched += len(chunks)
	})
	st.addCost(costUSD)

	if fetched == 0 && failed > 0 {
		return chunks, newError(KindEvidenceFetchFailure, cand.Domain,
			eris.Wrapf(lastErr, "all %d pages failed", failed))
	}
	return chunks, nil
}

// accountSearch looks for recent announcements on the account's own domain.
func (c *Coordinator) accountSearch(ctx context.Context, cand model.CandidateCompany) ([]model.EvidenceChunk, float64, error) {
	query := fmt.Sprintf("%s news announcement", cand.CompanyName)
	policy := c.settings.Retry.WithLogger("search", "account")
	resp, err := resilience.RetryVal(ctx, policy, func(ctx context.Context) (*search.Response, error) {
		return c.deps.Searcher.Search(ctx, query, search.Options{
			MaxResults:     accountSearchResults,
			SearchDepth:    c.settings.SearchDepth,
			IncludeDomains: []string{cand.Domain},
		})
	})
	if err != nil {
		return nil, 0, err
	}

	var costUSD float64
	for _, p := range resp.Providers {
		costUSD += c.deps.Cost.Search(p)
	}
	out := make([]model.EvidenceChunk, 0, len(resp.Results))
	for _, h := range resp.Results {
		if strings.TrimSpace(h.Snippet) == "" {
			continue
		}
		at := time.Now().UTC()
		if h.PublishedDate != nil {
			at = *h.PublishedDate
		}
		out = append(out, newChunk(h.URL, h.Title, h.Snippet, model.SourceNews, at, c.settings.MaxEvidenceChars))
	}
	return out, costUSD, nil
}

func pageChunk(p *scrape.Page, src model.SourceType, maxChars int) *model.EvidenceChunk {
	text := strings.TrimSpace(p.Markdown)
	if text == "" {
		return nil
	}
	at := p.FetchedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	ch := newChunk(p.URL, p.Title, text, src, at, maxChars)
	return &ch
}

func newChunk(u, title, content string, src model.SourceType, at time.Time, maxChars int) model.EvidenceChunk {
	return model.EvidenceChunk{
		URL:        u,
		Title:      title,
		Snippet:    excerpt(content, maxChars),
		SourceType: src,
		FetchedAt:  at,
		Hash:       chunkHash(u, content),
	}
}

// chunkHash fingerprints content together with its URL.
func chunkHash(u, content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content) + "\x00" + u))
	return hex.EncodeToString(sum[:])
}

// dedupeChunks keeps the first chunk per hash.
func dedupeChunks(chunks []model.EvidenceChunk) []model.EvidenceChunk {
	seen := make(map[string]bool, len(chunks))
	out := chunks[:0]
	for _, ch := range chunks {
		if seen[ch.Hash] {
			continue
		}
		seen[ch.Hash] = true
		out = append(out, ch)
	}
	return out
}

// excerpt condenses content to maxChars, preferring lines that match a
// signal category so the evidence survives truncation.
func excerpt(content string, maxChars int) string {
	content = strings.TrimSpace(content)
	if maxChars <= 0 || len(content) <= maxChars {
		return strings.Join(strings.Fields(content), " ")
	}

	var hot, rest []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if len(line) < 20 {
			continue
		}
		if matchesAnyCategory(line) {
			hot = append(hot, line)
		} else {
			rest = append(rest, line)
		}
	}

	var b strings.Builder
	for _, line := range append(hot, rest...) {
		if b.Len()+len(line)+1 > maxChars {
			if b.Len() == 0 {
				b.WriteString(truncateRunes(line, maxChars))
			}
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(line)
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
