package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/sells-group/signal-hunter/internal/model"
)

var (
	simPrefixes = []string{"bright", "north", "clear", "summit", "blue", "iron", "harbor", "quant", "pine", "vector"}
	simSuffixes = []string{"ledger", "works", "labs", "stack", "grid", "forge", "pilot", "scale", "loop", "sync"}
	simTLDs     = []string{".io", ".com", ".ai", ".co"}
)

// Simulated returns deterministic made-up companies for a query so runs
// work offline. The same query always yields the same hits.
type Simulated struct {
	PerQuery int
}

// NewSimulated creates a Simulated searcher returning perQuery hits.
func NewSimulated(perQuery int) *Simulated {
	if perQuery <= 0 {
		perQuery = 3
	}
	return &Simulated{PerQuery: perQuery}
}

func (s *Simulated) Name() string { return "simulated" }

// Search implements Searcher.
func (s *Simulated) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := s.PerQuery
	if opts.MaxResults > 0 && opts.MaxResults < n {
		n = opts.MaxResults
	}

	hits := make([]model.SearchHit, 0, n)
	for i := range n {
		name, domain := simCompany(query, i)
		if len(opts.IncludeDomains) > 0 {
			domain = model.NormalizeDomain(opts.IncludeDomains[0])
			name = strings.Split(domain, ".")[0]
		}
		hits = append(hits, model.SearchHit{
			Title:   fmt.Sprintf("%s: %s", name, query),
			URL:     fmt.Sprintf("https://%s/news/%d", domain, i+1),
			Snippet: fmt.Sprintf("%s announced news related to %s.", name, query),
		})
	}
	hits = filterDomains(hits, nil, opts.ExcludeDomains)
	return &Response{Results: hits, TotalResults: len(hits), Providers: []string{s.Name()}}, nil
}

func simCompany(query string, i int) (name, domain string) {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s#%d", strings.ToLower(query), i)
	v := h.Sum32()
	p := simPrefixes[v%uint32(len(simPrefixes))]
	s := simSuffixes[(v/10)%uint32(len(simSuffixes))]
	tld := simTLDs[(v/100)%uint32(len(simTLDs))]
	name = strings.ToUpper(p[:1]) + p[1:] + strings.ToUpper(s[:1]) + s[1:]
	return name, p + s + tld
}
