// Package cost estimates the USD cost of a run from provider usage.
package cost

import "github.com/sells-group/signal-hunter/internal/config"

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64
	Output        float64
	CacheWriteMul float64
	CacheReadMul  float64
}

// Rates holds per-provider pricing.
type Rates struct {
	Anthropic          map[string]ModelRate
	PerplexityPerQuery float64
	PerplexityPerMTok  float64
	JinaPerSearch      float64
	JinaPerRead        float64
	FirecrawlPerCredit float64
	PlacesPerSearch    float64
}

// TokenUsage is what one generation call consumed.
type TokenUsage struct {
	Input      int64
	Output     int64
	CacheWrite int64
	CacheRead  int64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// FromConfig converts the pricing section into Rates.
func FromConfig(p config.PricingConfig) Rates {
	r := Rates{
		Anthropic:          make(map[string]ModelRate, len(p.Anthropic)),
		PerplexityPerQuery: p.Perplexity.PerQuery,
		PerplexityPerMTok:  p.Perplexity.PerMTok,
		JinaPerSearch:      p.Jina.PerSearch,
		JinaPerRead:        p.Jina.PerRead,
		PlacesPerSearch:    p.Google.PerTextSearch,
	}
	for model, mp := range p.Anthropic {
		r.Anthropic[model] = ModelRate{Input: mp.Input, Output: mp.Output, CacheWriteMul: 1.25, CacheReadMul: 0.1}
	}
	if p.Firecrawl.CreditsIncluded > 0 {
		r.FirecrawlPerCredit = p.Firecrawl.PlanMonthly / p.Firecrawl.CreditsIncluded
	}
	return r
}

// Generation prices one LLM call. Unknown providers or models cost 0.
func (c *Calculator) Generation(provider, model string, u TokenUsage) float64 {
	if c == nil {
		return 0
	}
	switch provider {
	case "anthropic":
		rate, ok := c.rates.Anthropic[model]
		if !ok {
			return 0
		}
		in := float64(u.Input) / 1e6 * rate.Input
		out := float64(u.Output) / 1e6 * rate.Output
		cw := float64(u.CacheWrite) / 1e6 * rate.Input * rate.CacheWriteMul
		cr := float64(u.CacheRead) / 1e6 * rate.Input * rate.CacheReadMul
		return in + out + cw + cr
	case "perplexity":
		return c.rates.PerplexityPerQuery + float64(u.Input+u.Output)/1e6*c.rates.PerplexityPerMTok
	}
	return 0
}

// Search prices one search request.
func (c *Calculator) Search(provider string) float64 {
	if c == nil {
		return 0
	}
	switch provider {
	case "jina":
		return c.rates.JinaPerSearch
	case "places":
		return c.rates.PlacesPerSearch
	}
	return 0
}

// Fetch prices one page read by the named fetcher.
func (c *Calculator) Fetch(fetcher string) float64 {
	if c == nil {
		return 0
	}
	switch fetcher {
	case "jina":
		return c.rates.JinaPerRead
	case "firecrawl":
		return c.rates.FirecrawlPerCredit
	}
	return 0
}
