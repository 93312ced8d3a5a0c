package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/signal-hunter/internal/generate"
	"github.com/sells-group/signal-hunter/internal/model"
)

const extractionSystem = `You identify companies in web search results for a B2B sales team.
Return only operating companies that could be a sales prospect. Skip publishers, directories,
job boards, investors and the search engine itself. Use the company's own website domain,
not the domain of the article. Answer with JSON only.`

var extractionSchema = json.RawMessage(`{
  "type": "object",
  "required": ["candidates"],
  "properties": {
    "candidates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["companyName", "domain", "sourceUrl", "confidence"],
        "properties": {
          "companyName": {"type": "string"},
          "domain": {"type": "string"},
          "sourceUrl": {"type": "string"},
          "snippet": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    }
  }
}`)

// candidateExtraction is the structured output of one extraction call.
type candidateExtraction struct {
	Candidates []model.CandidateCompany `json:"candidates"`
}

// Validate implements generate.Validator.
func (e *candidateExtraction) Validate() error {
	for i, c := range e.Candidates {
		if strings.TrimSpace(c.CompanyName) == "" && strings.TrimSpace(c.Domain) == "" {
			return eris.Errorf("candidate %d has neither name nor domain", i)
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return eris.Errorf("candidate %d confidence %v outside [0,1]", i, c.Confidence)
		}
	}
	return nil
}

// extractCandidates asks the model for companies in each query's results,
// one call per query. A query whose output never validates is recorded and
// skipped.
func (c *Coordinator) extractCandidates(ctx context.Context, gen generate.Generator, icp model.ICP, results []model.QueryResults, st *runState) []model.CandidateCompany {
	perQuery := make([][]model.CandidateCompany, len(results))

	var g errgroup.Group
	g.SetLimit(max(c.settings.Limits.SearchConcurrency, 1))
	for i, qr := range results {
		if len(qr.Results) == 0 {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			req := generate.Request{
				Feature: generate.FeatureCandidateExtraction,
				System:  extractionSystem,
				Prompt:  extractionPrompt(icp, qr),
			}
			out, _, err := generate.GenerateStructured[candidateExtraction](ctx, gen, req, extractionSchema, c.settings.StructuredAttempts)
			if err != nil {
				st.fail(newError(KindExtractionFailure, qr.Query.Query, err))
				return nil
			}
			perQuery[i] = cleanCandidates(out.Candidates, qr.Results)
			return nil
		})
	}
	_ = g.Wait()

	var all []model.CandidateCompany
	for _, cs := range perQuery {
		all = append(all, cs...)
	}
	st.update(func(s *model.SignalRunStats) { s.CandidatesFound += len(all) })
	return all
}

// Result lines start with "URL: " so simulated providers can parse them.
func extractionPrompt(icp model.ICP, qr model.QueryResults) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ideal customer profile: %s\n", icp.Summary())
	fmt.Fprintf(&b, "Search query: %s\n\n", qr.Query.Query)
	b.WriteString("Results:\n")
	for i, r := range qr.Results {
		fmt.Fprintf(&b, "[%d]\nTitle: %s\nURL: %s\n", i+1, r.Title, r.URL)
		if r.PublishedDate != nil {
			fmt.Fprintf(&b, "Published: %s\n", r.PublishedDate.Format("2006-01-02"))
		}
		fmt.Fprintf(&b, "Snippet: %s\n\n", r.Snippet)
	}
	b.WriteString(`List every prospect company mentioned. For each give companyName, domain, the sourceUrl of the
result it came from, a short snippet quoting the result, and confidence in [0,1] that the domain
belongs to that company and that it fits the profile.`)
	return b.String()
}

// cleanCandidates normalizes model output against the results it was given:
// domains are normalized, unknown source URLs are replaced by a result URL
// and missing snippets are taken from that result.
func cleanCandidates(in []model.CandidateCompany, hits []model.SearchHit) []model.CandidateCompany {
	byURL := make(map[string]model.SearchHit, len(hits))
	for _, h := range hits {
		byURL[h.URL] = h
	}

	out := make([]model.CandidateCompany, 0, len(in))
	for _, cand := range in {
		cand.Domain = model.NormalizeDomain(cand.Domain)
		if cand.Domain == "" {
			cand.Domain = model.NormalizeDomain(cand.SourceURL)
		}
		if cand.Domain == "" || !strings.Contains(cand.Domain, ".") {
			continue
		}

		hit, ok := byURL[cand.SourceURL]
		if !ok {
			hit, ok = hitForDomain(hits, cand.Domain)
			if ok {
				cand.SourceURL = hit.URL
			}
		}
		if strings.TrimSpace(cand.Snippet) == "" && ok {
			cand.Snippet = hit.Snippet
		}
		if strings.TrimSpace(cand.CompanyName) == "" {
			cand.CompanyName = companyNameFromDomain(cand.Domain)
		}
		cand.CompanyName = strings.TrimSpace(cand.CompanyName)
		cand.Confidence = clamp01(cand.Confidence)
		out = append(out, cand)
	}
	return out
}

func hitForDomain(hits []model.SearchHit, domain string) (model.SearchHit, bool) {
	for _, h := range hits {
		if model.DomainMatches(h.URL, domain) {
			return h, true
		}
	}
	if len(hits) == 1 {
		return hits[0], true
	}
	return model.SearchHit{}, false
}

func homepage(domain string) string {
	return (&url.URL{Scheme: "https", Host: domain}).String()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
