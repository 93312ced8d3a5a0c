package pipeline

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/sells-group/signal-hunter/internal/generate"
	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/scrape"
	"github.com/sells-group/signal-hunter/internal/search"
)

// SimulatedProviders returns offline stand-ins for generation, search and
// page fetch. Answers are derived from the prompts, so the same run input
// always produces the same leads.
func SimulatedProviders() (*generate.Simulated, search.Searcher, scrape.Fetcher) {
	gen := generate.NewSimulated().
		Handle(generate.FeatureCandidateExtraction, simulateExtraction).
		Handle(generate.FeatureSignalEvaluation, simulateEvaluation)
	return gen, search.NewSimulated(3), scrape.NewSimulated()
}

// simulateExtraction returns one candidate per "URL:" line, named after
// the title prefix of the result.
func simulateExtraction(req generate.Request) (string, error) {
	var out candidateExtraction
	var title string
	for _, line := range strings.Split(req.Prompt, "\n") {
		switch {
		case strings.HasPrefix(line, "Title: "):
			title = strings.TrimPrefix(line, "Title: ")
		case strings.HasPrefix(line, "URL: "):
			u := strings.TrimSpace(strings.TrimPrefix(line, "URL: "))
			name, _, _ := strings.Cut(title, ":")
			out.Candidates = append(out.Candidates, model.CandidateCompany{
				CompanyName: strings.TrimSpace(name),
				Domain:      model.NormalizeDomain(u),
				SourceURL:   u,
				Confidence:  0.8,
			})
		}
	}
	b, err := json.Marshal(out)
	return string(b), err
}

// simulateEvaluation answers from a hash of the prompt: mostly yes with
// moderate confidence, citing the first evidence URL. Disqualifiers are
// always answered no.
func simulateEvaluation(req generate.Request) (string, error) {
	var first string
	for _, line := range strings.Split(req.Prompt, "\n") {
		if strings.HasPrefix(line, "URL: ") {
			first = strings.TrimSpace(strings.TrimPrefix(line, "URL: "))
			break
		}
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(req.Prompt))
	v := h.Sum32()

	verdict := signalVerdict{Result: model.ResultYes, Confidence: 0.6 + float64(v%30)/100}
	if v%4 == 0 || strings.Contains(req.Prompt, "["+string(model.CategoryDisqualifier)+"]") {
		verdict = signalVerdict{Result: model.ResultNo, Confidence: 0.7}
	}
	if first != "" && verdict.Result == model.ResultYes {
		verdict.EvidenceURLs = []string{first}
	}
	verdict.Reasoning = fmt.Sprintf("Simulated judgement (%s) from the supplied evidence.", verdict.Result)
	b, err := json.Marshal(verdict)
	return string(b), err
}
