package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-hunter/internal/generate"
	"github.com/sells-group/signal-hunter/internal/model"
)

// maxEvidencePerSignal caps the chunks sent with one signal question.
const maxEvidencePerSignal = 8

const evaluationSystem = `You are a sales research analyst. Judge a yes/no question about a company
using only the numbered evidence provided. Answer "yes" only when the evidence states it,
"no" when the evidence contradicts it, and "unknown" otherwise. Cite the evidence URLs you used.
Answer with JSON only.`

var evaluationSchema = json.RawMessage(`{
  "type": "object",
  "required": ["result", "confidence", "evidenceUrls", "reasoning"],
  "properties": {
    "result": {"type": "string", "enum": ["yes", "no", "unknown"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "evidenceUrls": {"type": "array", "items": {"type": "string"}},
    "evidenceSnippets": {"type": "array", "items": {"type": "string"}},
    "reasoning": {"type": "string"}
  }
}`)

// signalVerdict is the structured output of one evaluation call.
type signalVerdict struct {
	Result           model.MatchResult `json:"result"`
	Confidence       float64           `json:"confidence"`
	EvidenceURLs     []string          `json:"evidenceUrls"`
	EvidenceSnippets []string          `json:"evidenceSnippets"`
	Reasoning        string            `json:"reasoning"`
}

// Validate implements generate.Validator.
func (v *signalVerdict) Validate() error {
	switch v.Result {
	case model.ResultYes, model.ResultNo, model.ResultUnknown:
	default:
		return eris.Errorf("result %q is not yes, no or unknown", v.Result)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return eris.Errorf("confidence %v outside [0,1]", v.Confidence)
	}
	return nil
}

// evaluateSignals asks one question per enabled signal. Signals without
// relevant evidence are answered unknown without a model call. A failed
// call is recorded and the signal is treated as unknown.
func (c *Coordinator) evaluateSignals(ctx context.Context, gen generate.Generator, cand model.CandidateCompany, chunks []model.EvidenceChunk, signals []model.SignalDefinition, st *runState) *model.SignalMatchReport {
	report := &model.SignalMatchReport{
		Domain:      cand.Domain,
		CompanyName: cand.CompanyName,
		Matches:     make([]model.SignalMatch, 0, len(signals)),
	}

	interrupted := false
	for _, sig := range signals {
		match := model.SignalMatch{
			SignalID:   sig.ID,
			SignalName: sig.Name,
			Result:     model.ResultUnknown,
		}
		st.update(func(s *model.SignalRunStats) { s.SignalEvaluations++ })

		relevant := relevantChunks(sig, chunks)
		switch {
		case len(relevant) == 0:
			match.Reasoning = "no relevant evidence"
			st.update(func(s *model.SignalRunStats) { s.InsufficientEvidence++ })
		case interrupted || ctx.Err() != nil:
			interrupted = true
			match.Reasoning = "evaluation interrupted"
		default:
			verdict, err := c.askSignal(ctx, gen, cand, sig, relevant)
			if err != nil {
				if ctx.Err() != nil {
					interrupted = true
					st.fail(newError(KindSignalEvaluationFailure, cand.Domain, eris.Wrap(ctx.Err(), "evaluation interrupted")))
				} else {
					st.fail(newError(KindSignalEvaluationFailure, cand.Domain+"/"+sig.ID, err))
				}
				match.Reasoning = "evaluation failed"
				break
			}
			match = applyVerdict(match, verdict, relevant)
		}
		report.Matches = append(report.Matches, match)
	}
	return report
}

func (c *Coordinator) askSignal(ctx context.Context, gen generate.Generator, cand model.CandidateCompany, sig model.SignalDefinition, relevant []model.EvidenceChunk) (signalVerdict, error) {
	req := generate.Request{
		Feature: generate.FeatureSignalEvaluation,
		System:  evaluationSystem,
		Prompt:  evaluationPrompt(cand, sig, relevant),
	}
	v, _, err := generate.GenerateStructured[signalVerdict](ctx, gen, req, evaluationSchema, c.settings.StructuredAttempts)
	return v, err
}

// Evidence lines start with "URL: " so simulated providers can parse them.
func evaluationPrompt(cand model.CandidateCompany, sig model.SignalDefinition, relevant []model.EvidenceChunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s (%s)\n", cand.CompanyName, cand.Domain)
	fmt.Fprintf(&b, "Signal: %s [%s]\n", sig.Name, sig.Category)
	fmt.Fprintf(&b, "Question: %s\n\nEvidence:\n", sig.QuestionFor(cand.CompanyName))
	for i, ch := range relevant {
		if i == maxEvidencePerSignal {
			break
		}
		fmt.Fprintf(&b, "[%d] (%s) %s\nURL: %s\n%s\n\n", i+1, ch.SourceType, ch.Title, ch.URL, ch.Snippet)
	}
	b.WriteString("Return result, confidence in [0,1], the evidenceUrls you relied on, up to three short\nevidenceSnippets quoted from them, and one sentence of reasoning.")
	return b.String()
}

// applyVerdict copies a verdict onto match, keeping only citations that
// point at evidence the model was actually shown.
func applyVerdict(match model.SignalMatch, v signalVerdict, relevant []model.EvidenceChunk) model.SignalMatch {
	byURL := make(map[string]model.EvidenceChunk, len(relevant))
	for _, ch := range relevant {
		byURL[ch.URL] = ch
	}

	match.Result = v.Result
	match.Confidence = clamp01(v.Confidence)
	match.Reasoning = strings.TrimSpace(v.Reasoning)
	for _, u := range v.EvidenceURLs {
		if _, ok := byURL[u]; ok {
			match.EvidenceURLs = appendUnique(match.EvidenceURLs, u)
		}
	}
	if match.Result == model.ResultYes && len(match.EvidenceURLs) == 0 {
		match.EvidenceURLs = []string{relevant[0].URL}
	}

	for _, s := range v.EvidenceSnippets {
		if s = strings.TrimSpace(s); s != "" && len(match.EvidenceSnippets) < 3 {
			match.EvidenceSnippets = append(match.EvidenceSnippets, s)
		}
	}
	if len(match.EvidenceSnippets) == 0 {
		for _, u := range match.EvidenceURLs {
			match.EvidenceSnippets = append(match.EvidenceSnippets, truncateRunes(byURL[u].Snippet, 280))
			if len(match.EvidenceSnippets) == 3 {
				break
			}
		}
	}
	return match
}
