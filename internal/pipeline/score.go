package pipeline

import (
	"math"

	"github.com/sells-group/signal-hunter/internal/model"
)

// gateDecision is the outcome of scoring one candidate.
type gateDecision int

const (
	gatePass gateDecision = iota
	gateDisqualified
	gateLowConfidence
)

func (d gateDecision) String() string {
	switch d {
	case gatePass:
		return "pass"
	case gateDisqualified:
		return "disqualified"
	default:
		return "low_confidence"
	}
}

// computeScore is the weighted share of yes answers among the enabled
// non-disqualifier signals, on a 0-100 scale.
func computeScore(report *model.SignalMatchReport, signals []model.SignalDefinition) int {
	var total, got float64
	for _, s := range signals {
		if !s.Enabled || s.IsDisqualifier {
			continue
		}
		total += s.Weight
		if m, ok := report.Match(s.ID); ok && m.Result == model.ResultYes {
			got += s.Weight * clamp01(m.Confidence)
		}
	}
	if total <= 0 {
		return 0
	}
	score := math.Round(got / total * 100)
	return int(math.Max(0, math.Min(100, score)))
}

// applyDisqualifiers marks the report when any disqualifier answered yes
// with at least threshold confidence. The first such signal is the reason.
func applyDisqualifiers(report *model.SignalMatchReport, signals []model.SignalDefinition, threshold float64) {
	for _, s := range signals {
		if !s.Enabled || !s.IsDisqualifier {
			continue
		}
		m, ok := report.Match(s.ID)
		if ok && m.Result == model.ResultYes && m.Confidence >= threshold {
			reason := s.Name
			report.Disqualified = true
			report.DisqualifierReason = &reason
			return
		}
	}
}

// overallConfidence is the mean confidence of the non-disqualifier
// matches that produced an answer.
func overallConfidence(report *model.SignalMatchReport, signals []model.SignalDefinition) float64 {
	dq := make(map[string]bool)
	for _, s := range signals {
		if s.IsDisqualifier {
			dq[s.ID] = true
		}
	}
	var sum float64
	n := 0
	for _, m := range report.Matches {
		if dq[m.SignalID] || m.Result == model.ResultUnknown {
			continue
		}
		sum += clamp01(m.Confidence)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// scoreAndGate fills the report's aggregate fields and decides whether the
// candidate becomes a lead.
func scoreAndGate(report *model.SignalMatchReport, signals []model.SignalDefinition, minConfidence, dqThreshold float64) (int, gateDecision) {
	report.OverallConfidence = overallConfidence(report, signals)
	applyDisqualifiers(report, signals, dqThreshold)
	score := computeScore(report, signals)

	switch {
	case report.Disqualified:
		return score, gateDisqualified
	case report.OverallConfidence < minConfidence:
		return score, gateLowConfidence
	}
	return score, gatePass
}
