package model

import "strings"

// SignalCategory groups signals by the kind of buying intent they detect.
type SignalCategory string

const (
	CategoryFundingCorporate      SignalCategory = "funding_corporate"
	CategoryLeadershipOrg         SignalCategory = "leadership_org"
	CategoryProductStrategy       SignalCategory = "product_strategy"
	CategoryHiringTeam            SignalCategory = "hiring_team"
	CategoryExpansionPartnerships SignalCategory = "expansion_partnerships"
	CategoryTechnologyAdoption    SignalCategory = "technology_adoption"
	CategoryRiskCompliance        SignalCategory = "risk_compliance"
	CategoryDisqualifier          SignalCategory = "disqualifier"
)

// Valid reports whether c is a known category.
func (c SignalCategory) Valid() bool {
	switch c {
	case CategoryFundingCorporate, CategoryLeadershipOrg, CategoryProductStrategy,
		CategoryHiringTeam, CategoryExpansionPartnerships, CategoryTechnologyAdoption,
		CategoryRiskCompliance, CategoryDisqualifier:
		return true
	}
	return false
}

// Priority orders signals when the query budget is exceeded.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank returns a sortable rank; higher is more important.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// SignalDefinition is one weighted buying-signal question.
type SignalDefinition struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	Question        string         `json:"question" yaml:"question"`
	Category        SignalCategory `json:"category" yaml:"category"`
	Priority        Priority       `json:"priority" yaml:"priority"`
	Weight          float64        `json:"weight" yaml:"weight"`
	QueryTemplates  []string       `json:"queryTemplates,omitempty" yaml:"query_templates"`
	AcceptedSources []SourceType   `json:"acceptedSources,omitempty" yaml:"accepted_sources"`
	IsDisqualifier  bool           `json:"isDisqualifier" yaml:"is_disqualifier"`
	Enabled         bool           `json:"enabled" yaml:"-"`
}

// QuestionFor substitutes the account name into the templated question.
func (s SignalDefinition) QuestionFor(account string) string {
	return strings.ReplaceAll(s.Question, "{account}", account)
}

// Accepts reports whether evidence of the given source type may back this signal.
// An empty AcceptedSources list accepts everything.
func (s SignalDefinition) Accepts(src SourceType) bool {
	if len(s.AcceptedSources) == 0 {
		return true
	}
	for _, a := range s.AcceptedSources {
		if a == src {
			return true
		}
	}
	return false
}

// EnabledSignals filters to enabled signals, preserving order.
func EnabledSignals(signals []SignalDefinition) []SignalDefinition {
	out := make([]SignalDefinition, 0, len(signals))
	for _, s := range signals {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// MatchResult is the tri-state answer to a signal question.
type MatchResult string

const (
	ResultYes     MatchResult = "yes"
	ResultNo      MatchResult = "no"
	ResultUnknown MatchResult = "unknown"
)

// SignalMatch is the evaluation of one signal against one candidate.
type SignalMatch struct {
	SignalID         string      `json:"signalId"`
	SignalName       string      `json:"signalName"`
	Result           MatchResult `json:"result"`
	Confidence       float64     `json:"confidence"`
	EvidenceURLs     []string    `json:"evidenceUrls"`
	EvidenceSnippets []string    `json:"evidenceSnippets"`
	Reasoning        string      `json:"reasoning"`
}

// SignalMatchReport aggregates all matches for one candidate.
type SignalMatchReport struct {
	Domain             string        `json:"domain"`
	CompanyName        string        `json:"companyName"`
	Matches            []SignalMatch `json:"matches"`
	OverallConfidence  float64       `json:"overallConfidence"`
	Disqualified       bool          `json:"disqualified"`
	DisqualifierReason *string       `json:"disqualifierReason"`
}

// Match returns the match for signalID, if present.
func (r *SignalMatchReport) Match(signalID string) (SignalMatch, bool) {
	for _, m := range r.Matches {
		if m.SignalID == signalID {
			return m, true
		}
	}
	return SignalMatch{}, false
}
