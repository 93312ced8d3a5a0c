package pipeline

import (
	"time"

	"github.com/sells-group/signal-hunter/internal/config"
	"github.com/sells-group/signal-hunter/internal/resilience"
)

// Limits bounds the work a run may do.
type Limits struct {
	SearchConcurrency    int
	CandidateConcurrency int
	FetchConcurrency     int
	MaxQueries           int
	MaxLeadsPerRun       int
}

// Settings holds everything a Coordinator needs besides its collaborators.
type Settings struct {
	Limits Limits

	MinConfidence          float64
	TriggerConfidenceFloor float64
	DisqualifierConfidence float64

	Budget           time.Duration
	BudgetMargin     time.Duration
	CandidateTimeout time.Duration

	MaxResults         int
	SearchDepth        string
	MaxEvidenceChars   int
	AccountSearch      bool
	DirectoryBlocklist []string
	StructuredAttempts int

	Retry resilience.RetryPolicy
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		Limits: Limits{
			SearchConcurrency:    5,
			CandidateConcurrency: 5,
			FetchConcurrency:     4,
			MaxQueries:           maxQueries,
			MaxLeadsPerRun:       25,
		},
		MinConfidence:          0.45,
		TriggerConfidenceFloor: 0.5,
		DisqualifierConfidence: 0.5,
		Budget:                 300 * time.Second,
		BudgetMargin:           15 * time.Second,
		CandidateTimeout:       90 * time.Second,
		MaxResults:             10,
		SearchDepth:            "basic",
		MaxEvidenceChars:       1500,
		AccountSearch:          true,
		StructuredAttempts:     3,
		Retry:                  resilience.DefaultRetryPolicy(),
	}
}

// SettingsFrom builds Settings from application config. Zero values keep
// the defaults.
func SettingsFrom(cfg *config.Config) Settings {
	s := DefaultSettings()
	p := cfg.Pipeline

	setInt(&s.Limits.SearchConcurrency, p.SearchConcurrency)
	setInt(&s.Limits.CandidateConcurrency, p.CandidateConcurrency)
	setInt(&s.Limits.FetchConcurrency, p.FetchConcurrency)
	setInt(&s.Limits.MaxQueries, min(p.MaxQueries, maxQueries))
	setInt(&s.Limits.MaxLeadsPerRun, p.DefaultLimit)
	setInt(&s.MaxResults, cfg.Search.MaxResults)
	setInt(&s.MaxEvidenceChars, p.MaxEvidenceChars)
	setInt(&s.StructuredAttempts, cfg.Generation.StructuredAttempts)

	if p.MinConfidence > 0 {
		s.MinConfidence = p.MinConfidence
	}
	if p.TriggerConfidenceFloor > 0 {
		s.TriggerConfidenceFloor = p.TriggerConfidenceFloor
	}
	if p.DisqualifierConfidence > 0 {
		s.DisqualifierConfidence = p.DisqualifierConfidence
	}
	if p.BudgetSecs > 0 {
		s.Budget = p.Budget()
	}
	if p.BudgetMarginSecs > 0 {
		s.BudgetMargin = time.Duration(p.BudgetMarginSecs) * time.Second
	}
	if p.CandidateTimeoutSecs > 0 {
		s.CandidateTimeout = time.Duration(p.CandidateTimeoutSecs) * time.Second
	}
	if cfg.Search.SearchDepth != "" {
		s.SearchDepth = cfg.Search.SearchDepth
	}
	s.AccountSearch = p.AccountSearch
	s.DirectoryBlocklist = p.DirectoryBlocklist
	s.Retry = resilience.NewRetryPolicy(p.Retry.MaxAttempts, p.Retry.BaseDelayMs, p.Retry.BackoffFactor)
	return s
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// softDeadline is when the coordinator stops launching candidates.
func (s Settings) softDeadline(start time.Time, budget time.Duration) time.Time {
	margin := s.BudgetMargin
	if margin <= 0 || margin >= budget {
		margin = budget / 10
	}
	return start.Add(budget - margin)
}
