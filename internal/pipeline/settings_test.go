package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/signal-hunter/internal/config"
	"github.com/sells-group/signal-hunter/internal/model"
)

func TestSettingsFrom(t *testing.T) {
	cfg := &config.Config{}
	cfg.Pipeline.CandidateConcurrency = 2
	cfg.Pipeline.MaxQueries = 200
	cfg.Pipeline.MinConfidence = 0.6
	cfg.Pipeline.BudgetSecs = 60
	cfg.Pipeline.BudgetMarginSecs = 5
	cfg.Pipeline.DirectoryBlocklist = []string{"linkedin.com"}
	cfg.Pipeline.Retry.MaxAttempts = 2
	cfg.Search.SearchDepth = "advanced"

	s := SettingsFrom(cfg)
	assert.Equal(t, 2, s.Limits.CandidateConcurrency)
	assert.Equal(t, 5, s.Limits.SearchConcurrency, "zero keeps the default")
	assert.Equal(t, maxQueries, s.Limits.MaxQueries, "capped at the hard ceiling")
	assert.InDelta(t, 0.6, s.MinConfidence, 1e-9)
	assert.Equal(t, time.Minute, s.Budget)
	assert.Equal(t, 5*time.Second, s.BudgetMargin)
	assert.Equal(t, "advanced", s.SearchDepth)
	assert.Equal(t, []string{"linkedin.com"}, s.DirectoryBlocklist)
	assert.Equal(t, 2, s.Retry.MaxAttempts)
}

func TestSoftDeadline(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := DefaultSettings()

	assert.Equal(t, start.Add(285*time.Second), s.softDeadline(start, 300*time.Second))
	assert.Equal(t, start.Add(9*time.Second), s.softDeadline(start, 10*time.Second), "margin larger than budget falls back to a tenth")
}

func TestErrorKinds(t *testing.T) {
	fatal := []ErrorKind{KindInvalidConfiguration, KindProviderUnavailable, KindStorageFailure}
	for _, k := range fatal {
		assert.True(t, k.Fatal(), k)
	}
	for _, k := range []ErrorKind{KindSearchFailure, KindExtractionFailure, KindEvidenceFetchFailure, KindSignalEvaluationFailure, KindSinkFailure} {
		assert.False(t, k.Fatal(), k)
	}

	err := fmt.Errorf("wrapped: %w", newError(KindSearchFailure, "q1", assert.AnError))
	assert.Equal(t, KindSearchFailure, KindOf(err))
	assert.False(t, IsFatal(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, ErrorKind(""), KindOf(assert.AnError))

	ue := newError(KindSinkFailure, "salesforce", assert.AnError).UnitError()
	assert.Equal(t, model.UnitError{Kind: "sink_failure", Unit: "salesforce", Message: assert.AnError.Error()}, ue)
}
