package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/signal-hunter/internal/generate"
	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/resilience"
	"github.com/sells-group/signal-hunter/internal/search"
	"github.com/sells-group/signal-hunter/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// testSettings disables retries and account searches so tests stay fast
// and count calls exactly.
func testSettings() Settings {
	s := DefaultSettings()
	s.Retry = resilience.RetryPolicy{MaxAttempts: 1}
	s.AccountSearch = false
	s.Budget = time.Minute
	s.BudgetMargin = time.Second
	s.CandidateTimeout = 10 * time.Second
	return s
}

func newTestState() *runState {
	return newRunState(zap.NewNop())
}

func fundingSignal() model.SignalDefinition {
	return model.SignalDefinition{
		ID:       "recent_funding",
		Name:     "Recent funding",
		Question: "Has {account} raised money recently?",
		Category: model.CategoryFundingCorporate,
		Priority: model.PriorityHigh,
		Weight:   9,
		Enabled:  true,
	}
}

func acquiredSignal() model.SignalDefinition {
	return model.SignalDefinition{
		ID:             "acquired",
		Name:           "Recently acquired",
		Question:       "Was {account} acquired?",
		Category:       model.CategoryDisqualifier,
		Priority:       model.PriorityHigh,
		IsDisqualifier: true,
		Enabled:        true,
	}
}

func saasICP() model.ICP {
	return model.ICP{Industries: []string{"SaaS"}, Geos: []string{"US"}}
}

// verdictJSON renders a signal evaluation answer.
func verdictJSON(result model.MatchResult, confidence float64, urls ...string) string {
	b, _ := json.Marshal(signalVerdict{Result: result, Confidence: confidence, EvidenceURLs: urls, Reasoning: "stated in evidence"})
	return string(b)
}

// stubSearcher returns fixed hits for every query and counts calls.
type stubSearcher struct {
	mu    sync.Mutex
	hits  []model.SearchHit
	err   error
	calls int
}

func (s *stubSearcher) Name() string { return "stub" }

func (s *stubSearcher) Search(_ context.Context, _ string, _ search.Options) (*search.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &search.Response{Results: s.hits, TotalResults: len(s.hits), Providers: []string{"stub"}}, nil
}

// recordingSink collects pushed leads.
type recordingSink struct {
	pushed []model.LeadRecord
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Push(_ context.Context, leads []model.LeadRecord) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.pushed = append(s.pushed, leads...)
	return len(leads), nil
}

// failingStore fails AddNewLeads and delegates everything else.
type failingStore struct {
	store.Store
	err error
}

func (f *failingStore) AddNewLeads(context.Context, string, []model.LeadRecord) (int, int, error) {
	return 0, 0, f.err
}

// stepClock is a settable clock.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var _ generate.Generator = (*generate.Simulated)(nil)
