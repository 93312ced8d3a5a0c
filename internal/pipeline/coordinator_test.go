package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-hunter/internal/generate"
	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/scrape"
	"github.com/sells-group/signal-hunter/internal/store"
)

// yesForFunding answers yes (0.9) for funding questions citing the first
// URL, and no for everything else.
func yesForFunding(req generate.Request) (string, error) {
	if !strings.Contains(req.Prompt, "["+string(model.CategoryFundingCorporate)+"]") {
		return verdictJSON(model.ResultNo, 0.8), nil
	}
	for _, line := range strings.Split(req.Prompt, "\n") {
		if u, ok := strings.CutPrefix(line, "URL: "); ok {
			return verdictJSON(model.ResultYes, 0.9, u), nil
		}
	}
	return verdictJSON(model.ResultUnknown, 0), nil
}

func acmeHuntDeps(t *testing.T) (Deps, *generate.Simulated) {
	t.Helper()
	gen := generate.NewSimulated().
		Handle(generate.FeatureCandidateExtraction, simulateExtraction).
		Handle(generate.FeatureSignalEvaluation, yesForFunding)
	fetcher := scrape.NewSimulated().
		Set("https://acme.io", "Acme raised a $20M Series B led by Example Ventures to grow its finance platform.")
	searcher := &stubSearcher{hits: []model.SearchHit{
		{Title: "Acme: raises $20M Series B", URL: "https://acme.io/press/series-b", Snippet: "Acme raised $20M in Series B funding."},
	}}
	return Deps{Store: newTestStore(t), Generator: gen, Searcher: searcher, Fetcher: fetcher}, gen
}

func huntConfig(signals ...model.SignalDefinition) *model.UserConfig {
	return &model.UserConfig{UserID: "u1", ICP: saasICP(), Signals: signals}
}

func assertStatsInvariants(t *testing.T, res *RunResult) {
	t.Helper()
	s := res.Stats
	assert.LessOrEqual(t, s.LeadsPassedGate, s.LeadsGenerated)
	assert.LessOrEqual(t, s.LeadsGenerated, s.CandidatesAfterDedup)
	assert.LessOrEqual(t, s.CandidatesAfterDedup, s.CandidatesFound)
	seen := map[string]bool{}
	for _, l := range res.Leads {
		assert.False(t, seen[l.Domain], "duplicate lead %s", l.Domain)
		seen[l.Domain] = true
		assert.GreaterOrEqual(t, l.Score, 0)
		assert.LessOrEqual(t, l.Score, 100)
	}
}

func TestRun_HuntScenario(t *testing.T) {
	deps, gen := acmeHuntDeps(t)
	sink := &recordingSink{}
	deps.Sink = sink
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "u1", huntConfig(fundingSignal()), RunOptions{Mode: model.ModeHunt})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, res.Status)
	assert.Empty(t, res.Errors)
	assert.False(t, res.Partial)

	require.Len(t, res.Leads, 1)
	lead := res.Leads[0]
	assert.Equal(t, "acme.io", lead.Domain)
	assert.Equal(t, 90, lead.Score)
	assert.Equal(t, res.RunID, lead.RunID)
	require.Len(t, lead.TriggeredSignals, 1)
	assert.NotEmpty(t, lead.EvidenceURLs)

	assert.Equal(t, 1, res.Stats.QueriesExecuted)
	assert.Equal(t, 1, res.Stats.CandidatesFound)
	assert.Equal(t, 1, res.Stats.LeadsPassedGate)
	assert.Positive(t, res.Stats.InputTokens)
	assert.Equal(t, 2, gen.Calls(generate.FeatureCandidateExtraction)+gen.Calls(generate.FeatureSignalEvaluation))
	assertStatsInvariants(t, res)

	assert.Len(t, sink.pushed, 1)

	run, err := deps.Store.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, 1, run.Stats.LeadsPassedGate)

	stored, err := deps.Store.GetStoredLeads(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	// A second identical run finds nothing new.
	res, err = c.Run(context.Background(), "u1", huntConfig(fundingSignal()), RunOptions{Mode: model.ModeHunt})
	require.NoError(t, err)
	assert.Empty(t, res.Leads)
	assert.Equal(t, 1, res.Stats.DuplicatesSkipped)
}

func TestRun_DisqualifierVeto(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	deps.Generator = generate.NewSimulated().
		Handle(generate.FeatureCandidateExtraction, simulateExtraction).
		Handle(generate.FeatureSignalEvaluation, func(req generate.Request) (string, error) {
			if strings.Contains(req.Prompt, "["+string(model.CategoryDisqualifier)+"]") {
				return verdictJSON(model.ResultYes, 0.8, "https://acme.io"), nil
			}
			return verdictJSON(model.ResultYes, 0.95, "https://acme.io"), nil
		})
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	acquired := acquiredSignal()
	acquired.AcceptedSources = nil
	res, err := c.Run(context.Background(), "u1", huntConfig(fundingSignal(), acquired), RunOptions{Mode: model.ModeHunt})
	require.NoError(t, err)
	assert.Empty(t, res.Leads)
	assert.Equal(t, 1, res.Stats.Disqualified)
	assert.Zero(t, res.Stats.LeadsGenerated)
	assertStatsInvariants(t, res)
}

func TestRun_HuntWithOnlyDisqualifier(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	veto := fundingSignal()
	veto.IsDisqualifier = true
	res, err := c.Run(context.Background(), "u1", huntConfig(veto), RunOptions{Mode: model.ModeHunt})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, res.Status)
	assert.Equal(t, 1, res.Stats.QueriesExecuted)
	assert.Equal(t, 1, res.Stats.CandidatesFound)
	assert.Empty(t, res.Leads)
	assert.Equal(t, 1, res.Stats.Disqualified)
	assert.Zero(t, res.Stats.LeadsGenerated)
	assertStatsInvariants(t, res)
}

func TestRun_WatchDedupesDomains(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	deps.Searcher = nil
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "u1", &model.UserConfig{UserID: "u1", Signals: []model.SignalDefinition{fundingSignal()}},
		RunOptions{Mode: model.ModeWatch, Domains: []string{"acme.io", "Acme.IO", "https://www.acme.io/"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.CandidatesFound)
	assert.Equal(t, 1, res.Stats.CandidatesAfterDedup)
	require.Len(t, res.Leads, 1)
	assert.Equal(t, "Acme", res.Leads[0].CompanyName)
	assert.Equal(t, model.ModeWatch, res.Leads[0].Mode)
	assertStatsInvariants(t, res)
}

func TestRun_WatchList(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	ctx := context.Background()
	list, err := deps.Store.CreateList(ctx, "u1", "targets", model.ListTypeWatch)
	require.NoError(t, err)
	_, err = deps.Store.AddListAccounts(ctx, list.ID, []model.ListAccount{
		{Domain: "acme.io", CompanyName: "Acme Inc"},
		{Domain: "other.com"},
	})
	require.NoError(t, err)

	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	cfg := &model.UserConfig{UserID: "u1", Signals: []model.SignalDefinition{fundingSignal()}, Modes: model.ModeSettings{WatchListID: list.ID}}
	res, err := c.Run(ctx, "u1", cfg, RunOptions{Mode: model.ModeWatch})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.CandidatesAfterDedup)
	require.Len(t, res.Leads, 1)
	assert.Equal(t, "Acme Inc", res.Leads[0].CompanyName)
}

func TestRun_WatchWithoutAccounts(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "u1", huntConfig(fundingSignal()), RunOptions{Mode: model.ModeWatch})
	require.Error(t, err)
	assert.Equal(t, KindInvalidConfiguration, KindOf(err))
	assert.Equal(t, model.RunStatusFailed, res.Status)
}

func TestRun_PartialEvidenceFailures(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	fetcher := scrape.NewSimulated()
	var domains []string
	for i := range 10 {
		d := fmt.Sprintf("co%d.com", i)
		domains = append(domains, d)
		fetcher.Set(homepage(d), fmt.Sprintf("Co%d announced a new product line for retailers.", i))
	}
	fetcher.Fail["co3.com"] = true
	fetcher.Fail["co7.com"] = true
	deps.Fetcher = fetcher
	deps.Generator = generate.NewSimulated().Handle(generate.FeatureSignalEvaluation, func(req generate.Request) (string, error) {
		for _, line := range strings.Split(req.Prompt, "\n") {
			if u, ok := strings.CutPrefix(line, "URL: "); ok {
				return verdictJSON(model.ResultYes, 0.8, u), nil
			}
		}
		return verdictJSON(model.ResultUnknown, 0), nil
	})

	launch := fundingSignal()
	launch.ID = "launch"
	launch.Name = "Product launch"
	launch.Category = model.CategoryProductStrategy

	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)
	res, err := c.Run(context.Background(), "u1", &model.UserConfig{UserID: "u1", Signals: []model.SignalDefinition{launch}},
		RunOptions{Mode: model.ModeWatch, Domains: domains})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, res.Status)
	assert.Len(t, res.Leads, 8)

	require.Len(t, res.Errors, 2)
	units := []string{res.Errors[0].Unit, res.Errors[1].Unit}
	assert.ElementsMatch(t, []string{"co3.com", "co7.com"}, units)
	for _, e := range res.Errors {
		assert.Equal(t, string(KindEvidenceFetchFailure), e.Kind)
	}
	assertStatsInvariants(t, res)

	for i := 1; i < len(res.Leads); i++ {
		assert.GreaterOrEqual(t, res.Leads[i-1].Score, res.Leads[i].Score)
	}
}

func TestRun_SoftDeadlineGivesPartialResult(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	clock := &stepClock{now: time.Now()}
	settings := testSettings()
	settings.Limits.CandidateConcurrency = 1

	inner := scrape.NewSimulated()
	deps.Fetcher = fetchFunc(func(ctx context.Context, u string) (*scrape.Page, error) {
		clock.Advance(time.Hour)
		return inner.Fetch(ctx, u)
	})

	c, err := NewCoordinator(deps, settings)
	require.NoError(t, err)
	c.now = clock.Now

	var domains []string
	for i := range 5 {
		domains = append(domains, fmt.Sprintf("co%d.com", i))
	}
	res, err := c.Run(context.Background(), "u1", &model.UserConfig{UserID: "u1", Signals: []model.SignalDefinition{fundingSignal()}},
		RunOptions{Mode: model.ModeWatch, Domains: domains})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, res.Status)
	assert.True(t, res.Partial)
	assert.Equal(t, 5, res.Stats.CandidatesAfterDedup)
	assert.Equal(t, 1, res.Stats.SignalEvaluations, "only the first candidate started")
}

type fetchFunc func(ctx context.Context, u string) (*scrape.Page, error)

func (f fetchFunc) Fetch(ctx context.Context, u string) (*scrape.Page, error) { return f(ctx, u) }

func TestRun_EmptyICPIsFatal(t *testing.T) {
	deps, gen := acmeHuntDeps(t)
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	cfg := &model.UserConfig{UserID: "u1", Signals: []model.SignalDefinition{fundingSignal()}}
	res, err := c.Run(context.Background(), "u1", cfg, RunOptions{Mode: model.ModeHunt})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, KindInvalidConfiguration, KindOf(err))
	assert.Equal(t, model.RunStatusFailed, res.Status)
	assert.Empty(t, res.Leads)
	assert.NotEmpty(t, res.Error)
	assert.Zero(t, gen.Calls(generate.FeatureCandidateExtraction))

	run, err := deps.Store.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, res.Error, run.Error)
}

func TestRun_ConfigurationErrors(t *testing.T) {
	disabled := fundingSignal()
	disabled.Enabled = false

	tests := []struct {
		name string
		deps func(d *Deps)
		cfg  *model.UserConfig
		mode model.RunModeKind
		kind ErrorKind
	}{
		{name: "nil config", cfg: nil, mode: model.ModeHunt, kind: KindInvalidConfiguration},
		{name: "bad mode", cfg: huntConfig(fundingSignal()), mode: "sweep", kind: KindInvalidConfiguration},
		{name: "no enabled signals", cfg: huntConfig(disabled), mode: model.ModeHunt, kind: KindInvalidConfiguration},
		{name: "no generator", deps: func(d *Deps) { d.Generator = nil }, cfg: huntConfig(fundingSignal()), mode: model.ModeHunt, kind: KindProviderUnavailable},
		{name: "no searcher", deps: func(d *Deps) { d.Searcher = nil }, cfg: huntConfig(fundingSignal()), mode: model.ModeHunt, kind: KindProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, _ := acmeHuntDeps(t)
			if tt.deps != nil {
				tt.deps(&deps)
			}
			c, err := NewCoordinator(deps, testSettings())
			require.NoError(t, err)

			res, err := c.Run(context.Background(), "u1", tt.cfg, RunOptions{Mode: tt.mode})
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, model.RunStatusFailed, res.Status)
		})
	}
}

func TestRun_LibraryFallback(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	deps.Library = []model.SignalDefinition{fundingSignal()}
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "u1", huntConfig(), RunOptions{Mode: model.ModeHunt})
	require.NoError(t, err)
	assert.Len(t, res.Leads, 1)
}

func TestRun_MinConfidenceOverride(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	strict := 0.95
	cfg := huntConfig(fundingSignal())
	cfg.MinConfidence = &strict
	res, err := c.Run(context.Background(), "u1", cfg, RunOptions{Mode: model.ModeHunt})
	require.NoError(t, err)
	assert.Empty(t, res.Leads)
	assert.Equal(t, 1, res.Stats.InsufficientEvidence)
}

func TestRun_StorageFailureFailsRun(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	deps.Store = &failingStore{Store: deps.Store, err: errors.New("disk full")}
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "u1", huntConfig(fundingSignal()), RunOptions{Mode: model.ModeHunt})
	require.Error(t, err)
	assert.Equal(t, KindStorageFailure, KindOf(err))
	assert.Equal(t, model.RunStatusFailed, res.Status)
	assert.Empty(t, res.Leads)
}

func TestRun_SinkFailureIsRecorded(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	deps.Sink = &recordingSink{err: errors.New("crm down")}
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "u1", huntConfig(fundingSignal()), RunOptions{Mode: model.ModeHunt})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, res.Status)
	assert.Len(t, res.Leads, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, string(KindSinkFailure), res.Errors[0].Kind)
}

func TestRun_SearchFailureIsNotFatal(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	deps.Searcher = &stubSearcher{err: errors.New("search down")}
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "u1", huntConfig(fundingSignal()), RunOptions{Mode: model.ModeHunt})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, res.Status)
	assert.Empty(t, res.Leads)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, string(KindSearchFailure), res.Errors[0].Kind)
}

func TestRunForUser(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.RunForUser(ctx, "ghost", RunOptions{Mode: model.ModeHunt})
	require.Error(t, err)
	assert.Equal(t, KindInvalidConfiguration, KindOf(err))
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, deps.Store.SaveUserConfig(ctx, huntConfig(fundingSignal())))
	res, err := c.RunForUser(ctx, "u1", RunOptions{Mode: model.ModeHunt})
	require.NoError(t, err)
	assert.Len(t, res.Leads, 1)

	runs, err := deps.Store.ListRuns(ctx, store.RunFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRun_DailyLimit(t *testing.T) {
	deps, _ := acmeHuntDeps(t)
	deps.Searcher = &stubSearcher{hits: []model.SearchHit{
		{Title: "Acme: raises", URL: "https://acme.io/a", Snippet: "Acme raised funding"},
		{Title: "Beta: raises", URL: "https://beta.com/a", Snippet: "Beta raised funding"},
		{Title: "Gamma: raises", URL: "https://gamma.com/a", Snippet: "Gamma raised funding"},
	}}
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	cfg := huntConfig(fundingSignal())
	cfg.Modes.HuntDailyLimit = 2
	res, err := c.Run(context.Background(), "u1", cfg, RunOptions{Mode: model.ModeHunt})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.CandidatesFound)
	assert.Equal(t, 2, res.Stats.CandidatesAfterDedup)

	res, err = c.Run(context.Background(), "u1", cfg, RunOptions{Mode: model.ModeHunt, Limit: 1})
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Stats.CandidatesAfterDedup, 1)
}

func TestRun_Simulated(t *testing.T) {
	gen, searcher, fetcher := SimulatedProviders()
	deps := Deps{Store: newTestStore(t), Generator: gen, Searcher: searcher, Fetcher: fetcher}
	c, err := NewCoordinator(deps, testSettings())
	require.NoError(t, err)

	hiring := fundingSignal()
	hiring.ID = "hiring"
	hiring.Category = model.CategoryProductStrategy
	cfg := huntConfig(fundingSignal(), hiring, acquiredSignal())

	res, err := c.Run(context.Background(), "u1", cfg, RunOptions{Mode: model.ModeHunt})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, res.Status)
	assert.Positive(t, res.Stats.CandidatesFound)
	assert.Zero(t, res.Stats.Disqualified)
	assertStatsInvariants(t, res)
	for _, l := range res.Leads {
		assert.NotEmpty(t, l.EvidenceURLs)
		assert.GreaterOrEqual(t, len(l.Narrative), minNarrative)
	}
}
