// Package pipeline discovers companies, gathers cited evidence, evaluates
// buying signals and turns the survivors into scored leads.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/signal-hunter/internal/cost"
	"github.com/sells-group/signal-hunter/internal/generate"
	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/scrape"
	"github.com/sells-group/signal-hunter/internal/search"
	"github.com/sells-group/signal-hunter/internal/store"
)

// persistTimeout bounds the writes that seal a run, which run even after
// the run budget is spent.
const persistTimeout = 20 * time.Second

// Sink receives leads after they are stored, e.g. a CRM.
type Sink interface {
	Name() string
	Push(ctx context.Context, leads []model.LeadRecord) (int, error)
}

// Deps are the collaborators of a Coordinator. Fetcher, Sink and Cost may
// be nil; Searcher is only required for hunt runs.
type Deps struct {
	Store     store.Store
	Generator generate.Generator
	Searcher  search.Searcher
	Fetcher   scrape.Fetcher
	Sink      Sink
	Cost      *cost.Calculator
	// Library is used when a user config carries no signals of its own.
	Library []model.SignalDefinition
}

// RunOptions selects what one run does.
type RunOptions struct {
	Mode    model.RunModeKind
	Limit   int
	ListID  string
	Domains []string
	// Budget overrides the configured wall-clock budget.
	Budget time.Duration
}

// RunResult is what a caller gets back, including on failure.
type RunResult struct {
	RunID   string               `json:"runId"`
	Status  model.RunStatus      `json:"status"`
	Leads   []model.LeadRecord   `json:"leads"`
	Stats   model.SignalRunStats `json:"stats"`
	Errors  []model.UnitError    `json:"errors"`
	Error   string               `json:"error,omitempty"`
	Partial bool                 `json:"partial,omitempty"`
}

// Coordinator runs the lead pipeline for one user at a time. It holds no
// per-run state and is safe for concurrent use.
type Coordinator struct {
	deps     Deps
	settings Settings
	now      func() time.Time
}

// NewCoordinator validates deps and returns a Coordinator.
func NewCoordinator(deps Deps, settings Settings) (*Coordinator, error) {
	if deps.Store == nil {
		return nil, newError(KindStorageFailure, "", eris.New("no store configured"))
	}
	return &Coordinator{deps: deps, settings: settings, now: time.Now}, nil
}

// RunForUser loads the user's stored configuration and runs it.
func (c *Coordinator) RunForUser(ctx context.Context, userID string, opts RunOptions) (*RunResult, error) {
	cfg, err := c.deps.Store.GetUserConfig(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindInvalidConfiguration, userID, err)
	}
	if err != nil {
		return nil, newError(KindStorageFailure, userID, err)
	}
	return c.Run(ctx, userID, cfg, opts)
}

// Run executes one pipeline run. Non-fatal unit errors end up in
// RunResult.Errors. A run-fatal error is returned together with a result
// whose status is failed.
func (c *Coordinator) Run(ctx context.Context, userID string, cfg *model.UserConfig, opts RunOptions) (*RunResult, error) {
	start := c.now()
	budget := opts.Budget
	if budget <= 0 {
		budget = c.settings.Budget
	}
	soft := c.settings.softDeadline(start, budget)
	runCtx, cancel := context.WithDeadline(ctx, start.Add(budget))
	defer cancel()

	run := &model.SignalRun{
		UserID:    userID,
		Mode:      opts.Mode,
		Status:    model.RunStatusRunning,
		StartedAt: start.UTC(),
	}
	if err := c.deps.Store.CreateRun(ctx, run); err != nil {
		return &RunResult{Status: model.RunStatusFailed, Error: err.Error()}, newError(KindStorageFailure, "run", err)
	}

	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("user_id", userID),
		zap.String("mode", string(opts.Mode)),
	)
	log.Info("pipeline: run started", zap.Duration("budget", budget))
	st := newRunState(log)

	leads, partial, err := c.execute(runCtx, run, cfg, opts, soft, st, log)
	if err != nil {
		return c.finish(ctx, run, st, nil, false, err, log)
	}
	return c.finish(ctx, run, st, leads, partial, nil, log)
}

func (c *Coordinator) execute(ctx context.Context, run *model.SignalRun, cfg *model.UserConfig, opts RunOptions, soft time.Time, st *runState, log *zap.Logger) ([]model.LeadRecord, bool, error) {
	if cfg == nil {
		return nil, false, newError(KindInvalidConfiguration, run.UserID, eris.New("no user config"))
	}
	if !opts.Mode.Valid() {
		return nil, false, newError(KindInvalidConfiguration, "mode", eris.Errorf("unknown mode %q", opts.Mode))
	}
	if c.deps.Generator == nil {
		return nil, false, newError(KindProviderUnavailable, "generation", generate.ErrNoProvider)
	}
	if opts.Mode == model.ModeHunt && c.deps.Searcher == nil {
		return nil, false, newError(KindProviderUnavailable, "search", eris.New("no search provider configured"))
	}

	signals := cfg.Signals
	if len(signals) == 0 {
		signals = c.deps.Library
	}
	signals = model.EnabledSignals(signals)
	if len(signals) == 0 {
		return nil, false, newError(KindInvalidConfiguration, "signals", eris.New("no enabled signals"))
	}

	minConfidence := c.settings.MinConfidence
	if cfg.MinConfidence != nil {
		minConfidence = *cfg.MinConfidence
	}
	limit := c.limitFor(cfg, opts)
	gen := generate.Metered{Next: c.deps.Generator, Fn: st.meter}

	var cands []model.CandidateCompany
	var err error
	switch opts.Mode {
	case model.ModeHunt:
		cands, err = c.discover(ctx, gen, run.UserID, cfg.ICP, signals, limit, st, log)
	case model.ModeWatch:
		cands, err = c.watchCandidates(ctx, run.UserID, cfg, opts, limit, st)
	}
	if err != nil {
		return nil, false, err
	}
	log.Info("pipeline: candidates ready", zap.Int("candidates", len(cands)), zap.Int("limit", limit))

	partial := c.processCandidates(ctx, gen, run, cfg, signals, cands, minConfidence, soft, st, log)

	_, _, leads := st.snapshot()
	sort.SliceStable(leads, func(i, j int) bool {
		if leads[i].Score != leads[j].Score {
			return leads[i].Score > leads[j].Score
		}
		return leads[i].Domain < leads[j].Domain
	})
	return leads, partial, nil
}

// limitFor picks the per-run candidate cap: the caller's limit, then the
// user's daily hunt limit, then the configured default.
func (c *Coordinator) limitFor(cfg *model.UserConfig, opts RunOptions) int {
	switch {
	case opts.Limit > 0:
		return opts.Limit
	case opts.Mode == model.ModeHunt && cfg.Modes.HuntDailyLimit > 0:
		return cfg.Modes.HuntDailyLimit
	}
	return c.settings.Limits.MaxLeadsPerRun
}

// discover is hunt mode: plan, search, extract and dedup.
func (c *Coordinator) discover(ctx context.Context, gen generate.Generator, userID string, icp model.ICP, signals []model.SignalDefinition, limit int, st *runState, log *zap.Logger) ([]model.CandidateCompany, error) {
	plan, err := PlanQueries(icp, signals, c.settings.Limits.MaxQueries)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline: query plan ready", zap.Int("queries", len(plan.Queries)), zap.String("icp", plan.ICPSummary))

	results := c.executeQueries(ctx, plan, icp, st)
	cands := c.extractCandidates(ctx, gen, icp, results, st)
	return c.dedupCandidates(ctx, userID, icp, cands, limit, true, st)
}

// watchCandidates is watch mode: the caller's domains, or the accounts of
// a list, enter evidence collection directly.
func (c *Coordinator) watchCandidates(ctx context.Context, userID string, cfg *model.UserConfig, opts RunOptions, limit int, st *runState) ([]model.CandidateCompany, error) {
	var cands []model.CandidateCompany
	for _, d := range opts.Domains {
		cands = append(cands, model.CandidateCompany{Domain: d, Confidence: 1})
	}

	listID := opts.ListID
	if listID == "" && len(opts.Domains) == 0 {
		listID = cfg.Modes.WatchListID
	}
	if listID != "" {
		accounts, err := c.deps.Store.GetListAccounts(ctx, listID)
		if err != nil {
			return nil, newError(KindStorageFailure, listID, err)
		}
		for _, a := range accounts {
			cands = append(cands, model.CandidateCompany{Domain: a.Domain, CompanyName: a.CompanyName, Confidence: 1})
		}
	}
	if len(cands) == 0 {
		return nil, newError(KindInvalidConfiguration, "watch", eris.New("watch run without domains or list"))
	}

	for i := range cands {
		cands[i].Domain = model.NormalizeDomain(cands[i].Domain)
		if cands[i].CompanyName == "" {
			cands[i].CompanyName = companyNameFromDomain(cands[i].Domain)
		}
		cands[i].SourceURL = homepage(cands[i].Domain)
	}
	st.update(func(s *model.SignalRunStats) { s.CandidatesFound += len(cands) })
	return c.dedupCandidates(ctx, userID, cfg.ICP, cands, limit, false, st)
}

// processCandidates fans candidates out with bounded concurrency. Once the
// soft deadline passes no new candidate starts; the return value reports
// whether any were left out.
func (c *Coordinator) processCandidates(ctx context.Context, gen generate.Generator, run *model.SignalRun, cfg *model.UserConfig, signals []model.SignalDefinition, cands []model.CandidateCompany, minConfidence float64, soft time.Time, st *runState, log *zap.Logger) bool {
	var g errgroup.Group
	g.SetLimit(max(c.settings.Limits.CandidateConcurrency, 1))

	var skipped atomic.Int64
	for i, cand := range cands {
		if ctx.Err() != nil || !c.now().Before(soft) {
			skipped.Add(int64(len(cands) - i))
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil || !c.now().Before(soft) {
				skipped.Add(1)
				return nil
			}
			candCtx, cancel := context.WithTimeout(ctx, c.settings.CandidateTimeout)
			defer cancel()
			c.processCandidate(candCtx, gen, run, cfg, signals, cand, minConfidence, st)
			return nil
		})
	}
	_ = g.Wait()

	n := skipped.Load()
	if n > 0 {
		log.Warn("pipeline: budget reached, candidates not started", zap.Int64("skipped", n))
	}
	return n > 0
}

// processCandidate runs evidence, evaluation, scoring and assembly for one
// candidate. Every failure here is local to the candidate.
func (c *Coordinator) processCandidate(ctx context.Context, gen generate.Generator, run *model.SignalRun, cfg *model.UserConfig, signals []model.SignalDefinition, cand model.CandidateCompany, minConfidence float64, st *runState) {
	chunks, err := c.collectEvidence(ctx, cand, run.Mode, st)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			st.fail(pe)
		} else {
			st.fail(newError(KindEvidenceFetchFailure, cand.Domain, err))
		}
	}

	report := c.evaluateSignals(ctx, gen, cand, chunks, signals, st)
	score, decision := scoreAndGate(report, signals, minConfidence, c.settings.DisqualifierConfidence)

	st.log.Debug("pipeline: candidate scored",
		zap.String("domain", cand.Domain),
		zap.Int("score", score),
		zap.Float64("confidence", report.OverallConfidence),
		zap.String("decision", decision.String()),
	)

	switch decision {
	case gateDisqualified:
		st.update(func(s *model.SignalRunStats) { s.Disqualified++ })
		return
	case gateLowConfidence:
		st.update(func(s *model.SignalRunStats) { s.InsufficientEvidence++ })
		return
	}

	st.update(func(s *model.SignalRunStats) { s.LeadsGenerated++ })
	lead := assembleLead(assembleInput{
		RunID:        run.ID,
		UserID:       run.UserID,
		Mode:         run.Mode,
		Candidate:    cand,
		Report:       report,
		Signals:      signals,
		Chunks:       chunks,
		ICP:          cfg.ICP,
		Score:        score,
		TriggerFloor: c.settings.TriggerConfidenceFloor,
		SenderName:   cfg.SenderName,
		Now:          c.now().UTC(),
	})
	st.addLead(lead)
}

// finish persists leads, pushes them to the sink and seals the run record.
func (c *Coordinator) finish(ctx context.Context, run *model.SignalRun, st *runState, leads []model.LeadRecord, partial bool, runErr error, log *zap.Logger) (*RunResult, error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if runErr == nil && len(leads) > 0 {
		added, skipped, err := c.deps.Store.AddNewLeads(pctx, run.UserID, leads)
		if err != nil {
			runErr = newError(KindStorageFailure, "leads", err)
		} else {
			st.update(func(s *model.SignalRunStats) { s.DuplicatesSkipped += skipped })
			log.Info("pipeline: leads stored", zap.Int("added", added), zap.Int("skipped", skipped))
			c.pushToSink(pctx, leads, st)
		}
	}

	stats, unitErrs, _ := st.snapshot()
	finished := c.now().UTC()
	run.FinishedAt = &finished
	run.Stats = stats
	run.Errors = unitErrs
	run.Status = model.RunStatusCompleted
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
		leads = nil
	}

	if err := c.deps.Store.FinishRun(pctx, run); err != nil {
		log.Error("pipeline: seal run record", zap.Error(err))
	}

	res := &RunResult{
		RunID:   run.ID,
		Status:  run.Status,
		Leads:   leads,
		Stats:   stats,
		Errors:  unitErrs,
		Error:   run.Error,
		Partial: partial,
	}
	if res.Leads == nil {
		res.Leads = []model.LeadRecord{}
	}
	if res.Errors == nil {
		res.Errors = []model.UnitError{}
	}

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int("leads", len(res.Leads)),
		zap.Int("errors", len(unitErrs)),
		zap.Int("candidates", stats.CandidatesAfterDedup),
		zap.Float64("est_usd", stats.EstimatedCostUSD),
		zap.Duration("elapsed", finished.Sub(run.StartedAt)),
	}
	if runErr != nil {
		log.Error("pipeline: run failed", append(fields, zap.Error(runErr))...)
		return res, runErr
	}
	log.Info("pipeline: run complete", fields...)
	return res, nil
}

func (c *Coordinator) pushToSink(ctx context.Context, leads []model.LeadRecord, st *runState) {
	if c.deps.Sink == nil {
		return
	}
	n, err := c.deps.Sink.Push(ctx, leads)
	if err != nil {
		st.fail(newError(KindSinkFailure, c.deps.Sink.Name(), err))
		return
	}
	st.log.Info("pipeline: leads pushed", zap.String("sink", c.deps.Sink.Name()), zap.Int("pushed", n))
}
