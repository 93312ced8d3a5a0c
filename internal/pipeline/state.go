package pipeline

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/signal-hunter/internal/generate"
	"github.com/sells-group/signal-hunter/internal/model"
)

// runState is the single accumulation point for one run. Candidate
// pipelines run concurrently and report through it.
type runState struct {
	mu     sync.Mutex
	stats  model.SignalRunStats
	errors []model.UnitError
	leads  []model.LeadRecord
	log    *zap.Logger
}

func newRunState(log *zap.Logger) *runState {
	return &runState{log: log}
}

func (s *runState) update(fn func(st *model.SignalRunStats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// fail records a non-fatal unit error.
func (s *runState) fail(e *Error) {
	s.log.Warn("pipeline: unit failed",
		zap.String("kind", string(e.Kind)),
		zap.String("unit", e.Unit),
		zap.Error(e.Err),
	)
	s.mu.Lock()
	s.errors = append(s.errors, e.UnitError())
	s.mu.Unlock()
}

func (s *runState) addLead(l model.LeadRecord) {
	s.mu.Lock()
	s.leads = append(s.leads, l)
	s.stats.LeadsPassedGate++
	s.mu.Unlock()
}

func (s *runState) addCost(usd float64) {
	s.mu.Lock()
	s.stats.EstimatedCostUSD += usd
	s.mu.Unlock()
}

// meter records token usage and cost of every generation response.
func (s *runState) meter(resp *generate.Response) {
	s.mu.Lock()
	s.stats.InputTokens += resp.Usage.InputTokens + resp.Usage.CacheReadTokens + resp.Usage.CacheWriteTokens
	s.stats.OutputTokens += resp.Usage.OutputTokens
	s.stats.EstimatedCostUSD += resp.CostUSD
	s.mu.Unlock()
}

func (s *runState) snapshot() (model.SignalRunStats, []model.UnitError, []model.LeadRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := append([]model.UnitError(nil), s.errors...)
	leads := append([]model.LeadRecord(nil), s.leads...)
	return s.stats, errs, leads
}
