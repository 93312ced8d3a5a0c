// Package monitoring summarizes recent signal runs and raises webhook
// alerts when failure rate, spend or lead yield cross configured limits.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/store"
)

const maxRunsScanned = 10000

// MetricsSnapshot is a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	RunsTotal     int            `json:"runs_total"`
	RunsCompleted int            `json:"runs_completed"`
	RunsFailed    int            `json:"runs_failed"`
	RunsRunning   int            `json:"runs_running"`
	FailRate      float64        `json:"fail_rate"`
	CostUSD       float64        `json:"cost_usd"`
	LeadsPassed   int            `json:"leads_passed"`
	Candidates    int            `json:"candidates"`
	UnitErrors    map[string]int `json:"unit_errors,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.SignalRun, error)
}

// Collector builds snapshots from stored runs.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect summarizes runs started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
		UnitErrors:    make(map[string]int),
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: maxRunsScanned})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusCompleted:
			snap.RunsCompleted++
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsRunning++
		}
		snap.CostUSD += r.Stats.EstimatedCostUSD
		snap.LeadsPassed += r.Stats.LeadsPassedGate
		snap.Candidates += r.Stats.CandidatesAfterDedup
		for _, e := range r.Errors {
			snap.UnitErrors[e.Kind]++
		}
	}

	if finished := snap.RunsCompleted + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	return snap, nil
}
