package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-hunter/internal/model"
)

func TestPlanQueries_EmptyICPIsFatal(t *testing.T) {
	_, err := PlanQueries(model.ICP{Roles: []string{"CTO"}}, []model.SignalDefinition{fundingSignal()}, 0)
	require.Error(t, err)
	assert.Equal(t, KindInvalidConfiguration, KindOf(err))
	assert.True(t, IsFatal(err))
}

func TestPlanQueries_SubstitutesTemplates(t *testing.T) {
	sig := fundingSignal()
	sig.QueryTemplates = []string{"{industry} {role} raises {account} series A {geo}"}
	icp := model.ICP{Industries: []string{"SaaS"}, Geos: []string{"US", "Canada"}, Roles: []string{"CTO"}}

	plan, err := PlanQueries(icp, []model.SignalDefinition{sig}, 0)
	require.NoError(t, err)
	require.Len(t, plan.Queries, 2)
	assert.Equal(t, "SaaS CTO raises series A US", plan.Queries[0].Query)
	assert.Equal(t, "SaaS CTO raises series A Canada", plan.Queries[1].Query)
	assert.Equal(t, []string{"recent_funding"}, plan.Queries[0].TargetSignals)
	assert.NotEmpty(t, plan.Queries[0].ExpectedSourceTypes)
	assert.Contains(t, plan.ICPSummary, "SaaS")
	assert.Contains(t, plan.SignalsSummary, "Recent funding")
}

func TestPlanQueries_DefaultTemplate(t *testing.T) {
	plan, err := PlanQueries(saasICP(), []model.SignalDefinition{fundingSignal()}, 0)
	require.NoError(t, err)
	require.Len(t, plan.Queries, 1)
	assert.Equal(t, "SaaS company recent funding US", plan.Queries[0].Query)
}

func TestPlanQueries_SkipsDisabledAndDisqualifiers(t *testing.T) {
	off := fundingSignal()
	off.ID = "off"
	off.Enabled = false

	plan, err := PlanQueries(saasICP(), []model.SignalDefinition{off, acquiredSignal(), fundingSignal()}, 0)
	require.NoError(t, err)
	for _, q := range plan.Queries {
		assert.NotContains(t, q.TargetSignals, "off")
		assert.NotContains(t, q.TargetSignals, "acquired")
	}
	assert.Contains(t, plan.SignalsSummary, "disqualifiers: Recently acquired")
}

func TestPlanQueries_OnlyDisqualifiersPlansDiscovery(t *testing.T) {
	icp := model.ICP{Industries: []string{"SaaS", "Fintech"}, Geos: []string{"US"}}

	plan, err := PlanQueries(icp, []model.SignalDefinition{acquiredSignal()}, 0)
	require.NoError(t, err)
	require.Len(t, plan.Queries, 2)
	assert.Equal(t, "SaaS companies US", plan.Queries[0].Query)
	assert.Equal(t, "Fintech companies US", plan.Queries[1].Query)
	assert.Empty(t, plan.Queries[0].TargetSignals)
	assert.NotEmpty(t, plan.Queries[0].ExpectedSourceTypes)
	assert.Contains(t, plan.SignalsSummary, "disqualifiers: Recently acquired")
}

func TestPlanQueries_BlankICPTermsIsFatal(t *testing.T) {
	_, err := PlanQueries(model.ICP{Industries: []string{" "}, Geos: []string{""}}, []model.SignalDefinition{acquiredSignal()}, 0)
	require.Error(t, err)
	assert.Equal(t, KindInvalidConfiguration, KindOf(err))
}

func TestPlanQueries_MergesDuplicateQueries(t *testing.T) {
	a := fundingSignal()
	a.QueryTemplates = []string{"{industry} growth {geo}"}
	b := fundingSignal()
	b.ID = "hiring"
	b.Category = model.CategoryHiringTeam
	b.QueryTemplates = []string{"{industry} GROWTH {geo}"}

	plan, err := PlanQueries(saasICP(), []model.SignalDefinition{a, b}, 0)
	require.NoError(t, err)
	require.Len(t, plan.Queries, 1)
	assert.Equal(t, []string{"recent_funding", "hiring"}, plan.Queries[0].TargetSignals)
}

func manySignals(n int, templates int) []model.SignalDefinition {
	priorities := []model.Priority{model.PriorityHigh, model.PriorityMedium, model.PriorityLow}
	var out []model.SignalDefinition
	for i := range n {
		s := model.SignalDefinition{
			ID:       fmt.Sprintf("s%d", i),
			Name:     fmt.Sprintf("Signal %d", i),
			Question: "Q?",
			Category: model.CategoryProductStrategy,
			Priority: priorities[i%len(priorities)],
			Weight:   5,
			Enabled:  true,
		}
		for j := range templates {
			s.QueryTemplates = append(s.QueryTemplates, fmt.Sprintf("{industry} s%d t%d {geo}", i, j))
		}
		out = append(out, s)
	}
	return out
}

func TestPlanQueries_CapAndCoverage(t *testing.T) {
	icp := model.ICP{Industries: []string{"SaaS", "Fintech"}, Geos: []string{"US", "UK"}}
	signals := manySignals(9, 5)

	plan, err := PlanQueries(icp, signals, 0)
	require.NoError(t, err)
	assert.Len(t, plan.Queries, maxQueries)

	covered := map[string]bool{}
	for _, q := range plan.Queries {
		for _, id := range q.TargetSignals {
			covered[id] = true
		}
	}
	for _, s := range signals {
		assert.True(t, covered[s.ID], "signal %s has no query", s.ID)
	}

	// Extra queries go to high priority first, so low-priority signals keep
	// only their first query.
	count := map[model.Priority]int{}
	for _, q := range plan.Queries {
		for _, s := range signals {
			if q.TargetSignals[0] == s.ID {
				count[s.Priority]++
			}
		}
	}
	assert.Equal(t, 3, count[model.PriorityLow])
	assert.Greater(t, count[model.PriorityHigh], count[model.PriorityMedium])
}

func TestPlanQueries_TightLimitDropsLowestPriority(t *testing.T) {
	signals := manySignals(6, 1)

	plan, err := PlanQueries(saasICP(), signals, 2)
	require.NoError(t, err)
	require.Len(t, plan.Queries, 2)
	for _, q := range plan.Queries {
		assert.True(t, strings.Contains(q.Rationale, "high"), q.Rationale)
	}
}
