package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/resilience"
	"github.com/sells-group/signal-hunter/internal/search"
)

// executeQueries runs every planned query with bounded concurrency. A query
// that exhausts its retries is recorded and contributes no results.
func (c *Coordinator) executeQueries(ctx context.Context, plan *model.QueryPlan, icp model.ICP, st *runState) []model.QueryResults {
	results := make([]model.QueryResults, len(plan.Queries))
	opts := search.Options{
		MaxResults:     c.settings.MaxResults,
		SearchDepth:    c.settings.SearchDepth,
		ExcludeDomains: icp.ExcludeDomains,
	}
	policy := c.settings.Retry.WithLogger("search", "query")

	var mu sync.Mutex
	var costUSD float64

	var g errgroup.Group
	g.SetLimit(max(c.settings.Limits.SearchConcurrency, 1))
	for i, q := range plan.Queries {
		results[i].Query = q
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			defer st.update(func(s *model.SignalRunStats) { s.QueriesExecuted++ })

			resp, err := resilience.RetryVal(ctx, policy, func(ctx context.Context) (*search.Response, error) {
				return c.deps.Searcher.Search(ctx, q.Query, opts)
			})
			if err != nil {
				st.fail(newError(KindSearchFailure, q.Query, err))
				return nil
			}
			results[i].Results = resp.Results

			mu.Lock()
			for _, p := range resp.Providers {
				costUSD += c.deps.Cost.Search(p)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	st.addCost(costUSD)
	return results
}
