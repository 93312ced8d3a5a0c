//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/pipeline"
	"github.com/sells-group/signal-hunter/internal/resilience"
	"github.com/sells-group/signal-hunter/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cmd.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// newSimulatedCoordinator wires the offline providers to st.
func newSimulatedCoordinator(t *testing.T, st store.Store) *pipeline.Coordinator {
	t.Helper()
	gen, searcher, fetcher := pipeline.SimulatedProviders()
	settings := pipeline.DefaultSettings()
	settings.Retry = resilience.RetryPolicy{MaxAttempts: 1}
	settings.Budget = 30 * time.Second
	settings.BudgetMargin = time.Second
	coord, err := pipeline.NewCoordinator(pipeline.Deps{
		Store:     st,
		Generator: gen,
		Searcher:  searcher,
		Fetcher:   fetcher,
	}, settings)
	require.NoError(t, err)
	return coord
}

func testUserConfig(userID string) *model.UserConfig {
	return &model.UserConfig{
		UserID: userID,
		ICP:    model.ICP{Industries: []string{"SaaS"}, Geos: []string{"US"}},
		Signals: []model.SignalDefinition{{
			ID:       "recent_funding",
			Name:     "Recent funding",
			Question: "Has {account} raised money recently?",
			Category: model.CategoryFundingCorporate,
			Priority: model.PriorityHigh,
			Weight:   9,
			Enabled:  true,
		}},
		Modes: model.ModeSettings{HuntEnabled: true, HuntDailyLimit: 3},
	}
}

func saveUser(t *testing.T, st store.Store, uc *model.UserConfig) {
	t.Helper()
	require.NoError(t, st.SaveUserConfig(context.Background(), uc))
}
