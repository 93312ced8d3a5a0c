//go:build !integration

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-hunter/internal/config"
	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/pipeline"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) RunForUser(ctx context.Context, userID string, opts pipeline.RunOptions) (*pipeline.RunResult, error) {
	args := m.Called(ctx, userID, opts)
	res, _ := args.Get(0).(*pipeline.RunResult)
	return res, args.Error(1)
}

func TestScheduledRuns(t *testing.T) {
	tests := []struct {
		name  string
		modes model.ModeSettings
		want  []pipeline.RunOptions
	}{
		{"none", model.ModeSettings{}, nil},
		{
			"hunt only",
			model.ModeSettings{HuntEnabled: true, HuntDailyLimit: 10},
			[]pipeline.RunOptions{{Mode: model.ModeHunt, Limit: 10}},
		},
		{
			"both",
			model.ModeSettings{HuntEnabled: true, WatchEnabled: true, WatchListID: "l1"},
			[]pipeline.RunOptions{{Mode: model.ModeHunt}, {Mode: model.ModeWatch, ListID: "l1"}},
		},
		{"watch without list", model.ModeSettings{WatchEnabled: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scheduledRuns(&model.UserConfig{UserID: "u", Modes: tt.modes})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDailyJob_RunsEachEnabledMode(t *testing.T) {
	st := newTestStore(t)
	u1 := testUserConfig("u1")
	u1.Modes = model.ModeSettings{HuntEnabled: true, HuntDailyLimit: 5, WatchEnabled: true, WatchListID: "l1"}
	saveUser(t, st, u1)
	u2 := testUserConfig("u2")
	u2.Modes = model.ModeSettings{}
	saveUser(t, st, u2)

	runner := &mockRunner{}
	runner.On("RunForUser", mock.Anything, "u1", pipeline.RunOptions{Mode: model.ModeHunt, Limit: 5}).
		Return(&pipeline.RunResult{RunID: "r1", Leads: make([]model.LeadRecord, 2)}, nil).Once()
	runner.On("RunForUser", mock.Anything, "u1", pipeline.RunOptions{Mode: model.ModeWatch, ListID: "l1"}).
		Return(&pipeline.RunResult{RunID: "r2", Leads: make([]model.LeadRecord, 1)}, nil).Once()

	job := &dailyJob{store: st, runner: runner}
	sum := job.runAll(context.Background())

	assert.Equal(t, jobSummary{Users: 2, Runs: 2, Leads: 3}, sum)
	runner.AssertExpectations(t)
}

func TestDailyJob_FailureDoesNotStopOtherUsers(t *testing.T) {
	st := newTestStore(t)
	saveUser(t, st, testUserConfig("u1"))
	saveUser(t, st, testUserConfig("u2"))

	runner := &mockRunner{}
	runner.On("RunForUser", mock.Anything, "u1", mock.Anything).
		Return(&pipeline.RunResult{Status: model.RunStatusFailed}, errors.New("store down")).Once()
	runner.On("RunForUser", mock.Anything, "u2", mock.Anything).
		Return(&pipeline.RunResult{RunID: "r2"}, nil).Once()

	sum := (&dailyJob{store: st, runner: runner}).runAll(context.Background())

	assert.Equal(t, 2, sum.Runs)
	assert.Equal(t, 1, sum.Failed)
	runner.AssertExpectations(t)
}

func TestDailyJob_CanceledContext(t *testing.T) {
	st := newTestStore(t)
	saveUser(t, st, testUserConfig("u1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &mockRunner{}
	sum := (&dailyJob{store: st, runner: runner}).runAll(ctx)

	assert.Zero(t, sum.Runs)
	runner.AssertNotCalled(t, "RunForUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestDailyJob_SimulatedCoordinator(t *testing.T) {
	st := newTestStore(t)
	saveUser(t, st, testUserConfig("u1"))

	job := &dailyJob{store: st, runner: newSimulatedCoordinator(t, st)}
	sum := job.runAll(context.Background())
	require.Equal(t, 1, sum.Runs)
	assert.Zero(t, sum.Failed)

	runs, err := st.ListRuns(context.Background(), storeFilter("u1"))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusCompleted, runs[0].Status)
}

func TestDailyJob_RunChecksHealth(t *testing.T) {
	st := newTestStore(t)
	cfg = &config.Config{Monitoring: config.MonitoringConfig{LookbackWindowHours: 24, FailureRateThreshold: 0.5}}

	runner := &mockRunner{}
	job := &dailyJob{store: st, runner: runner, checker: newChecker(st)}
	job.run(context.Background())

	runner.AssertNotCalled(t, "RunForUser", mock.Anything, mock.Anything, mock.Anything)
}
