package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/monitoring"
	"github.com/sells-group/signal-hunter/internal/pipeline"
	"github.com/sells-group/signal-hunter/internal/store"
)

var scheduleOnce bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run every user's enabled modes on a cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		job := &dailyJob{store: env.Store, runner: env.Coordinator, checker: newChecker(env.Store)}
		if scheduleOnce {
			job.run(ctx)
			return nil
		}

		c := cron.New(cron.WithSeconds())
		if _, err := c.AddFunc(cfg.Schedule.Cron, func() { job.run(ctx) }); err != nil {
			return eris.Wrapf(err, "register schedule %q", cfg.Schedule.Cron)
		}
		c.Start()
		zap.L().Info("scheduler started", zap.String("cron", cfg.Schedule.Cron))

		<-ctx.Done()
		// Stop waits for a job that is already running.
		<-c.Stop().Done()
		zap.L().Info("scheduler stopped")
		return nil
	},
}

// userRunner runs the pipeline for a stored user.
type userRunner interface {
	RunForUser(ctx context.Context, userID string, opts pipeline.RunOptions) (*pipeline.RunResult, error)
}

// dailyJob runs each user's enabled modes one after another.
type dailyJob struct {
	store   store.Store
	runner  userRunner
	checker *monitoring.Checker
}

// jobSummary counts what one pass did.
type jobSummary struct {
	Users  int
	Runs   int
	Failed int
	Leads  int
}

// run does one pass and then checks run health.
func (j *dailyJob) run(ctx context.Context) {
	j.runAll(ctx)
	if j.checker != nil {
		j.checker.Check(ctx)
	}
}

func (j *dailyJob) runAll(ctx context.Context) jobSummary {
	var sum jobSummary
	users, err := j.store.ListUsers(ctx)
	if err != nil {
		zap.L().Error("schedule: list users", zap.Error(err))
		return sum
	}

	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		uc, err := j.store.GetUserConfig(ctx, userID)
		if err != nil {
			zap.L().Error("schedule: load user config", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		sum.Users++
		for _, opts := range scheduledRuns(uc) {
			sum.Runs++
			res, err := j.runner.RunForUser(ctx, userID, opts)
			if err != nil {
				sum.Failed++
				zap.L().Error("schedule: run failed",
					zap.String("user_id", userID),
					zap.String("mode", string(opts.Mode)),
					zap.Error(err),
				)
				continue
			}
			sum.Leads += len(res.Leads)
			zap.L().Info("schedule: run complete",
				zap.String("user_id", userID),
				zap.String("mode", string(opts.Mode)),
				zap.String("run_id", res.RunID),
				zap.Int("leads", len(res.Leads)),
			)
		}
	}

	zap.L().Info("schedule: pass complete",
		zap.Int("users", sum.Users),
		zap.Int("runs", sum.Runs),
		zap.Int("failed", sum.Failed),
		zap.Int("leads", sum.Leads),
	)
	return sum
}

// scheduledRuns returns the runs a user's mode settings ask for. Watch is
// skipped when no watch list is set.
func scheduledRuns(uc *model.UserConfig) []pipeline.RunOptions {
	var runs []pipeline.RunOptions
	if uc.Modes.HuntEnabled {
		runs = append(runs, pipeline.RunOptions{Mode: model.ModeHunt, Limit: uc.Modes.HuntDailyLimit})
	}
	if uc.Modes.WatchEnabled {
		if uc.Modes.WatchListID == "" {
			zap.L().Warn("schedule: watch enabled without a watch list", zap.String("user_id", uc.UserID))
		} else {
			runs = append(runs, pipeline.RunOptions{Mode: model.ModeWatch, ListID: uc.Modes.WatchListID})
		}
	}
	return runs
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "run one pass now and exit")
	rootCmd.AddCommand(scheduleCmd)
}
