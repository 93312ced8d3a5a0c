package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/pipeline"
	"github.com/sells-group/signal-hunter/internal/registry"
)

// huntFlags are the inputs of one on-demand run.
type huntFlags struct {
	userID     string
	configPath string
	icpPath    string
	mode       string
	limit      int
	listID     string
	domains    []string
	budget     time.Duration
}

var hunt huntFlags

var huntCmd = &cobra.Command{
	Use:   "hunt",
	Short: "Run the lead pipeline once for a user",
	Long: `Runs hunt (discover new companies) or watch (re-check known accounts) for one user
and prints the run result as JSON. The user config comes from --config when given,
otherwise from the store.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		opts, err := hunt.options()
		if err != nil {
			return err
		}

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, runErr := hunt.run(ctx, env.Coordinator, opts)
		if res != nil {
			if err := writeResult(os.Stdout, res); err != nil {
				return err
			}
		}
		if runErr != nil {
			return runErr
		}
		zap.L().Info("hunt complete",
			zap.String("run_id", res.RunID),
			zap.Int("leads", len(res.Leads)),
			zap.Int("errors", len(res.Errors)),
			zap.Bool("partial", res.Partial),
		)
		return nil
	},
}

// options converts the flags into RunOptions.
func (f huntFlags) options() (pipeline.RunOptions, error) {
	mode := model.RunModeKind(strings.ToLower(f.mode))
	if !mode.Valid() {
		return pipeline.RunOptions{}, eris.Errorf("unknown mode %q (hunt or watch)", f.mode)
	}
	var domains []string
	for _, d := range f.domains {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	return pipeline.RunOptions{
		Mode:    mode,
		Limit:   f.limit,
		ListID:  f.listID,
		Domains: domains,
		Budget:  f.budget,
	}, nil
}

// userConfig loads the user config named by the flags, or nil when the
// stored config should be used.
func (f huntFlags) userConfig() (*model.UserConfig, error) {
	if f.configPath == "" && f.icpPath == "" {
		return nil, nil
	}
	uc := &model.UserConfig{UserID: f.userID}
	if f.configPath != "" {
		loaded, err := registry.LoadUserConfigFromFile(f.configPath)
		if err != nil {
			return nil, err
		}
		uc = loaded
		if f.userID != "" {
			uc.UserID = f.userID
		}
	}
	if f.icpPath != "" {
		icp, err := registry.LoadICPFromFile(f.icpPath)
		if err != nil {
			return nil, err
		}
		uc.ICP = icp
	}
	if uc.UserID == "" {
		return nil, eris.New("a user id is required (--user or user_id in the config file)")
	}
	return uc, nil
}

func (f huntFlags) run(ctx context.Context, coord *pipeline.Coordinator, opts pipeline.RunOptions) (*pipeline.RunResult, error) {
	uc, err := f.userConfig()
	if err != nil {
		return nil, err
	}
	if uc != nil {
		return coord.Run(ctx, uc.UserID, uc, opts)
	}
	if f.userID == "" {
		return nil, eris.New("--user is required when no --config or --icp is given")
	}
	return coord.RunForUser(ctx, f.userID, opts)
}

// writeResult prints a run result as indented JSON.
func writeResult(w io.Writer, res *pipeline.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return eris.Wrap(err, "encode run result")
	}
	return nil
}

func init() {
	huntCmd.Flags().StringVar(&hunt.userID, "user", "", "user id")
	huntCmd.Flags().StringVar(&hunt.configPath, "config", "", "path to a user config YAML (icp, signals, modes)")
	huntCmd.Flags().StringVar(&hunt.icpPath, "icp", "", "path to an ICP YAML, overrides the config's ICP")
	huntCmd.Flags().StringVar(&hunt.mode, "mode", string(model.ModeHunt), "run mode: hunt or watch")
	huntCmd.Flags().IntVar(&hunt.limit, "limit", 0, "max leads for this run (0 = configured default)")
	huntCmd.Flags().StringVar(&hunt.listID, "list", "", "watch list id (watch mode)")
	huntCmd.Flags().StringSliceVar(&hunt.domains, "domains", nil, "comma-separated domains to watch (watch mode)")
	huntCmd.Flags().DurationVar(&hunt.budget, "budget", 0, "wall-clock budget, e.g. 2m (0 = configured default)")
	rootCmd.AddCommand(huntCmd)
}
