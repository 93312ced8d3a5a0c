package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signal-hunter/internal/config"
)

// cfg is loaded once per invocation, before any subcommand runs.
var cfg *config.Config

// rootFlags override file and environment settings for one invocation.
type rootFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

var root rootFlags

var rootCmd = &cobra.Command{
	Use:           "signal-hunter",
	Short:         "Signal-driven lead discovery",
	Long:          "Finds companies that match an ICP, checks them for buying signals against cited evidence, and stores scored leads with outreach drafts.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := root.load()
		if err != nil {
			return err
		}
		cfg = c
		return config.InitLogger(cfg.Log)
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

// load reads the config and applies the logging flags on top of it.
func (f rootFlags) load() (*config.Config, error) {
	c, err := config.LoadFile(f.configFile)
	if err != nil {
		return nil, eris.Wrap(err, "load config")
	}
	if f.logLevel != "" {
		c.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		c.Log.Format = f.logFormat
	}
	return c, nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&root.configFile, "config-file", "", "config YAML (default ./config.yaml when present)")
	pf.StringVar(&root.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	pf.StringVar(&root.logFormat, "log-format", "", "override log.format (json or console)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zap.L().Error("command failed", zap.Error(err))
		os.Stderr.WriteString("error: " + err.Error() + "\n") //nolint:errcheck
		os.Exit(1)
	}
}
