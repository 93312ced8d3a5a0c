//go:build !integration

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"hunt", "serve", "schedule", "runs", "leads", "lists", "users"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "signal-hunter", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config-file", "log-level", "log-format"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "root should have --%s flag", name)
	}
}

func TestRootFlags_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\nserver:\n  port: 9191\n"), 0o644))

	c, err := rootFlags{configFile: path}.load()
	require.NoError(t, err)
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, 9191, c.Server.Port)

	c, err = rootFlags{configFile: path, logLevel: "debug", logFormat: "console"}.load()
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "console", c.Log.Format)
}

func TestRootFlags_LoadMissingFile(t *testing.T) {
	_, err := rootFlags{configFile: filepath.Join(t.TempDir(), "missing.yaml")}.load()
	assert.Error(t, err)
}

func TestHuntCommand_Flags(t *testing.T) {
	for _, name := range []string{"user", "config", "icp", "mode", "limit", "list", "domains", "budget"} {
		assert.NotNil(t, huntCmd.Flags().Lookup(name), "hunt should have --%s flag", name)
	}
	assert.Equal(t, "hunt", huntCmd.Flags().Lookup("mode").DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestScheduleCommand_Flags(t *testing.T) {
	flag := scheduleCmd.Flags().Lookup("once")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestLeadsExportCommand_Flags(t *testing.T) {
	out := leadsExportCmd.Flags().Lookup("out")
	require.NotNil(t, out)
	assert.Equal(t, "leads.xlsx", out.DefValue)
	assert.NotNil(t, leadsExportCmd.Flags().Lookup("user"))
}

func TestListsImportCommand_Flags(t *testing.T) {
	for _, name := range []string{"user", "name", "type", "file"} {
		assert.NotNil(t, listsImportCmd.Flags().Lookup(name), "lists import should have --%s flag", name)
	}
	assert.Equal(t, "watch", listsImportCmd.Flags().Lookup("type").DefValue)
}

func TestListsShowCommand_Flags(t *testing.T) {
	assert.NotNil(t, listsShowCmd.Flags().Lookup("user"))
	assert.Equal(t, "watch", listsShowCmd.Flags().Lookup("type").DefValue)
}
