// Package cmd provides the CLI commands for simdex.
package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/halcyonsec/simdex/internal/config"
	"github.com/halcyonsec/simdex/internal/logging"
	"github.com/halcyonsec/simdex/internal/store"
	"github.com/halcyonsec/simdex/pkg/version"
)

var (
	verbose bool
	cfgFile string

	cfg            *config.Config
	loggingCleanup func()
)

// NewRootCmd creates the root command for the simdex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simdex",
		Short: "Fuzzy-hash similarity analytics over a sample corpus",
		Long: `simdex detects near-duplicate samples in a file-analysis corpus using
fuzzy hashes, without comparing every pair.

It is designed to run as a periodic batch job: 'compare' scores newly
ingested samples against blocking candidates and records the results,
'group' clusters samples by following the recorded matches.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("simdex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Increase log output to debug level")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default: .simdex.yaml, then user config)")

	cmd.PersistentPreRunE = initRun
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newCompareCmd())
	cmd.AddCommand(newGroupCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI. Errors are logged rather than printed by cobra,
// so failures surface through the same structured channel as the rest
// of the run.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		slog.Error("command_failed", slog.String("error", err.Error()))
	}
	return err
}

// initRun loads configuration and wires logging before any subcommand.
func initRun(_ *cobra.Command, _ []string) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		wd, wdErr := os.Getwd()
		if wdErr != nil {
			return wdErr
		}
		cfg, err = config.Load(wd)
	}
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	_, cleanup, err := logging.Setup(logging.Config{
		Level:         level,
		FilePath:      cfg.Logging.File,
		WriteToStderr: true,
	})
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

// openStore opens the configured store for the analytics. A nil client
// with nil error means the backend cannot serve them; the command logs
// and exits cleanly, treating the run as a skip rather than a failure.
func openStore() (store.Client, error) {
	client, err := store.Open(cfg.Storage.Backend, cfg.Storage.DataDir, cfg.Compare.CacheSize)
	if errors.Is(err, store.ErrBackendUnsupported) {
		slog.Error("similarity analytics require the bleve storage backend",
			slog.String("backend", cfg.Storage.Backend))
		return nil, nil
	}
	return client, err
}
