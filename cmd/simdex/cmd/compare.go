package cmd

import (
	"context"
	"log/slog"

	"github.com/glaslos/ssdeep"
	"github.com/spf13/cobra"

	"github.com/halcyonsec/simdex/internal/analytics"
)

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare",
		Short: "Score new samples against blocking candidates",
		Long: `Run the compare analytic over every sample not yet analyzed.

For each new sample, candidates are narrowed by chunk size and shared
rolling tokens, scored with the fuzzy-hash comparator, and the scores
are recorded symmetrically on both samples. Designed to run on a regular
basis (for example, nightly).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompare(cmd.Context())
		},
	}
}

func runCompare(ctx context.Context) error {
	client, err := openStore()
	if err != nil {
		return err
	}
	if client == nil {
		return nil
	}
	defer func() { _ = client.Close() }()

	// One compare run at a time per data directory: overlapping runs
	// would double-process samples (see the store's update model).
	lock := analytics.NewRunLock(cfg.Storage.DataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		slog.Warn("compare_already_running", slog.String("lock", lock.Path()))
		return nil
	}
	defer func() { _ = lock.Unlock() }()

	engine := analytics.NewEngine(client, comparatorFor(cfg.Compare.Comparator),
		analytics.WithPageSize(cfg.Compare.PageSize),
		analytics.WithWorkers(cfg.Compare.Workers))
	return engine.Compare(ctx)
}

// comparatorFor resolves the configured similarity scorer. An unknown
// name yields nil, which turns compare into a logged no-op instead of a
// failure.
func comparatorFor(name string) analytics.Comparator {
	if name == "ssdeep" {
		return ssdeep.Distance
	}
	return nil
}
