package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/halcyonsec/simdex/internal/ingest"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	watch       bool
	deleteAfter bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Hash files from a drop directory into the corpus",
		Long: `Compute content and fuzzy hashes for files in a drop directory and
store their records with the blocking tokens the compare analytic needs.
New records start unanalyzed; run 'simdex compare' afterwards to score
them.

With --watch, the directory is followed for new files until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep watching the directory for new files")
	cmd.Flags().BoolVar(&opts.deleteAfter, "delete", false, "Delete files once their record is stored")

	return cmd
}

func runIngest(ctx context.Context, dir string, opts ingestOptions) error {
	client, err := openStore()
	if err != nil {
		return err
	}
	if client == nil {
		return nil
	}
	defer func() { _ = client.Close() }()

	worker := ingest.NewWorker(client,
		ingest.WithDeleteAfter(opts.deleteAfter || cfg.Ingest.DeleteAfter))

	if !opts.watch {
		_, err := worker.IngestDir(ctx, dir)
		return err
	}

	debounce, err := cfg.IngestDebounce()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return worker.Watch(ctx, dir, debounce)
}
