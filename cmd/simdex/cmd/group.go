package cmd

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/halcyonsec/simdex/internal/analytics"
)

func newGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "group",
		Short: "Cluster samples by recorded matches and print the groups",
		Long: `Read every sample with at least one recorded match and greedily
partition them into similarity groups, printed as JSON arrays of sample
hashes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGroup(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runGroup(ctx context.Context, out io.Writer) error {
	client, err := openStore()
	if err != nil {
		return err
	}
	if client == nil {
		return nil
	}
	defer func() { _ = client.Close() }()

	grouper := analytics.NewGrouper(client,
		analytics.WithGroupPageSize(cfg.Compare.PageSize))
	groups, err := grouper.Group(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(groups)
}
