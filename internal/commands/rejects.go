package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/formrelay/internal/dlq"
)

var rejectsCmd = &cobra.Command{
	Use:   "rejects",
	Short: "Manage datagrams the collector could not decode",
}

var rejectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rejected datagrams, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := openRejects()
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		items, err := q.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if items == nil {
			items = []dlq.Rejected{}
		}

		format, _ := cmd.Flags().GetString("output")
		if err := writeOutput(cmd.OutOrStdout(), format, items); err != nil {
			return err
		}

		// Summary goes to stderr so the listing stays parseable.
		stats := q.Stats()
		fmt.Fprintf(cmd.ErrOrStderr(), "%d rejected datagrams pending in %s\n", stats.PendingFiles, stats.BasePath)
		return nil
	},
}

var rejectsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every rejected datagram",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := openRejects()
		if err != nil {
			return err
		}

		n, err := q.Purge(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d rejected datagrams\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rejectsCmd)
	rejectsCmd.AddCommand(rejectsListCmd)
	rejectsCmd.AddCommand(rejectsPurgeCmd)

	rejectsListCmd.Flags().Int("limit", 0, "maximum entries to show (0 for all)")
	rejectsListCmd.Flags().StringP("output", "o", outputYAML, "output format: json, yaml")
}

func openRejects() (*dlq.Queue, error) {
	if cfg.Collector.RejectDir == "" {
		return nil, errors.New("collector.reject_dir is not set")
	}
	return dlq.NewQueue(cfg.Collector.RejectDir, logger.Logger)
}
