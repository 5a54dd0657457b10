package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgehaul/ticketflow/internal/model"
	"github.com/ridgehaul/ticketflow/internal/store"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the review queue",
	Long:  "Commands for listing and resolving review queue entries.",
}

// -- review list --

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review queue entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runID, _ := cmd.Flags().GetString("run-id")
		state, _ := cmd.Flags().GetString("state")
		severity, _ := cmd.Flags().GetString("severity")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.ListReviewEntries(ctx, store.ReviewFilter{
			RunID:    runID,
			State:    model.ReviewState(state),
			Severity: model.Severity(severity),
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "review list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No review entries found.")
			return nil
		}

		formatReviewList(os.Stdout, entries)
		return nil
	},
}

// -- review resolve --

var reviewResolveCmd = &cobra.Command{
	Use:   "resolve <entry-id>...",
	Short: "Mark review entries as resolved",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		for _, id := range args {
			if err := st.ResolveReviewEntry(ctx, id); err != nil {
				return eris.Wrapf(err, "resolve %s", id)
			}
			zap.L().Info("review entry resolved", zap.String("id", id))
		}
		return nil
	},
}

func init() {
	reviewListCmd.Flags().String("run-id", "", "filter by run")
	reviewListCmd.Flags().String("state", string(model.ReviewOpen), "filter by state (open, resolved); empty for all")
	reviewListCmd.Flags().String("severity", "", "filter by severity (CRITICAL, WARNING, INFO)")
	reviewListCmd.Flags().Int("limit", 100, "max number of entries to display")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewResolveCmd)
	rootCmd.AddCommand(reviewCmd)
}

// formatReviewList renders review entries as an aligned table.
func formatReviewList(w io.Writer, entries []model.ReviewEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY ID\tSEVERITY\tREASON\tFILE\tPAGE\tSTATE\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.Severity, e.Reason, e.SourceFile, e.PageNumber, e.State,
			e.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	tw.Flush() //nolint:errcheck
}
