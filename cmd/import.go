package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgehaul/ticketflow/internal/fetcher"
)

var importXLSXPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import reviewer corrections from a spreadsheet",
	Long:  "Reads corrections from an XLSX workbook and upserts them into the store. Corrections apply as MANUAL-tier values the next time the corrected pages are processed.",
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

		corrections, err := fetcher.ReadCorrections(importXLSXPath)
		if err != nil {
			return eris.Wrap(err, "read corrections")
		}

		for i := range corrections {
			if err := st.UpsertCorrection(ctx, &corrections[i]); err != nil {
				return eris.Wrapf(err, "upsert correction %s page %d %s",
					corrections[i].SourceFile, corrections[i].PageNumber, corrections[i].Field)
			}
		}

		zap.L().Info("corrections imported",
			zap.Int("count", len(corrections)),
			zap.String("workbook", importXLSXPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path to corrections workbook (required)")
	_ = importCmd.MarkFlagRequired("xlsx")
	rootCmd.AddCommand(importCmd)
}
