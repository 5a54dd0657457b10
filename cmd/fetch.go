package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fetchStage bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "List or stage the configured scan source",
	Long:  "Lists the files the configured source would hand to a run. With --stage, also downloads each file to the local staging area, which is useful for verifying FTP credentials before a batch.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		source, err := initSource()
		if err != nil {
			return err
		}

		names, err := source.List(ctx)
		if err != nil {
			return eris.Wrap(err, "list source")
		}

		for _, name := range names {
			if fetchStage {
				local, err := source.Stage(ctx, name)
				if err != nil {
					return eris.Wrapf(err, "stage %s", name)
				}
				fmt.Fprintf(os.Stdout, "%s\t%s\n", name, local)
				continue
			}
			fmt.Fprintln(os.Stdout, name)
		}

		zap.L().Info("source listed", zap.Int("files", len(names)), zap.Bool("staged", fetchStage))
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchStage, "stage", false, "download each file to the staging area")
	rootCmd.AddCommand(fetchCmd)
}
