package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgehaul/ticketflow/internal/fetcher"
	"github.com/ridgehaul/ticketflow/internal/pipeline"
)

var (
	processJobID       string
	processInput       string
	processDryRun      bool
	processRollback    bool
	processConcurrency int
	processMaxRetries  int
	processLimit       int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process a drop of scanned ticket files",
	Long:  "Lists the configured source, runs every file through extraction, resolution, compliance, and duplicate checks, and records the run in the ledger. Exits 0 on a clean run, 2 when some files failed, 3 when the run failed outright.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if processInput != "" {
			cfg.Source.Kind = "local"
			cfg.Source.Dir = processInput
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		policy := cfg.Policy()
		policy.DryRun = processDryRun
		if processRollback {
			policy.RollbackOnFailure = true
		}
		if processConcurrency > 0 {
			policy.Concurrency = processConcurrency
		}
		if cmd.Flags().Changed("max-retries") {
			policy.MaxRetries = processMaxRetries
		}

		source := env.Source
		if processLimit > 0 {
			source = &limitedSource{Source: source, max: processLimit}
		}
		orch := pipeline.NewOrchestrator(env.Store, source, env.Pipeline, policy)

		run, err := orch.Run(ctx, processJobID)
		if err != nil {
			return eris.Wrap(err, "process run")
		}

		zap.L().Info("run finished",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Int("files", run.Counts.FilesProcessed()),
			zap.Int("tickets", run.Counts.TicketsCreated),
			zap.Int("duplicates", run.Counts.DuplicatesFound),
			zap.Int("review_entries", run.Counts.ReviewEntries),
		)

		exitCode = run.Status.ExitCode()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	processCmd.Flags().StringVar(&processJobID, "job-id", "adhoc", "job identifier recorded in the run ledger")
	processCmd.Flags().StringVar(&processInput, "input", "", "local directory of scans (overrides the configured source)")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "list the files that would be processed without touching the store")
	processCmd.Flags().BoolVar(&processRollback, "rollback-on-failure", false, "delete the run's artifacts if the run fails")
	processCmd.Flags().IntVar(&processConcurrency, "concurrency", 0, "worker count override (default from config)")
	processCmd.Flags().IntVar(&processMaxRetries, "max-retries", 0, "transient-failure retries per file (default from config)")
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "process at most this many files (0 = all)")
	rootCmd.AddCommand(processCmd)
}

// limitedSource caps how many files a run will take from the source.
type limitedSource struct {
	fetcher.Source
	max int
}

func (s *limitedSource) List(ctx context.Context) ([]string, error) {
	names, err := s.Source.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) > s.max {
		names = names[:s.max]
	}
	return names, nil
}
