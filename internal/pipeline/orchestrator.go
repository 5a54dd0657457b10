package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ridgehaul/ticketflow/internal/fetcher"
	"github.com/ridgehaul/ticketflow/internal/ledger"
	"github.com/ridgehaul/ticketflow/internal/metrics"
	"github.com/ridgehaul/ticketflow/internal/model"
	"github.com/ridgehaul/ticketflow/internal/resilience"
	"github.com/ridgehaul/ticketflow/internal/store"
)

// Orchestrator walks a drop of source files, dispatches per-file work
// across a bounded worker pool, and drives the run ledger. Each file is
// independent: one file's failure never corrupts another's output.
type Orchestrator struct {
	store    store.Store
	source   fetcher.Source
	pipeline *Pipeline
	policy   model.BatchPolicy
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(st store.Store, source fetcher.Source, p *Pipeline, policy model.BatchPolicy) *Orchestrator {
	return &Orchestrator{
		store:    st,
		source:   source,
		pipeline: p,
		policy:   policy.Normalized(),
	}
}

// Run processes every file the source lists and returns the finished run
// record. The returned error is non-nil only for failures before a run
// record exists; after that, failures are reported through the record's
// status and the ledger.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (*model.RunRecord, error) {
	names, err := o.source.List(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: list source files")
	}
	log := zap.L().With(zap.String("job_id", jobID))

	if o.policy.DryRun {
		for _, name := range names {
			log.Info("dry run: would process", zap.String("source_file", name))
		}
		now := time.Now().UTC()
		return &model.RunRecord{
			JobID:      jobID,
			Status:     model.RunCompleted,
			Counts:     model.RunCounts{FilesTotal: len(names)},
			StartedAt:  now,
			FinishedAt: &now,
		}, nil
	}

	led := ledger.New(o.store)
	run, err := led.Start(ctx, jobID, o.policy, len(names))
	if err != nil {
		return nil, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.policy.Concurrency)

	for _, name := range names {
		g.Go(func() error {
			delta, terminal := o.processOne(gCtx, run.ID, name)
			led.Record(delta)
			if err := led.Flush(gCtx); err != nil {
				log.Warn("ledger flush failed", zap.Error(err))
			}
			// A terminal infrastructure failure aborts the whole run, no
			// matter what continue_on_error says.
			if terminal != nil {
				return eris.Wrapf(terminal, "orchestrator: run aborted on %s", name)
			}
			if delta.FilesFailed > 0 && !o.policy.ContinueOnError {
				return eris.Errorf("orchestrator: %s failed and continue_on_error is off", name)
			}
			return nil
		})
	}

	var fatal string
	if err := g.Wait(); err != nil {
		fatal = err.Error()
	}
	if ctx.Err() != nil && fatal == "" {
		fatal = ctx.Err().Error()
	}

	if fatal != "" && o.policy.RollbackOnFailure {
		// Rollback uses a fresh context: the run's own cancellation must not
		// leave half a run behind.
		rbCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if n, rbErr := o.store.DeleteRunArtifacts(rbCtx, run.ID); rbErr != nil {
			log.Error("rollback failed", zap.Error(rbErr))
		} else {
			led.MarkRolledBack()
			log.Info("run rolled back", zap.Int("artifacts_deleted", n))
		}
	}

	finCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		finCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	return led.Finish(finCtx, fatal)
}

// processOne runs one file through the pipeline under the per-file timeout
// and retry policy, and returns the file's contribution to the run counts.
// Counts accumulate across attempts: artifacts persisted by a failed attempt
// stay in the store, so they stay in the ledger too. The error return is
// non-nil only for a terminal infrastructure failure, which must abort the
// run.
func (o *Orchestrator) processOne(ctx context.Context, runID, name string) (model.RunCounts, error) {
	log := zap.L().With(zap.String("run_id", runID), zap.String("source_file", name))
	start := time.Now()

	var counts model.RunCounts
	retryCfg := resilience.LinearRetryConfig(o.policy.MaxRetries, o.policy.RetryBackoff)
	retryCfg.OnRetry = func(attempt int, err error) {
		counts.FilesRetried++
		metrics.FileRetries.Inc()
		log.Warn("retrying file", zap.Int("attempt", attempt), zap.Error(err))
	}

	err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, o.policy.FileTimeout)
		defer cancel()

		local, err := o.source.Stage(attemptCtx, name)
		if err != nil {
			return err
		}
		delta, err := o.pipeline.ProcessFile(attemptCtx, runID, name, local)
		counts.Add(delta)
		return err
	})

	metrics.FileDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		counts.FilesFailed = 1
		counts.Errors++
		metrics.FilesProcessed.WithLabelValues("failed").Inc()
		log.Error("file failed", zap.Error(err))
		if resilience.IsTerminal(err) {
			return counts, err
		}
		return counts, nil
	}

	counts.FilesSucceeded = 1
	metrics.FilesProcessed.WithLabelValues("succeeded").Inc()
	log.Info("file processed",
		zap.Int("pages", counts.Pages),
		zap.Int("tickets", counts.TicketsCreated),
		zap.Int("duplicates", counts.DuplicatesFound),
		zap.Int("review_entries", counts.ReviewEntries),
		zap.Duration("elapsed", time.Since(start)))
	return counts, nil
}
