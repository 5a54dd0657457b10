package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgehaul/ticketflow/internal/model"
	"github.com/ridgehaul/ticketflow/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(st), st
}

func TestLedger_StartRecordFinish(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()

	run, err := l.Start(ctx, "nightly", model.DefaultBatchPolicy(), 3)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunInProgress, run.Status)
	assert.Equal(t, 3, run.Counts.FilesTotal)

	l.Record(model.RunCounts{FilesSucceeded: 1, Pages: 5, TicketsCreated: 5})
	l.Record(model.RunCounts{FilesSucceeded: 1, Pages: 2, TicketsCreated: 1, DuplicatesFound: 1, ReviewEntries: 1})
	l.Record(model.RunCounts{FilesSucceeded: 1, Pages: 1, TicketsCreated: 1})

	done, err := l.Finish(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, done.Status)
	assert.Equal(t, 0, done.Status.ExitCode())
	assert.Equal(t, 3, done.Counts.FilesSucceeded)
	assert.Equal(t, 8, done.Counts.Pages)
	assert.Equal(t, 7, done.Counts.TicketsCreated)

	persisted, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, persisted.Status)
	require.NotNil(t, persisted.FinishedAt)
}

func TestLedger_PartialStatus(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Start(ctx, "batch", model.DefaultBatchPolicy(), 2)
	require.NoError(t, err)

	l.Record(model.RunCounts{FilesSucceeded: 1})
	l.Record(model.RunCounts{FilesFailed: 1, Errors: 1})

	done, err := l.Finish(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, model.RunPartial, done.Status)
	assert.Equal(t, 2, done.Status.ExitCode())
}

func TestLedger_FailedWhenAllFilesFail(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Start(ctx, "batch", model.DefaultBatchPolicy(), 2)
	require.NoError(t, err)

	l.Record(model.RunCounts{FilesFailed: 1, Errors: 1})
	l.Record(model.RunCounts{FilesFailed: 1, Errors: 1})

	done, err := l.Finish(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, done.Status)
	assert.Equal(t, 3, done.Status.ExitCode())
}

func TestLedger_FailedOnFatalError(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Start(ctx, "batch", model.DefaultBatchPolicy(), 5)
	require.NoError(t, err)

	done, err := l.Finish(ctx, "store unreachable")
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, done.Status)
	assert.Equal(t, "store unreachable", done.Error)
}

func TestLedger_RolledBackRunFinishesFailed(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()

	run, err := l.Start(ctx, "batch", model.DefaultBatchPolicy(), 3)
	require.NoError(t, err)

	// One file succeeded before the run was aborted and its artifacts
	// deleted. Succeeded-then-rolled-back is not partial success.
	l.Record(model.RunCounts{FilesSucceeded: 1, TicketsCreated: 2})
	l.Record(model.RunCounts{FilesFailed: 1, Errors: 1})
	l.MarkRolledBack()

	done, err := l.Finish(ctx, "aborted on b.pdf")
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, done.Status)
	assert.Equal(t, 3, done.Status.ExitCode())

	persisted, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, persisted.Status)
}

func TestLedger_FlushPersistsInterimCounts(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()

	run, err := l.Start(ctx, "batch", model.DefaultBatchPolicy(), 10)
	require.NoError(t, err)

	l.Record(model.RunCounts{FilesSucceeded: 4, TicketsCreated: 12})
	require.NoError(t, l.Flush(ctx))

	mid, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunInProgress, mid.Status)
	assert.Equal(t, 4, mid.Counts.FilesSucceeded)
	assert.Equal(t, 12, mid.Counts.TicketsCreated)

	// No changes since the last flush: no-op.
	require.NoError(t, l.Flush(ctx))
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Start(ctx, "batch", model.DefaultBatchPolicy(), 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(model.RunCounts{FilesSucceeded: 1, TicketsCreated: 2})
		}()
	}
	wg.Wait()

	counts := l.Counts()
	assert.Equal(t, 100, counts.FilesSucceeded)
	assert.Equal(t, 200, counts.TicketsCreated)
}

func TestLedger_FinishWithoutStart(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Finish(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active run")
}
