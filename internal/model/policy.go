package model

import (
	"runtime"
	"time"
)

// BatchPolicy is the immutable configuration handed to the orchestrator at
// construction. It is never mutated mid-run; changing policy means starting
// a new run.
type BatchPolicy struct {
	Concurrency       int           `json:"concurrency"`
	MaxRetries        int           `json:"max_retries"`
	RetryBackoff      time.Duration `json:"retry_backoff"`
	FileTimeout       time.Duration `json:"file_timeout"`
	ContinueOnError   bool          `json:"continue_on_error"`
	RollbackOnFailure bool          `json:"rollback_on_failure"`
	DryRun            bool          `json:"dry_run"`
	DuplicateWindow   time.Duration `json:"duplicate_window"`
}

// DefaultBatchPolicy returns the policy used when no overrides are given:
// parallelism matching the host, two retries with linear backoff, a 300s
// per-file timeout, and a 120 day duplicate window.
func DefaultBatchPolicy() BatchPolicy {
	return BatchPolicy{
		Concurrency:     runtime.NumCPU(),
		MaxRetries:      2,
		RetryBackoff:    2 * time.Second,
		FileTimeout:     300 * time.Second,
		ContinueOnError: true,
		DuplicateWindow: 120 * 24 * time.Hour,
	}
}

// Normalized returns a copy with zero or negative knobs replaced by
// defaults so a partially populated policy is always safe to run.
func (p BatchPolicy) Normalized() BatchPolicy {
	def := DefaultBatchPolicy()
	if p.Concurrency <= 0 {
		p.Concurrency = def.Concurrency
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = def.RetryBackoff
	}
	if p.FileTimeout <= 0 {
		p.FileTimeout = def.FileTimeout
	}
	if p.DuplicateWindow <= 0 {
		p.DuplicateWindow = def.DuplicateWindow
	}
	return p
}
