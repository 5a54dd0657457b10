// Package metrics exposes Prometheus instrumentation for the ticket
// pipeline. Everything registers on the default registry and is served
// from the review API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FilesProcessed counts files by terminal outcome.
var FilesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ticketflow",
	Subsystem: "batch",
	Name:      "files_processed_total",
	Help:      "Total files processed by outcome (succeeded, failed).",
}, []string{"outcome"})

// FileRetries counts per-file retry attempts.
var FileRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ticketflow",
	Subsystem: "batch",
	Name:      "file_retries_total",
	Help:      "Total file-level retry attempts.",
})

// FileDuration tracks per-file processing time.
var FileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ticketflow",
	Subsystem: "batch",
	Name:      "file_duration_seconds",
	Help:      "Wall time to process one file, including retries.",
	Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
})

// TicketsPersisted counts persisted tickets.
var TicketsPersisted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ticketflow",
	Subsystem: "pipeline",
	Name:      "tickets_persisted_total",
	Help:      "Total tickets written to the store.",
})

// DuplicatesFound counts duplicate detections.
var DuplicatesFound = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ticketflow",
	Subsystem: "pipeline",
	Name:      "duplicates_found_total",
	Help:      "Total tickets flagged as duplicates of a prior ticket.",
})

// ReviewEntries counts review queue routings by reason.
var ReviewEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ticketflow",
	Subsystem: "review",
	Name:      "entries_total",
	Help:      "Total review entries created by reason code.",
}, []string{"reason"})

// PagesExtracted counts pages by extraction result.
var PagesExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ticketflow",
	Subsystem: "extract",
	Name:      "pages_total",
	Help:      "Total pages run through extraction by result (ok, failed).",
}, []string{"result"})
