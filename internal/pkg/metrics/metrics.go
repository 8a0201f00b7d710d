package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counts how many documents have been written to the store.
var DocumentsIndexed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "parliasearch_documents_indexed_total",
	Help: "Total number of documents successfully written to the document store",
})

// Counts documents rejected for missing required fields.
var ValidationRejects = promauto.NewCounter(prometheus.CounterOpts{
	Name: "parliasearch_validation_rejects_total",
	Help: "Total number of records dropped because a required field was missing",
})

// Counts documents skipped as duplicates within a run.
var DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "parliasearch_duplicates_skipped_total",
	Help: "Total number of documents skipped because their identifier was already seen in the run",
})

// Captures how many times a batch was flushed to the store.
var BulkFlushes = promauto.NewCounter(prometheus.CounterOpts{
	Name: "parliasearch_bulk_flushes_total",
	Help: "Total number of bulk submissions to the document store",
})

// Captures how many individual documents a bulk submission rejected.
var BulkItemFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "parliasearch_bulk_item_failures_total",
	Help: "Total number of documents rejected inside otherwise successful bulk submissions",
})

// Upstream fetch metrics.
var (
	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parliasearch_pages_fetched_total",
		Help: "Total number of upstream pages fetched",
	}, []string{"source"})

	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parliasearch_fetch_retries_total",
		Help: "Total number of retried upstream requests",
	})

	FetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parliasearch_fetch_failures_total",
		Help: "Total number of upstream requests that exhausted their retry budget",
	})
)

// Measures end-to-end search request latency.
var SearchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "parliasearch_search_latency_seconds",
	Help:    "Time taken to build, execute and shape a search request",
	Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
})
