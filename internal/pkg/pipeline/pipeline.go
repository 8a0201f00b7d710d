// Orchestrates one ingestion run: adapter streams are canonicalized,
// deduplicated by identifier, accumulated into fixed-size batches and
// submitted to the indexing gateway.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"parliasearch/internal/pkg/canonical"
	"parliasearch/internal/pkg/dedup"
	"parliasearch/internal/pkg/logger"
	"parliasearch/internal/pkg/metrics"
	"parliasearch/internal/pkg/models"
	"parliasearch/internal/pkg/paginate"
)

// Called by a source once per upstream record with the canonicalization
// result. A non-nil err marks a validation rejection; the pipeline counts it
// and drops the document. The returned error aborts the source's stream.
type Emit func(doc models.CanonicalDocument, err error) error

// One upstream adapter. Stream errors abort that adapter only; the run
// continues with the remaining sources.
type Source interface {
	Name() string
	Stream(ctx context.Context, emit Emit) error
}

// Receives full batches. Implemented by the store gateway.
type Gateway interface {
	Submit(ctx context.Context, docs []models.CanonicalDocument) (models.BulkReport, error)
}

// Outcome of one ingestion run.
type Summary struct {
	Indexed    int      `json:"indexed"`
	Rejected   int      `json:"rejected"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors,omitempty"`
}

// Runs adapters sequentially and owns the shared batch and seen-set.
type Pipeline struct {
	gateway   Gateway
	deduper   dedup.Deduper
	batchSize int

	// Guards batch and deduper together: the seen-check, the batch append
	// and the flush decision must be atomic so two batches can never hold
	// the same identifier.
	mu      sync.Mutex
	batch   []models.CanonicalDocument
	summary Summary

	runCtx context.Context
}

func New(gateway Gateway, deduper dedup.Deduper, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 500
	}
	if deduper == nil {
		deduper = dedup.NewMemoryDeduper()
	}
	return &Pipeline{
		gateway:   gateway,
		deduper:   deduper,
		batchSize: batchSize,
		batch:     make([]models.CanonicalDocument, 0, batchSize),
	}
}

// Pulls every source to exhaustion and flushes the final partial batch.
// Fetch errors are recorded per source; store errors abort the run.
func (p *Pipeline) Run(ctx context.Context, sources ...Source) (Summary, error) {
	p.runCtx = ctx
	for _, src := range sources {
		logger.Log.Info("Starting source", zap.String("source", src.Name()))

		err := src.Stream(ctx, p.accept)
		if err == nil {
			continue
		}

		var fetchErr *paginate.FetchError
		if errors.As(err, &fetchErr) {
			// One adapter exhausted its retries; its already-emitted
			// documents stand, the run moves on.
			logger.Log.Error("Source aborted after retry exhaustion",
				zap.String("source", src.Name()),
				zap.Error(err))
			p.mu.Lock()
			p.summary.Errors = append(p.summary.Errors, src.Name()+": "+err.Error())
			p.mu.Unlock()
			continue
		}

		// Store unavailability or cancellation: flush what we have and stop.
		if flushErr := p.flushRemaining(ctx); flushErr != nil {
			logger.Log.Error("Final flush failed", zap.Error(flushErr))
		}
		return p.snapshot(), err
	}

	if err := p.flushRemaining(ctx); err != nil {
		return p.snapshot(), err
	}
	return p.snapshot(), nil
}

// Admits one canonicalization result into the batch stream.
func (p *Pipeline) accept(doc models.CanonicalDocument, err error) error {
	if err != nil {
		var vErr *canonical.ValidationError
		if errors.As(err, &vErr) {
			metrics.ValidationRejects.Inc()
			p.mu.Lock()
			p.summary.Rejected++
			p.mu.Unlock()
			logger.Log.Debug("Dropping invalid record",
				zap.Strings("missing", vErr.Missing),
				zap.String("url", doc.URL))
			return nil
		}
		return err
	}

	p.mu.Lock()
	id := doc.Identifier()
	if p.deduper.Seen(id) {
		p.summary.Duplicates++
		p.mu.Unlock()
		metrics.DuplicatesSkipped.Inc()
		return nil
	}
	p.deduper.Mark(id)
	p.batch = append(p.batch, doc)

	var full []models.CanonicalDocument
	if len(p.batch) >= p.batchSize {
		full = p.batch
		p.batch = make([]models.CanonicalDocument, 0, p.batchSize)
	}
	p.mu.Unlock()

	if full != nil {
		ctx := p.runCtx
		if ctx == nil {
			ctx = context.Background()
		}
		return p.submit(ctx, full)
	}
	return nil
}

func (p *Pipeline) flushRemaining(ctx context.Context) error {
	p.mu.Lock()
	rest := p.batch
	p.batch = make([]models.CanonicalDocument, 0, p.batchSize)
	p.mu.Unlock()

	if len(rest) == 0 {
		return nil
	}
	return p.submit(ctx, rest)
}

// Synchronous per batch: the producer blocks until the store acknowledges.
func (p *Pipeline) submit(ctx context.Context, docs []models.CanonicalDocument) error {
	report, err := p.gateway.Submit(ctx, docs)
	if err != nil {
		return err
	}

	metrics.BulkFlushes.Inc()
	metrics.DocumentsIndexed.Add(float64(report.Indexed))
	if n := len(report.Errors); n > 0 {
		metrics.BulkItemFailures.Add(float64(n))
	}

	p.mu.Lock()
	p.summary.Indexed += report.Indexed
	p.summary.Errors = append(p.summary.Errors, report.Errors...)
	p.mu.Unlock()

	logger.Log.Info("Flushed batch",
		zap.Int("submitted", len(docs)),
		zap.Int("indexed", report.Indexed),
		zap.Int("item_errors", len(report.Errors)))
	return nil
}

func (p *Pipeline) snapshot() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}
