package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parliasearch/internal/pkg/logger"
	"parliasearch/internal/pkg/metrics"
	"parliasearch/internal/pkg/models"
)

// The slice of the store client this service needs.
type Store interface {
	Search(ctx context.Context, index string, body map[string]any) ([]byte, error)
}

// Read-only query service. Request-scoped state only, safe for concurrent
// use across requests.
type Service struct {
	store Store
	index string
}

func NewService(store Store, index string) *Service {
	return &Service{store: store, index: index}
}

// Builds, executes and shapes one search. Zero matches is a successful
// result with an empty hit list, distinct from a store failure.
func (s *Service) Search(ctx context.Context, q models.SearchQuery) (models.SearchResult, error) {
	start := time.Now()

	body := BuildQuery(q)
	raw, err := s.store.Search(ctx, s.index, body)
	if err != nil {
		logger.Log.Error("Search execution failed",
			zap.String("query", q.Text),
			zap.Error(err))
		return models.SearchResult{}, fmt.Errorf("store search: %w", err)
	}

	result, err := ShapeResult(raw, q)
	if err != nil {
		return models.SearchResult{}, err
	}

	metrics.SearchLatency.Observe(time.Since(start).Seconds())
	logger.Log.Debug("Search completed",
		zap.String("query", q.Text),
		zap.Int64("total", result.Total))
	return result, nil
}
