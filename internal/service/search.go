package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hannguyendd/ChangeCapture/internal/domain"
	"github.com/hannguyendd/ChangeCapture/internal/engine"
	apperrors "github.com/hannguyendd/ChangeCapture/pkg/errors"
	"github.com/hannguyendd/ChangeCapture/pkg/httpclient"
)

// SearchService implements the read-side business logic over the product
// index. Read availability wins over strictness here: when the search
// backend is unreachable, list queries degrade to an empty result instead
// of failing the request, while the outage stays visible in the logs.
type SearchService struct {
	engine     engine.SearchEngine
	logger     *slog.Logger
	catalogURL string
	catalog    *httpclient.CircuitBreakerClient

	reindexing atomic.Bool
}

// NewSearchService creates a new search service. catalogURL points at the
// product catalog service used for full reindexing and may be empty when
// reindexing is not needed.
func NewSearchService(eng engine.SearchEngine, logger *slog.Logger, catalogURL string) *SearchService {
	return &SearchService{
		engine:     eng,
		logger:     logger,
		catalogURL: catalogURL,
		catalog: httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("catalog-service"),
			logger,
		),
	}
}

// Search executes a ranked full-text query. An empty term matches
// everything. Engine failures yield an empty result, not an error.
func (s *SearchService) Search(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error) {
	result, err := s.engine.Search(ctx, query)
	if err != nil {
		s.logger.ErrorContext(ctx, "search query failed, returning empty result",
			slog.String("term", query.Term),
			slog.String("error", err.Error()),
		)
		return emptyResult(query), nil
	}
	return result, nil
}

// GetAll returns a page of all products sorted by name. Engine failures
// yield an empty result, not an error.
func (s *SearchService) GetAll(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error) {
	result, err := s.engine.GetAll(ctx, query)
	if err != nil {
		s.logger.ErrorContext(ctx, "get all query failed, returning empty result",
			slog.String("error", err.Error()),
		)
		return emptyResult(query), nil
	}
	return result, nil
}

// GetByID looks up a single product. An absent product and an unreachable
// backend both surface as ErrNotFound to the caller; the two are told apart
// in the logs.
func (s *SearchService) GetByID(ctx context.Context, id int64) (*domain.ProductDocument, error) {
	doc, err := s.engine.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get product id=%d: %w", id, apperrors.ErrNotFound)
		}
		s.logger.ErrorContext(ctx, "get by id failed against search backend",
			slog.Int64("product_id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("get product id=%d: %w", id, apperrors.ErrNotFound)
	}
	return doc, nil
}

// Suggest returns autocomplete suggestions for a name prefix. Engine
// failures yield no suggestions, not an error.
func (s *SearchService) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	suggestions, err := s.engine.Suggest(ctx, prefix, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "suggest query failed, returning no suggestions",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		return []string{}, nil
	}
	return suggestions, nil
}

func emptyResult(query *domain.SearchQuery) *domain.SearchResult {
	return &domain.SearchResult{
		Products: []domain.ProductDocument{},
		Total:    0,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
}
