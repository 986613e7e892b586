package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hannguyendd/ChangeCapture/internal/domain"
	"github.com/hannguyendd/ChangeCapture/internal/engine"
	apperrors "github.com/hannguyendd/ChangeCapture/pkg/errors"
)

// Indexer applies product change events to the search index. It is the
// write-side counterpart to the query service: every change is an idempotent
// full-document replace or delete, so redelivered events converge to the
// same index state.
type Indexer struct {
	engine engine.SearchEngine
	logger *slog.Logger
}

// New creates a new Indexer on top of the given search engine.
func New(eng engine.SearchEngine, logger *slog.Logger) *Indexer {
	return &Indexer{
		engine: eng,
		logger: logger,
	}
}

// Upsert inserts or fully replaces the indexed document for the product in
// the change. A change carrying a version older than the indexed document
// is logged and dropped rather than failed, so redeliveries of old events
// never roll the index back.
func (i *Indexer) Upsert(ctx context.Context, change *domain.ProductChange, version int64) error {
	if change.ID <= 0 {
		return fmt.Errorf("upsert product: %w: id must be positive, got %d", apperrors.ErrInvalidInput, change.ID)
	}
	if change.Name == "" {
		return fmt.Errorf("upsert product id=%d: %w: name is required", change.ID, apperrors.ErrInvalidInput)
	}

	doc := &domain.ProductDocument{
		ID:          change.ID,
		Name:        change.Name,
		Description: change.Description,
		Price:       change.Price,
		Version:     version,
	}

	if err := i.engine.Upsert(ctx, doc); err != nil {
		if errors.Is(err, apperrors.ErrStaleVersion) {
			i.logger.DebugContext(ctx, "skipped stale product change",
				slog.Int64("product_id", change.ID),
				slog.Int64("version", version),
			)
			return nil
		}
		i.logger.ErrorContext(ctx, "failed to index product",
			slog.Int64("product_id", change.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("upsert product id=%d: %w", change.ID, err)
	}

	i.logger.InfoContext(ctx, "indexed product",
		slog.Int64("product_id", change.ID),
		slog.String("name", change.Name),
		slog.Int64("version", version),
	)
	return nil
}

// Delete removes the indexed document for the given product ID. Deleting an
// absent product succeeds, so a redelivered delete is harmless.
func (i *Indexer) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("delete product: %w: id must be positive, got %d", apperrors.ErrInvalidInput, id)
	}

	if err := i.engine.Delete(ctx, id); err != nil {
		i.logger.ErrorContext(ctx, "failed to delete product from index",
			slog.Int64("product_id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("delete product id=%d: %w", id, err)
	}

	i.logger.InfoContext(ctx, "removed product from index",
		slog.Int64("product_id", id),
	)
	return nil
}
