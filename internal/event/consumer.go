package event

import (
	"context"
	"log/slog"

	"github.com/hannguyendd/ChangeCapture/internal/domain"
	"github.com/hannguyendd/ChangeCapture/internal/indexer"
	pkgkafka "github.com/hannguyendd/ChangeCapture/pkg/kafka"
)

// Kafka topic constants for product change events consumed by the indexer.
const (
	TopicProductCreated = "catalog.product.created"
	TopicProductUpdated = "catalog.product.updated"
	TopicProductDeleted = "catalog.product.deleted"
)

// ProductDeletedData is the payload of a product.deleted event.
type ProductDeletedData struct {
	ID int64 `json:"id"`
}

// Consumer translates product change events into index operations.
//
// Error discipline: a malformed or unintelligible event is logged and
// acknowledged so it cannot wedge the partition, while a transient indexing
// failure is returned to the transport for retry and redelivery.
type Consumer struct {
	indexer *indexer.Indexer
	logger  *slog.Logger
}

// NewConsumer creates a new product change event consumer.
func NewConsumer(idx *indexer.Indexer, logger *slog.Logger) *Consumer {
	return &Consumer{
		indexer: idx,
		logger:  logger,
	}
}

// Handle processes a product change event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductCreated, TopicProductUpdated:
		return c.handleProductUpserted(ctx, event)
	case TopicProductDeleted:
		return c.handleProductDeleted(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleProductUpserted applies a created or updated product change to the
// index. Created and updated converge on the same upsert, so swapped or
// duplicated deliveries of the two produce the same final document.
func (c *Consumer) handleProductUpserted(ctx context.Context, event *pkgkafka.Event) error {
	var change domain.ProductChange
	if err := event.UnmarshalData(&change); err != nil {
		c.logger.WarnContext(ctx, "dropping malformed product change event",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if change.ID <= 0 {
		c.logger.WarnContext(ctx, "dropping product change event without valid id",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
			slog.Int64("product_id", change.ID),
		)
		return nil
	}

	return c.indexer.Upsert(ctx, &change, event.Version)
}

// handleProductDeleted removes the product from the index.
func (c *Consumer) handleProductDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		c.logger.WarnContext(ctx, "dropping malformed product deleted event",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if data.ID <= 0 {
		c.logger.WarnContext(ctx, "dropping product deleted event without valid id",
			slog.String("event_id", event.EventID),
			slog.Int64("product_id", data.ID),
		)
		return nil
	}

	return c.indexer.Delete(ctx, data.ID)
}
