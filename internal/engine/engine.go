package engine

import (
	"context"

	"github.com/hannguyendd/ChangeCapture/internal/domain"
)

// SearchEngine defines the interface for maintaining and querying the product
// index. Implementations may use Elasticsearch or in-memory storage.
//
// All write operations are idempotent and version-conditional: a document
// write with a version older than the stored one is a silent no-op, and
// deleting an absent document succeeds. Reads of absent documents return
// errors.ErrNotFound from pkg/errors.
type SearchEngine interface {
	// EnsureIndex creates the index with its mapping if it does not exist.
	// Safe to call on every process start.
	EnsureIndex(ctx context.Context) error

	// Upsert inserts or fully replaces the document for doc.ID. The write is
	// synchronously visible: once Upsert returns, the document is searchable.
	Upsert(ctx context.Context, doc *domain.ProductDocument) error

	// Delete removes the document for the given ID if present.
	Delete(ctx context.Context, id int64) error

	// Search executes a ranked full-text query. An empty term matches
	// everything. Results are ordered by descending relevance, ties broken
	// by name ascending.
	Search(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error)

	// GetAll returns a page of all documents sorted by name ascending.
	GetAll(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error)

	// GetByID looks up a single document by its ID.
	GetByID(ctx context.Context, id int64) (*domain.ProductDocument, error)

	// BulkUpsert inserts or replaces multiple documents in one round trip.
	BulkUpsert(ctx context.Context, docs []domain.ProductDocument) error

	// Suggest returns autocomplete name suggestions for the given prefix.
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
}
