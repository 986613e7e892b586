package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hannguyendd/ChangeCapture/internal/domain"
	"github.com/hannguyendd/ChangeCapture/pkg/httpclient"
	"github.com/hannguyendd/ChangeCapture/pkg/validator"
)

// reindexPageSize is the number of products fetched from the catalog
// service per page during a full reindex.
const reindexPageSize = 100

// ErrReindexInProgress is returned when a reindex is requested while a
// previous one is still running.
var ErrReindexInProgress = fmt.Errorf("reindex already in progress")

// reindexResponse is the paginated envelope returned by the catalog
// service's product listing endpoint.
type reindexResponse struct {
	Data       []catalogProduct `json:"data"`
	TotalCount int              `json:"total_count"`
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
}

// catalogProduct is the catalog service's representation of a product.
type catalogProduct struct {
	ID          int64   `json:"id" validate:"required,gt=0"`
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"gte=0"`
	Version     int64   `json:"version" validate:"gte=0"`
}

// Reindex rebuilds the search index from the authoritative catalog service.
// It pages through the catalog's product listing and bulk-writes each page.
// Versions carried by the catalog keep the rebuild from clobbering newer
// documents written concurrently by the event consumers.
//
// Only one reindex runs at a time; a second request while one is in flight
// returns ErrReindexInProgress.
func (s *SearchService) Reindex(ctx context.Context) error {
	if s.catalogURL == "" {
		return fmt.Errorf("reindex: catalog service URL is not configured")
	}
	if !s.reindexing.CompareAndSwap(false, true) {
		return ErrReindexInProgress
	}
	defer s.reindexing.Store(false)

	s.logger.InfoContext(ctx, "starting full reindex", slog.String("catalog_url", s.catalogURL))

	total := 0
	for page := 1; ; page++ {
		resp, err := s.fetchCatalogPage(ctx, page)
		if err != nil {
			return fmt.Errorf("reindex: fetch page %d: %w", page, err)
		}

		if len(resp.Data) == 0 {
			break
		}

		docs := make([]domain.ProductDocument, 0, len(resp.Data))
		for _, p := range resp.Data {
			if err := validator.Validate(p); err != nil {
				s.logger.WarnContext(ctx, "skipping malformed catalog product",
					slog.Int64("product_id", p.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			docs = append(docs, domain.ProductDocument{
				ID:          p.ID,
				Name:        p.Name,
				Description: p.Description,
				Price:       p.Price,
				Version:     p.Version,
			})
		}

		if len(docs) > 0 {
			if err := s.engine.BulkUpsert(ctx, docs); err != nil {
				return fmt.Errorf("reindex: bulk upsert page %d: %w", page, err)
			}
			total += len(docs)
		}

		if resp.TotalPages > 0 && page >= resp.TotalPages {
			break
		}
	}

	s.logger.InfoContext(ctx, "full reindex complete", slog.Int("products", total))
	return nil
}

// fetchCatalogPage retrieves one page of products from the catalog service.
func (s *SearchService) fetchCatalogPage(ctx context.Context, page int) (*reindexResponse, error) {
	url := fmt.Sprintf("%s/api/v1/products?page=%d&page_size=%d", s.catalogURL, page, reindexPageSize)

	resp, err := s.catalog.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "catalog-service")
	}

	var out reindexResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	return &out, nil
}
