package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hannguyendd/ChangeCapture/internal/domain"
	"github.com/hannguyendd/ChangeCapture/internal/service"
	apperrors "github.com/hannguyendd/ChangeCapture/pkg/errors"
	"github.com/hannguyendd/ChangeCapture/pkg/httputil"
	"github.com/hannguyendd/ChangeCapture/pkg/pagination"
)

// SearchHandler handles HTTP requests for the product search endpoints.
//
// This is the boundary that normalizes untrusted input: pagination values
// are clamped here and only here, so the layers below always receive
// parameters they can trust.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// SearchResponse is the JSON shape of a paginated search result.
type SearchResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	TookMs   int64             `json:"took_ms"`
}

// ProductResponse is the JSON shape of a single indexed product.
type ProductResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Search handles GET /api/v1/search/products?term=&page=&page_size=
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	params := pagination.FromRequest(r)

	result, err := h.service.Search(r.Context(), &domain.SearchQuery{
		Term:     term,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toSearchResponse(result)})
}

// GetAll handles GET /api/v1/search/products/all?page=&page_size=
func (h *SearchHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	result, err := h.service.GetAll(r.Context(), &domain.SearchQuery{
		Page:     params.Page,
		PageSize: params.PageSize,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toSearchResponse(result)})
}

// GetByID handles GET /api/v1/search/products/{id}
func (h *SearchHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, r, apperrors.InvalidInput("id must be a positive integer"), h.logger)
		return
	}

	doc, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toProductResponse(doc)})
}

// Suggest handles GET /api/v1/search/suggest?prefix=&limit=
func (h *SearchHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))

	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 20 {
			limit = n
		}
	}

	suggestions, err := h.service.Suggest(r.Context(), prefix, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: suggestions})
}

// Reindex handles POST /api/v1/search/reindex. The rebuild runs in the
// background; the request is acknowledged with 202 as soon as it starts.
func (h *SearchHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	// The request context dies with the response; the rebuild should not.
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := h.service.Reindex(ctx); err != nil {
			h.logger.Error("background reindex failed", slog.String("error", err.Error()))
		}
	}()

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{
		Data: map[string]string{"status": "reindex started"},
	})
}

func toSearchResponse(result *domain.SearchResult) SearchResponse {
	products := make([]ProductResponse, 0, len(result.Products))
	for i := range result.Products {
		products = append(products, toProductResponse(&result.Products[i]))
	}
	return SearchResponse{
		Products: products,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
		TookMs:   result.TookMs,
	}
}

func toProductResponse(doc *domain.ProductDocument) ProductResponse {
	return ProductResponse{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Price:       doc.Price,
	}
}
