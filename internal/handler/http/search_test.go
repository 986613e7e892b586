package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannguyendd/ChangeCapture/internal/domain"
	"github.com/hannguyendd/ChangeCapture/internal/engine/memory"
	"github.com/hannguyendd/ChangeCapture/internal/service"
	"github.com/hannguyendd/ChangeCapture/pkg/health"
	"github.com/hannguyendd/ChangeCapture/pkg/httputil"
	"github.com/hannguyendd/ChangeCapture/pkg/logger"
)

func newTestRouter(t *testing.T) (http.Handler, *memory.Engine) {
	t.Helper()
	eng := memory.New()
	log := logger.New("search-test", "debug")
	svc := service.NewSearchService(eng, log, "")
	return NewRouter(svc, health.NewHandler(), log), eng
}

func seedProducts(t *testing.T, eng *memory.Engine) {
	t.Helper()
	ctx := context.Background()
	docs := []domain.ProductDocument{
		{ID: 1, Name: "Wireless Headphones", Description: "Bluetooth over-ear headphones", Price: 99.99},
		{ID: 2, Name: "Mechanical Keyboard", Description: "Tactile switches", Price: 129.99},
		{ID: 3, Name: "Wireless Mouse", Description: "Ergonomic mouse", Price: 49.99},
	}
	for i := range docs {
		require.NoError(t, eng.Upsert(ctx, &docs[i]))
	}
}

func doRequest(t *testing.T, router http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeSearchResponse(t *testing.T, rec *httptest.ResponseRecorder) SearchResponse {
	t.Helper()
	var envelope struct {
		Data SearchResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestSearch_ReturnsMatches(t *testing.T) {
	router, eng := newTestRouter(t)
	seedProducts(t, eng)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/search/products?term=wireless")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeSearchResponse(t, rec)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 10, resp.PageSize)
}

func TestSearch_EmptyTermReturnsEverything(t *testing.T) {
	router, eng := newTestRouter(t)
	seedProducts(t, eng)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/search/products")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeSearchResponse(t, rec)
	assert.Equal(t, 3, resp.Total)
}

func TestSearch_ClampsInvalidPagination(t *testing.T) {
	router, eng := newTestRouter(t)
	seedProducts(t, eng)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/search/products?page=0&page_size=1000")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeSearchResponse(t, rec)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 10, resp.PageSize)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/search/products?page=abc&page_size=-5")
	require.Equal(t, http.StatusOK, rec.Code)

	resp = decodeSearchResponse(t, rec)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 10, resp.PageSize)
}

func TestSearch_Pagination(t *testing.T) {
	router, eng := newTestRouter(t)
	ctx := context.Background()
	for i := int64(1); i <= 25; i++ {
		require.NoError(t, eng.Upsert(ctx, &domain.ProductDocument{ID: i, Name: "Gadget"}))
	}

	rec := doRequest(t, router, http.MethodGet, "/api/v1/search/products?term=gadget&page=3&page_size=10")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeSearchResponse(t, rec)
	assert.Equal(t, 25, resp.Total)
	assert.Len(t, resp.Products, 5)
	assert.Equal(t, 3, resp.Page)
}

func TestGetAll_SortedByName(t *testing.T) {
	router, eng := newTestRouter(t)
	seedProducts(t, eng)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/search/products/all")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeSearchResponse(t, rec)
	require.Equal(t, 3, resp.Total)
	assert.Equal(t, "Mechanical Keyboard", resp.Products[0].Name)
	assert.Equal(t, "Wireless Headphones", resp.Products[1].Name)
	assert.Equal(t, "Wireless Mouse", resp.Products[2].Name)
}

func TestGetByID_Found(t *testing.T) {
	router, eng := newTestRouter(t)
	seedProducts(t, eng)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/search/products/2")
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data ProductResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, int64(2), envelope.Data.ID)
	assert.Equal(t, "Mechanical Keyboard", envelope.Data.Name)
	assert.Equal(t, 129.99, envelope.Data.Price)
}

func TestGetByID_NotFound(t *testing.T) {
	router, eng := newTestRouter(t)
	seedProducts(t, eng)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/search/products/404")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetByID_InvalidID(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/search/products/not-a-number")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_INPUT", envelope.Error.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/search/products/-7")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggest(t *testing.T) {
	router, eng := newTestRouter(t)
	seedProducts(t, eng)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/search/suggest?prefix=wire")
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, []string{"Wireless Headphones", "Wireless Mouse"}, envelope.Data)
}

func TestReindex_Accepted(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/search/reindex")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
