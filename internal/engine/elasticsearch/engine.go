package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/hannguyendd/ChangeCapture/internal/domain"
	apperrors "github.com/hannguyendd/ChangeCapture/pkg/errors"
)

// Engine is an Elasticsearch-backed implementation of the SearchEngine
// interface. Writes use external versioning so a redelivered or reordered
// change event can never overwrite a newer document with an older one, and
// refresh=wait_for so a write is searchable before it is acknowledged.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
}

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source domain.ProductDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// esGetResponse is the structure used to decode Elasticsearch get responses.
type esGetResponse struct {
	Found  bool                   `json:"found"`
	Source domain.ProductDocument `json:"_source"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates a new Elasticsearch engine connected to the given URL.
// If indexName is empty, DefaultIndexName ("products") is used.
// The index itself is created separately via EnsureIndex.
func New(esURL string, indexName string, logger *slog.Logger) (*Engine, error) {
	if indexName == "" {
		indexName = DefaultIndexName
	}

	cfg := elasticsearch.Config{
		Addresses: []string{esURL},
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	return &Engine{
		client:    client,
		indexName: indexName,
		logger:    logger,
	}, nil
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// EnsureIndex checks whether the products index exists and creates it with
// the mapping if not. Idempotent, intended to run on every process start.
func (e *Engine) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists(
		[]string{e.indexName},
		e.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	// Status 200 means the index exists.
	if res.StatusCode == http.StatusOK {
		e.logger.Info("elasticsearch index already exists", "index", e.indexName)
		return nil
	}

	mapping := buildIndexMapping()
	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(mapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("create index: %w", e.decodeError(res.Body, res.Status()))
	}

	e.logger.Info("elasticsearch index created", "index", e.indexName)
	return nil
}

// Upsert inserts or fully replaces the document for doc.ID. When doc.Version
// is set, the write uses version_type=external_gte: Elasticsearch applies it
// only if the incoming version is >= the stored one and answers 409 for a
// stale write, which is surfaced as ErrStaleVersion for the caller to treat
// as a no-op.
func (e *Engine) Upsert(ctx context.Context, doc *domain.ProductDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch upsert: marshal document: %w", err)
	}

	opts := []func(*esapi.IndexRequest){
		e.client.Index.WithDocumentID(docID(doc.ID)),
		e.client.Index.WithRefresh("wait_for"),
		e.client.Index.WithContext(ctx),
	}
	if doc.Version > 0 {
		opts = append(opts,
			e.client.Index.WithVersion(int(doc.Version)),
			e.client.Index.WithVersionType("external_gte"),
		)
	}

	res, err := e.client.Index(e.indexName, bytes.NewReader(data), opts...)
	if err != nil {
		return fmt.Errorf("elasticsearch upsert: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusConflict {
		return fmt.Errorf("elasticsearch upsert id=%d version=%d: %w", doc.ID, doc.Version, apperrors.ErrStaleVersion)
	}

	if res.IsError() {
		return fmt.Errorf("elasticsearch upsert: %w", e.decodeError(res.Body, res.Status()))
	}

	e.logger.Debug("indexed product", "id", doc.ID, "name", doc.Name, "version", doc.Version)
	return nil
}

// Delete removes a product from the Elasticsearch index by its ID.
// It does not return an error if the document does not exist (404 is ignored).
func (e *Engine) Delete(ctx context.Context, id int64) error {
	res, err := e.client.Delete(
		e.indexName,
		docID(id),
		e.client.Delete.WithRefresh("wait_for"),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	// Ignore 404: deleting an absent document is success.
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("elasticsearch delete: %w", e.decodeError(res.Body, res.Status()))
	}

	e.logger.Debug("deleted product", "id", id)
	return nil
}

// Search executes a ranked full-text query. An empty term matches everything.
func (e *Engine) Search(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error) {
	esQuery := buildSearchQuery(query)
	return e.executeSearch(ctx, query, esQuery, "search")
}

// GetAll returns a page of all documents sorted by name ascending.
func (e *Engine) GetAll(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error) {
	esQuery := buildGetAllQuery(query)
	return e.executeSearch(ctx, query, esQuery, "get all")
}

func (e *Engine) executeSearch(ctx context.Context, query *domain.SearchQuery, esQuery map[string]interface{}, op string) (*domain.SearchResult, error) {
	data, err := json.Marshal(esQuery)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch %s: marshal query: %w", op, err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch %s: %w", op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch %s: %w", op, e.decodeError(res.Body, res.Status()))
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch %s: decode response: %w", op, err)
	}

	products := make([]domain.ProductDocument, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		products = append(products, hit.Source)
	}

	return &domain.SearchResult{
		Products: products,
		Total:    esResp.Hits.Total.Value,
		Page:     query.Page,
		PageSize: query.PageSize,
		TookMs:   int64(esResp.Took),
	}, nil
}

// GetByID looks up a single document by its ID. An absent document yields
// ErrNotFound, not a generic error.
func (e *Engine) GetByID(ctx context.Context, id int64) (*domain.ProductDocument, error) {
	res, err := e.client.Get(
		e.indexName,
		docID(id),
		e.client.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("elasticsearch get id=%d: %w", id, apperrors.ErrNotFound)
	}

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch get: %w", e.decodeError(res.Body, res.Status()))
	}

	var esResp esGetResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch get: decode response: %w", err)
	}
	if !esResp.Found {
		return nil, fmt.Errorf("elasticsearch get id=%d: %w", id, apperrors.ErrNotFound)
	}

	doc := esResp.Source
	return &doc, nil
}

// BulkUpsert inserts or replaces multiple documents in the Elasticsearch
// index using the bulk NDJSON API.
func (e *Engine) BulkUpsert(ctx context.Context, docs []domain.ProductDocument) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer

	for i := range docs {
		// Action line. Per-item external versioning keeps a concurrent
		// stream of newer change events from being overwritten by the bulk.
		meta := map[string]interface{}{
			"_index": e.indexName,
			"_id":    docID(docs[i].ID),
		}
		if docs[i].Version > 0 {
			meta["version"] = docs[i].Version
			meta["version_type"] = "external_gte"
		}
		action := map[string]interface{}{"index": meta}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk upsert: encode action: %w", err)
		}

		// Document line.
		if err := json.NewEncoder(&buf).Encode(docs[i]); err != nil {
			return fmt.Errorf("elasticsearch bulk upsert: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh("wait_for"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk upsert: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk upsert: %w", e.decodeError(res.Body, res.Status()))
	}

	// Parse the bulk response to check for per-item errors.
	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk upsert: decode response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			if item.Index.Error.Type == "" {
				continue
			}
			// A version conflict means a newer document is already indexed.
			if item.Index.Status == http.StatusConflict {
				e.logger.Debug("skipped stale document in bulk", "id", item.Index.ID)
				continue
			}
			errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s, %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
		}
		if len(errMsgs) > 0 {
			return fmt.Errorf("elasticsearch bulk upsert: partial errors: %s", strings.Join(errMsgs, "; "))
		}
	}

	e.logger.Info("bulk indexed products", "count", len(docs))
	return nil
}

// Suggest returns up to limit distinct product names whose autocomplete
// subfield matches the given prefix.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if strings.TrimSpace(prefix) == "" {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"name.autocomplete": map[string]interface{}{
					"query":    prefix,
					"operator": "and",
				},
			},
		},
		// Oversample so deduplicating names still fills the limit.
		"size":    limit * 3,
		"_source": []string{"name"},
	}

	data, err := json.Marshal(esQuery)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch suggest: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch suggest: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch suggest: %w", e.decodeError(res.Body, res.Status()))
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch suggest: decode response: %w", err)
	}

	seen := make(map[string]struct{}, limit)
	suggestions := make([]string, 0, limit)
	for _, hit := range esResp.Hits.Hits {
		name := hit.Source.Name
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		suggestions = append(suggestions, name)
		if len(suggestions) >= limit {
			break
		}
	}
	return suggestions, nil
}

// decodeError decodes an Elasticsearch error body into a readable error,
// preserving the engine's diagnostic payload for the logs.
func (e *Engine) decodeError(body io.Reader, status string) error {
	var errResp esErrorResponse
	if decErr := json.NewDecoder(body).Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s", errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("unexpected status %s", status)
}

// docID converts a product ID to its index document ID.
func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// buildSearchQuery constructs the Elasticsearch query DSL for a ranked
// search: multi_match over name (boosted) and description with automatic
// fuzziness and best-fields scoring, ordered by score with name as the
// deterministic tie-break.
func buildSearchQuery(query *domain.SearchQuery) map[string]interface{} {
	var matchClause interface{}
	if strings.TrimSpace(query.Term) != "" {
		matchClause = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query.Term,
				"fields":    []string{"name^2", "description"},
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		}
	} else {
		matchClause = map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	}

	return map[string]interface{}{
		"query": matchClause,
		"from":  query.Offset(),
		"size":  query.PageSize,
		"sort": []interface{}{
			map[string]interface{}{"_score": "desc"},
			map[string]interface{}{"name.keyword": "asc"},
		},
		"track_total_hits": true,
	}
}

// buildGetAllQuery constructs the match-all listing query sorted by name.
func buildGetAllQuery(query *domain.SearchQuery) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"match_all": map[string]interface{}{},
		},
		"from": query.Offset(),
		"size": query.PageSize,
		"sort": []interface{}{
			map[string]interface{}{"name.keyword": "asc"},
		},
		"track_total_hits": true,
	}
}
