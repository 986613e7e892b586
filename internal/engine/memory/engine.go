package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/hannguyendd/ChangeCapture/internal/domain"
	apperrors "github.com/hannguyendd/ChangeCapture/pkg/errors"
)

// Engine is an in-memory implementation of the SearchEngine interface.
// It provides tokenized fuzzy matching on name and description fields with
// the same version-conditional write semantics as the Elasticsearch engine.
// Thread-safe via sync.RWMutex.
type Engine struct {
	mu       sync.RWMutex
	products map[int64]domain.ProductDocument
}

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{
		products: make(map[int64]domain.ProductDocument),
	}
}

// EnsureIndex is a no-op for the in-memory engine.
func (e *Engine) EnsureIndex(_ context.Context) error {
	return nil
}

// Ping always succeeds for the in-memory engine.
func (e *Engine) Ping(_ context.Context) error {
	return nil
}

// Upsert adds or fully replaces a single product in the in-memory index.
// A write with a version older than the stored one is rejected with
// ErrStaleVersion so the caller can treat it as a no-op.
func (e *Engine) Upsert(_ context.Context, doc *domain.ProductDocument) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.upsertLocked(doc)
}

func (e *Engine) upsertLocked(doc *domain.ProductDocument) error {
	if existing, ok := e.products[doc.ID]; ok && doc.Version > 0 && doc.Version < existing.Version {
		return fmt.Errorf("memory upsert id=%d version=%d: %w", doc.ID, doc.Version, apperrors.ErrStaleVersion)
	}
	e.products[doc.ID] = *doc
	return nil
}

// Delete removes a product from the in-memory index by its ID.
// Deleting an absent product succeeds.
func (e *Engine) Delete(_ context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.products, id)
	return nil
}

// Search executes a ranked fuzzy search query against the in-memory index.
// An empty term matches everything.
func (e *Engine) Search(_ context.Context, query *domain.SearchQuery) (*domain.SearchResult, error) {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	term := strings.ToLower(strings.TrimSpace(query.Term))

	type scored struct {
		doc   domain.ProductDocument
		score int
	}

	matched := make([]scored, 0)
	for _, p := range e.products {
		score := e.score(p, term)
		if score < 0 {
			continue
		}
		matched = append(matched, scored{doc: p, score: score})
	}

	// Order by descending score, ties broken by name ascending.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		return matched[i].doc.Name < matched[j].doc.Name
	})

	total := len(matched)
	page := paginate(matched, query.Offset(), query.PageSize)

	products := make([]domain.ProductDocument, 0, len(page))
	for _, s := range page {
		products = append(products, s.doc)
	}

	return &domain.SearchResult{
		Products: products,
		Total:    total,
		Page:     query.Page,
		PageSize: query.PageSize,
		TookMs:   time.Since(start).Milliseconds(),
	}, nil
}

// GetAll returns a page of all products sorted by name ascending.
func (e *Engine) GetAll(_ context.Context, query *domain.SearchQuery) (*domain.SearchResult, error) {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	all := make([]domain.ProductDocument, 0, len(e.products))
	for _, p := range e.products {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name < all[j].Name
	})

	total := len(all)
	page := paginate(all, query.Offset(), query.PageSize)

	return &domain.SearchResult{
		Products: page,
		Total:    total,
		Page:     query.Page,
		PageSize: query.PageSize,
		TookMs:   time.Since(start).Milliseconds(),
	}, nil
}

// GetByID looks up a single product by its ID.
func (e *Engine) GetByID(_ context.Context, id int64) (*domain.ProductDocument, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.products[id]
	if !ok {
		return nil, fmt.Errorf("memory get id=%d: %w", id, apperrors.ErrNotFound)
	}
	return &p, nil
}

// BulkUpsert adds or replaces multiple products in the in-memory index.
// Stale versions are skipped, not errors, matching the bulk semantics of
// the Elasticsearch engine.
func (e *Engine) BulkUpsert(_ context.Context, docs []domain.ProductDocument) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range docs {
		_ = e.upsertLocked(&docs[i])
	}
	return nil
}

// Suggest returns up to limit distinct product names starting with the
// given prefix, ordered by name.
func (e *Engine) Suggest(_ context.Context, prefix string, limit int) ([]string, error) {
	if strings.TrimSpace(prefix) == "" {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	prefixLower := strings.ToLower(prefix)
	seen := make(map[string]struct{})
	names := make([]string, 0, limit)

	for _, p := range e.products {
		if !strings.HasPrefix(strings.ToLower(p.Name), prefixLower) {
			continue
		}
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		names = append(names, p.Name)
	}

	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

// score rates a product against the search term. A negative result means no
// match. Name matches weigh double description matches, mirroring the field
// boosts used by the Elasticsearch query.
func (e *Engine) score(p domain.ProductDocument, term string) int {
	if term == "" {
		return 0
	}

	nameLower := strings.ToLower(p.Name)
	descLower := strings.ToLower(p.Description)

	score := -1
	for _, token := range strings.Fields(term) {
		if fuzzyContains(nameLower, token) {
			score = max(score, 0) + 2
		} else if fuzzyContains(descLower, token) {
			score = max(score, 0) + 1
		}
	}
	return score
}

// fuzzyContains reports whether any word of text matches the token within
// the edit-distance tiers of automatic fuzziness: exact for short tokens,
// one edit for medium tokens, two edits for long tokens.
func fuzzyContains(text, token string) bool {
	if strings.Contains(text, token) {
		return true
	}

	maxEdits := 0
	switch n := len(token); {
	case n > 5:
		maxEdits = 2
	case n >= 3:
		maxEdits = 1
	}
	if maxEdits == 0 {
		return false
	}

	for _, word := range strings.Fields(text) {
		if levenshtein.ComputeDistance(word, token) <= maxEdits {
			return true
		}
	}
	return false
}

// paginate clips a sorted result slice to the requested window.
func paginate[T any](items []T, offset, size int) []T {
	total := len(items)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + size
	if size <= 0 || end > total {
		end = total
	}
	return items[offset:end]
}
