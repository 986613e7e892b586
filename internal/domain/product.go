package domain

// ProductChange is a flat snapshot of a product's state at publish time,
// carried as the data payload of a product change event. Identity is assigned
// by the catalog; this service only mirrors it.
type ProductChange struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// ProductDocument is the product document stored in the search index, keyed
// by the catalog's product ID. Version is the monotonic ordering token from
// the change event: the index applies a write only when the incoming version
// is not older than the stored one, making the index a last-writer-wins
// register instead of a last-arrived-wins one.
type ProductDocument struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Version     int64   `json:"-"`
}

// SearchQuery holds the parameters for a search request. Term may be empty,
// which means "match everything". Page and PageSize are taken as given: the
// HTTP boundary validates them (page >= 1, 1 <= page_size <= 100), layers
// below do not re-clamp.
type SearchQuery struct {
	Term     string `json:"term"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// Offset computes the result offset for the current page.
func (q SearchQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// SearchResult holds one page of matching documents, ranked or sorted.
type SearchResult struct {
	Products []ProductDocument `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	TookMs   int64             `json:"took_ms"`
}
