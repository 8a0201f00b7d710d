package models

// Page size bounds enforced at the API boundary.
const (
	MinPageSize = 1
	MaxPageSize = 100
)

// A relevance query as received from the HTTP surface. Immutable once built;
// an empty Text degrades to a filtered browse.
type SearchQuery struct {
	Text     string   `json:"search_terms,omitempty"`
	Sources  []string `json:"source,omitempty"`
	DocTypes []string `json:"doc_type,omitempty"`
	DateFrom string   `json:"date_from,omitempty"`
	DateTo   string   `json:"date_to,omitempty"`
	Page     int      `json:"page"`
	Size     int      `json:"size"`
}

// One shaped search hit.
type Hit struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Source          string `json:"source"`
	PublicationDate string `json:"publication_date,omitempty"`
	URL             string `json:"url,omitempty"`
	Snippet         string `json:"snippet,omitempty"`
}

// One facet bucket: a field value and the number of matching documents.
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"doc_count"`
}

// Facet counts grouped by source and by document type. Counts reflect the
// currently applied filters (post-filter facets).
type Aggregations struct {
	Sources  []Bucket `json:"sources"`
	DocTypes []Bucket `json:"doc_types"`
}

// The uniform results envelope returned to the caller.
type SearchResult struct {
	Total        int64        `json:"total"`
	Page         int          `json:"page"`
	Size         int          `json:"size"`
	Hits         []Hit        `json:"hits"`
	Aggregations Aggregations `json:"aggs"`
}
