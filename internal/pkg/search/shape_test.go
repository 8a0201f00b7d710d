package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"parliasearch/internal/pkg/models"
)

func TestShapeResult(t *testing.T) {
	raw := []byte(`{
		"hits": {
			"total": {"value": 42},
			"hits": [{
				"_id": "store-id",
				"_source": {
					"id": "doc-1",
					"title": "Protokoll",
					"source": "bundestag",
					"publication_date": "2024-05-15T00:00:00Z",
					"url": "https://example.org/1",
					"content": "Langer Text."
				},
				"highlight": {"content": ["ein <mark>Treffer</mark> im Text"]}
			}]
		},
		"aggregations": {
			"sources": {"buckets": [{"key": "bundestag", "doc_count": 30}, {"key": "eu", "doc_count": 12}]},
			"doc_types": {"buckets": [{"key": "plenarprotokoll", "doc_count": 18}]}
		}
	}`)

	result, err := ShapeResult(raw, models.SearchQuery{Page: 2, Size: 10})
	require.NoError(t, err)

	require.EqualValues(t, 42, result.Total)
	require.Equal(t, 2, result.Page)
	require.Equal(t, 10, result.Size)
	require.Len(t, result.Hits, 1)

	hit := result.Hits[0]
	require.Equal(t, "doc-1", hit.ID)
	require.Equal(t, "ein <mark>Treffer</mark> im Text", hit.Snippet)

	require.Equal(t, []models.Bucket{
		{Key: "bundestag", Count: 30},
		{Key: "eu", Count: 12},
	}, result.Aggregations.Sources)
	require.Equal(t, []models.Bucket{{Key: "plenarprotokoll", Count: 18}}, result.Aggregations.DocTypes)
}

// When the stored document has no explicit id the store-level id stands in.
func TestShapeResultStoreIDFallback(t *testing.T) {
	raw := []byte(`{"hits": {"total": {"value": 1}, "hits": [{"_id": "abc123", "_source": {"content": "x"}}]}}`)

	result, err := ShapeResult(raw, models.SearchQuery{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Equal(t, "abc123", result.Hits[0].ID)
}

func TestShapeResultRejectsGarbage(t *testing.T) {
	_, err := ShapeResult([]byte("not json"), models.SearchQuery{})
	require.Error(t, err)
}

// Snippet preference order: content highlight, title highlight, truncated
// plain content, empty.
func TestSnippetFallbackChain(t *testing.T) {
	withContent := rawHit{Highlight: map[string][]string{
		"content": {"content <mark>frag</mark>"},
		"title":   {"title <mark>frag</mark>"},
	}}
	require.Equal(t, "content <mark>frag</mark>", snippet(withContent))

	withTitle := rawHit{Highlight: map[string][]string{"title": {"title <mark>frag</mark>"}}}
	require.Equal(t, "title <mark>frag</mark>", snippet(withTitle))

	var withPlain rawHit
	withPlain.Source.Content = strings.Repeat("ä", snippetBudget+50)
	got := snippet(withPlain)
	require.True(t, strings.HasSuffix(got, snippetEllipsis))
	require.Len(t, []rune(got), snippetBudget+len([]rune(snippetEllipsis)))

	require.Equal(t, "", snippet(rawHit{}))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "kurz", Truncate("kurz", 10))

	// Rune-counted so umlauts are never split.
	in := strings.Repeat("ü", 12)
	out := Truncate(in, 10)
	require.Equal(t, strings.Repeat("ü", 10)+snippetEllipsis, out)

	require.Equal(t, "", Truncate("", 10))
}
