package search

import (
	"parliasearch/internal/pkg/models"
)

// Boosts and highlight bounds for the relevance query. The phrase clauses
// outrank the cross-field clause; the fuzzy clause is a low-boost recall
// safety net so near-miss spelling never returns zero results.
const (
	crossFieldsBoost = 3.0
	titlePhraseBoost = 4.0
	contentPhrase    = 2.0
	fuzzyBoost       = 0.2
	phraseSlop       = 2
	fragmentSize     = 180
	snippetBudget    = 300
	snippetEllipsis  = "…"
	highlightPreTag  = "<mark>"
	highlightPostTag = "</mark>"
)

// Fields echoed back with each hit.
var sourceFields = []string{
	"id", "title", "source", "publication_date", "url", "content",
	"metadata.document_type",
}

// Compiles a SearchQuery into the structured store request. With empty free
// text the query degrades to match-everything plus filters; browsing without
// ranking is a first-class mode.
func BuildQuery(q models.SearchQuery) map[string]any {
	var must []any
	if q.Text != "" {
		must = append(must, map[string]any{
			"bool": map[string]any{
				"should":               textClauses(q.Text),
				"minimum_should_match": 1,
			},
		})
	} else {
		must = append(must, map[string]any{"match_all": map[string]any{}})
	}

	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must":   must,
				"filter": filterClauses(q),
			},
		},
		"from":    (q.Page - 1) * q.Size,
		"size":    q.Size,
		"_source": sourceFields,
		// Facet counts are computed over the same filtered result set as
		// the hits (post-filter), so they reflect the applied filters.
		"aggs": map[string]any{
			"sources":   map[string]any{"terms": map[string]any{"field": "source"}},
			"doc_types": map[string]any{"terms": map[string]any{"field": "metadata.document_type"}},
		},
	}

	if q.Text != "" {
		body["highlight"] = highlightSpec()
	}
	return body
}

// The four boosted sub-clauses of the must block: all-terms cross-field
// match, title phrase, content phrase, and the fuzzy fallback. At least one
// of them has to match.
func textClauses(text string) []any {
	return []any{
		map[string]any{
			"multi_match": map[string]any{
				"query":    text,
				"fields":   []string{"title^2", "content"},
				"type":     "cross_fields",
				"operator": "and",
				"boost":    crossFieldsBoost,
			},
		},
		map[string]any{
			"match_phrase": map[string]any{
				"title": map[string]any{
					"query": text,
					"boost": titlePhraseBoost,
					"slop":  phraseSlop,
				},
			},
		},
		map[string]any{
			"match_phrase": map[string]any{
				"content": map[string]any{
					"query": text,
					"boost": contentPhrase,
					"slop":  phraseSlop,
				},
			},
		},
		map[string]any{
			"multi_match": map[string]any{
				"query":                text,
				"fields":               []string{"title^2", "content"},
				"type":                 "best_fields",
				"operator":             "or",
				"fuzziness":            "AUTO",
				"fuzzy_transpositions": true,
				"boost":                fuzzyBoost,
			},
		},
	}
}

// Non-scoring filters, each applied only when its input is non-empty.
func filterClauses(q models.SearchQuery) []any {
	filters := []any{}

	if len(q.Sources) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"source": q.Sources},
		})
	}
	if len(q.DocTypes) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"metadata.document_type": q.DocTypes},
		})
	}
	if q.DateFrom != "" || q.DateTo != "" {
		bounds := map[string]any{}
		if q.DateFrom != "" {
			bounds["gte"] = q.DateFrom
		}
		if q.DateTo != "" {
			bounds["lte"] = q.DateTo
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"publication_date": bounds},
		})
	}
	return filters
}

// One bounded content fragment with a leading-excerpt fallback, plus the
// whole title. require_field_match is off so a cross-field hit still
// highlights.
func highlightSpec() map[string]any {
	return map[string]any{
		"pre_tags":            []string{highlightPreTag},
		"post_tags":           []string{highlightPostTag},
		"require_field_match": false,
		"fields": map[string]any{
			"content": map[string]any{
				"fragment_size":       fragmentSize,
				"number_of_fragments": 1,
				"no_match_size":       fragmentSize,
				"order":               "score",
			},
			"title": map[string]any{"number_of_fragments": 0},
		},
	}
}
