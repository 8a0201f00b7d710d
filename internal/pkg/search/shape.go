package search

import (
	"encoding/json"
	"fmt"

	"parliasearch/internal/pkg/models"
)

// Raw store response reduced to the fields the shaper reads.
type rawResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []rawHit `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		Sources  rawAgg `json:"sources"`
		DocTypes rawAgg `json:"doc_types"`
	} `json:"aggregations"`
}

type rawHit struct {
	ID     string `json:"_id"`
	Source struct {
		ID              string `json:"id"`
		Title           string `json:"title"`
		Source          string `json:"source"`
		PublicationDate string `json:"publication_date"`
		URL             string `json:"url"`
		Content         string `json:"content"`
	} `json:"_source"`
	Highlight map[string][]string `json:"highlight"`
}

type rawAgg struct {
	Buckets []struct {
		Key      string `json:"key"`
		DocCount int64  `json:"doc_count"`
	} `json:"buckets"`
}

// Turns a raw store response into the uniform results envelope.
func ShapeResult(raw []byte, q models.SearchQuery) (models.SearchResult, error) {
	var resp rawResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return models.SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}

	result := models.SearchResult{
		Total: resp.Hits.Total.Value,
		Page:  q.Page,
		Size:  q.Size,
		Hits:  make([]models.Hit, 0, len(resp.Hits.Hits)),
		Aggregations: models.Aggregations{
			Sources:  buckets(resp.Aggregations.Sources),
			DocTypes: buckets(resp.Aggregations.DocTypes),
		},
	}

	for _, h := range resp.Hits.Hits {
		id := h.Source.ID
		if id == "" {
			id = h.ID
		}
		result.Hits = append(result.Hits, models.Hit{
			ID:              id,
			Title:           h.Source.Title,
			Source:          h.Source.Source,
			PublicationDate: h.Source.PublicationDate,
			URL:             h.Source.URL,
			Snippet:         snippet(h),
		})
	}
	return result, nil
}

// Snippet preference: highlighted content fragment, then highlighted title,
// then a plain truncated excerpt of the content.
func snippet(h rawHit) string {
	if frags := h.Highlight["content"]; len(frags) > 0 {
		return frags[0]
	}
	if frags := h.Highlight["title"]; len(frags) > 0 {
		return frags[0]
	}
	if h.Source.Content != "" {
		return Truncate(h.Source.Content, snippetBudget)
	}
	return ""
}

// Cuts text to at most budget runes, appending an ellipsis when something
// was cut. Rune-based so multi-byte German text is never split mid-character.
func Truncate(text string, budget int) string {
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return string(runes[:budget]) + snippetEllipsis
}

func buckets(agg rawAgg) []models.Bucket {
	out := make([]models.Bucket, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		out = append(out, models.Bucket{Key: b.Key, Count: b.DocCount})
	}
	return out
}
