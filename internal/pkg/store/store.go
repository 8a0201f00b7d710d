// Client for the document store. The store is a black box doing the actual
// tokenization and scoring; this package only ships documents and queries to
// it in the right shape.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"parliasearch/internal/pkg/canonical"
	"parliasearch/internal/pkg/config"
	"parliasearch/internal/pkg/logger"
	"parliasearch/internal/pkg/models"
)

// Index settings and mapping: German analysis chain for the full-text
// fields, keywords for everything filterable, dates as instants. The raw
// subfield on title keeps an exact-match variant alongside the stemmed one.
const indexBody = `{
  "settings": {
    "index": {"number_of_shards": 1, "number_of_replicas": 0},
    "analysis": {
      "analyzer": {
        "german_custom": {
          "tokenizer": "standard",
          "filter": ["lowercase", "german_normalization", "german_stem"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id": {"type": "keyword"},
      "title": {
        "type": "text",
        "analyzer": "german_custom",
        "fields": {"raw": {"type": "keyword"}}
      },
      "content": {"type": "text", "analyzer": "german_custom"},
      "source": {"type": "keyword"},
      "source_name": {"type": "keyword"},
      "publication_date": {"type": "date"},
      "url": {"type": "keyword"},
      "language": {"type": "keyword"},
      "metadata": {
        "properties": {
          "document_type": {"type": "keyword"}
        }
      },
      "ingested_at": {"type": "date"}
    }
  }
}`

// Wraps the typed store client. Constructed once at process start and passed
// to every component that needs it.
type Client struct {
	es *es.Client
}

func NewClient(cfg *config.Config) (*Client, error) {
	address := cfg.ElasticsearchURL
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}

	clientConfig := es.Config{
		Addresses:  []string{address},
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.ElasticUser != "" {
		clientConfig.Username = cfg.ElasticUser
		clientConfig.Password = cfg.ElasticPassword
	}

	esClient, err := es.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create store client: %w", err)
	}
	return &Client{es: esClient}, nil
}

// Verifies the store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("store ping failed: %s", string(body))
	}
	return nil
}

// Creates the index with its schema if absent; a no-op otherwise. Never
// recreates an existing index.
func (c *Client) EnsureIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("index existence check returned status %d", res.StatusCode)
	}

	createRes, err := c.es.Indices.Create(index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexBody)))
	if err != nil {
		return err
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		body, _ := io.ReadAll(createRes.Body)
		return fmt.Errorf("index creation failed: %s", string(body))
	}

	logger.Log.Info("Created index", zap.String("index", index))
	return nil
}

// Per-item outcome of a bulk response.
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Upsert-style bulk write. Each document's store-level id is its canonical
// id, derived from the URL when the document arrived without one, so
// re-ingestion overwrites instead of appending. Individual failures are
// collected; they never invalidate the rest of the batch.
func (c *Client) BulkUpsert(ctx context.Context, index string, docs []models.CanonicalDocument) (models.BulkReport, error) {
	var report models.BulkReport
	if len(docs) == 0 {
		return report, nil
	}

	var payload bytes.Buffer
	for i := range docs {
		doc := docs[i]
		if doc.ID == "" && doc.URL != "" {
			doc.ID = canonical.DocID(doc.URL)
		}

		meta := map[string]map[string]string{
			"index": {"_index": index, "_id": doc.ID},
		}
		metaLine, err := json.Marshal(meta)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", doc.ID, err))
			continue
		}
		docLine, err := json.Marshal(doc)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", doc.ID, err))
			continue
		}
		payload.Write(metaLine)
		payload.WriteByte('\n')
		payload.Write(docLine)
		payload.WriteByte('\n')
	}

	res, err := c.es.Bulk(bytes.NewReader(payload.Bytes()), c.es.Bulk.WithContext(ctx))
	if err != nil {
		return report, fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return report, fmt.Errorf("bulk request returned status %d: %s", res.StatusCode, string(body))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return report, fmt.Errorf("decode bulk response: %w", err)
	}

	for _, item := range parsed.Items {
		for _, outcome := range item {
			if outcome.Status >= 200 && outcome.Status < 300 {
				report.Indexed++
			} else if outcome.Error != nil {
				report.Errors = append(report.Errors,
					fmt.Sprintf("%s: %s: %s", outcome.ID, outcome.Error.Type, outcome.Error.Reason))
			} else {
				report.Errors = append(report.Errors,
					fmt.Sprintf("%s: status %d", outcome.ID, outcome.Status))
			}
		}
	}

	// Make the write visible to immediately-subsequent reads. Needed by the
	// synchronous verification flows, not for steady-state throughput.
	if err := c.Refresh(ctx, index); err != nil {
		logger.Log.Warn("Index refresh failed", zap.Error(err))
	}
	return report, nil
}

// Triggers an explicit visibility refresh.
func (c *Client) Refresh(ctx context.Context, index string) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(index))
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

// Reports whether a document with the given id is stored.
func (c *Client) Exists(ctx context.Context, index, id string) (bool, error) {
	res, err := c.es.Exists(index, id, c.es.Exists.WithContext(ctx))
	if err != nil {
		return false, err
	}
	res.Body.Close()
	return res.StatusCode == http.StatusOK, nil
}

// Executes a structured query and returns the raw response body.
func (c *Client) Search(ctx context.Context, index string, body map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(&buf))
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("search returned status %d: %s", res.StatusCode, string(raw))
	}
	return raw, nil
}

// Adapts the client to the pipeline's gateway contract for one index.
type Gateway struct {
	Client *Client
	Index  string
}

func (g *Gateway) Submit(ctx context.Context, docs []models.CanonicalDocument) (models.BulkReport, error) {
	return g.Client.BulkUpsert(ctx, g.Index, docs)
}
