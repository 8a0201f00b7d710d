package dip

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"parliasearch/internal/pkg/logger"
	"parliasearch/internal/pkg/models"
	"parliasearch/internal/pkg/paginate"
)

func init() {
	logger.Log = zap.NewNop()
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient("https://example.org", "", nil, 0); err == nil {
		t.Error("expected an error for a missing API key")
	}
}

// Streams both feeds, follows the cursor, authenticates every request and
// silently drops partial upstream records.
func TestSourceStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "ApiKey test-key" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		switch r.URL.Path {
		case "/plenarprotokoll-text":
			if r.URL.Query().Get("cursor") == "" {
				// Second item has no text and must be dropped.
				fmt.Fprint(w, `{"documents": [
					{"id": "101", "titel": "Protokoll 1", "datum": "2024-05-15", "text": "Sitzung eins.", "fundstelle": {"pdf_url": "https://dserver.bundestag.de/btp/101.pdf"}},
					{"id": "102", "titel": "Protokoll 2", "datum": "2024-05-16"}
				], "cursor": "next"}`)
				return
			}
			fmt.Fprint(w, `{"documents": [
				{"id": "103", "titel": "Protokoll 3", "datum": "2024-05-17", "text": "Sitzung drei."}
			]}`)
		case "/drucksache-text":
			// Numeric id and the alternate field spellings.
			fmt.Fprint(w, `{"documents": [
				{"documentId": 20555, "title": "Antrag", "date": "2024-05-18", "inhalt": "Der Bundestag wolle beschließen."}
			]}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key", nil, 0)
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	var docs []models.CanonicalDocument
	src := &Source{Client: client, DateFrom: "2024-05-01", DateTo: "2024-05-31"}
	err = src.Stream(context.Background(), func(doc models.CanonicalDocument, mapErr error) error {
		if mapErr != nil {
			t.Errorf("unexpected mapping error: %v", mapErr)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	if len(docs) != 3 {
		t.Fatalf("expected 3 documents (one dropped as partial), got %d", len(docs))
	}
	if docs[0].Metadata.DocumentType != models.DocTypePlenary {
		t.Errorf("expected plenary document type, got %q", docs[0].Metadata.DocumentType)
	}
	if docs[0].URL != "https://dserver.bundestag.de/btp/101.pdf" {
		t.Errorf("expected the PDF link as URL, got %q", docs[0].URL)
	}
	if docs[2].ID != "20555" {
		t.Errorf("expected the numeric id as text, got %q", docs[2].ID)
	}
	if docs[2].Metadata.DocumentType != models.DocTypeDrucksache {
		t.Errorf("expected drucksache document type, got %q", docs[2].Metadata.DocumentType)
	}
	if docs[2].PublicationDate != "2024-05-18T00:00:00Z" {
		t.Errorf("expected normalized date, got %q", docs[2].PublicationDate)
	}
}

// MaxDocs stops the stream mid-feed.
func TestSourceStreamMaxDocs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"documents": [
			{"id": "1", "titel": "Eins", "datum": "2024-01-01", "text": "a"},
			{"id": "2", "titel": "Zwei", "datum": "2024-01-02", "text": "b"},
			{"id": "3", "titel": "Drei", "datum": "2024-01-03", "text": "c"}
		]}`)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key", nil, 0)
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	count := 0
	src := &Source{Client: client, MaxDocs: 2}
	err = src.Stream(context.Background(), func(models.CanonicalDocument, error) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected the stream to stop at 2 documents, got %d", count)
	}
}

// A feed that exhausts its retries surfaces a FetchError naming the endpoint.
func TestSourceStreamFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "bad-key", nil, 0)
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	src := &Source{Client: client}
	err = src.Stream(context.Background(), func(models.CanonicalDocument, error) error {
		t.Error("no document should be emitted")
		return nil
	})

	var fetchErr *paginate.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected a wrapped *paginate.FetchError, got %T: %v", err, err)
	}
}
