package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parliasearch/internal/pkg/logger"
	"parliasearch/internal/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Log = zap.NewNop()
}

type fakeSearcher struct {
	got    models.SearchQuery
	result models.SearchResult
	err    error
}

func (f *fakeSearcher) Search(_ context.Context, q models.SearchQuery) (models.SearchResult, error) {
	f.got = q
	return f.result, f.err
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func postSearch(server *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSearchPassesQueryThrough(t *testing.T) {
	searcher := &fakeSearcher{result: models.SearchResult{Total: 3}}
	server := NewServer(searcher, &fakePinger{}, 10)

	rec := postSearch(server, `{
		"search_terms": "Wasserstoff",
		"source": ["bundestag"],
		"doc_type": ["plenarprotokoll"],
		"date_from": "2024-01-01",
		"page": 2,
		"size": 25
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if searcher.got.Text != "Wasserstoff" {
		t.Errorf("unexpected text %q", searcher.got.Text)
	}
	if len(searcher.got.Sources) != 1 || searcher.got.Sources[0] != "bundestag" {
		t.Errorf("unexpected sources %v", searcher.got.Sources)
	}
	if searcher.got.Page != 2 || searcher.got.Size != 25 {
		t.Errorf("unexpected paging %d/%d", searcher.got.Page, searcher.got.Size)
	}
	if !strings.Contains(rec.Body.String(), `"total":3`) {
		t.Errorf("expected the result envelope, got %s", rec.Body.String())
	}
}

// Out-of-range paging inputs are clamped, not rejected.
func TestSearchClampsPaging(t *testing.T) {
	searcher := &fakeSearcher{}
	server := NewServer(searcher, &fakePinger{}, 10)

	rec := postSearch(server, `{"search_terms": "x", "page": -5, "size": 1000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if searcher.got.Page != 1 {
		t.Errorf("expected page clamped to 1, got %d", searcher.got.Page)
	}
	if searcher.got.Size != models.MaxPageSize {
		t.Errorf("expected size clamped to %d, got %d", models.MaxPageSize, searcher.got.Size)
	}

	rec = postSearch(server, `{"search_terms": "x"}`)
	if searcher.got.Size != 10 {
		t.Errorf("expected the default size 10, got %d", searcher.got.Size)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

// A failing store maps to 503; an empty result set does not.
func TestSearchBackendUnavailable(t *testing.T) {
	server := NewServer(&fakeSearcher{err: errors.New("connection refused")}, &fakePinger{}, 10)

	rec := postSearch(server, `{"search_terms": "x"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestSearchEmptyResultIsOK(t *testing.T) {
	server := NewServer(&fakeSearcher{result: models.SearchResult{Hits: []models.Hit{}}}, &fakePinger{}, 10)

	rec := postSearch(server, `{"search_terms": "nichts"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for zero matches, got %d", rec.Code)
	}
}

func TestSearchRejectsMalformedBody(t *testing.T) {
	server := NewServer(&fakeSearcher{}, &fakePinger{}, 10)

	rec := postSearch(server, `{"page": "not a number"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	server := NewServer(&fakeSearcher{}, &fakePinger{}, 10)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 when the store is reachable, got %d", rec.Code)
	}

	down := NewServer(&fakeSearcher{}, &fakePinger{err: errors.New("unreachable")}, 10)
	rec = httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when the store is down, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := NewServer(&fakeSearcher{}, &fakePinger{}, 10)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from the metrics endpoint, got %d", rec.Code)
	}
}
