package paginate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"parliasearch/internal/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

func collectCursor(t *testing.T, p *CursorPager) []string {
	t.Helper()
	var items []string
	for p.Next(context.Background()) {
		var s string
		if err := json.Unmarshal(p.Item(), &s); err != nil {
			t.Fatalf("item did not decode: %v", err)
		}
		items = append(items, s)
	}
	return items
}

// The pager must follow the cursor token across pages and stop on the page
// that carries no cursor.
func TestCursorPagerFollowsCursor(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, `{"documents": ["a", "b"], "cursor": "c1"}`)
		case "c1":
			fmt.Fprint(w, `{"documents": ["c"]}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer server.Close()

	fetcher := &Fetcher{MaxRetries: 0}
	pager := NewCursorPager(fetcher, "test", server.URL, nil)

	items := collectCursor(t, pager)
	if pager.Err() != nil {
		t.Fatalf("unexpected pager error: %v", pager.Err())
	}
	if len(items) != 3 {
		t.Errorf("expected 3 items across 2 pages, got %d: %v", len(items), items)
	}
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("expected 2 page fetches, got %d", n)
	}
}

// A server that echoes the previous cursor instead of omitting it must not
// send the pager into an infinite loop.
func TestCursorPagerStopsOnRepeatedCursor(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		// Every page returns the same cursor.
		fmt.Fprint(w, `{"documents": ["x"], "cursor": "stuck"}`)
	}))
	defer server.Close()

	fetcher := &Fetcher{MaxRetries: 0}
	pager := NewCursorPager(fetcher, "test", server.URL, nil)

	items := collectCursor(t, pager)
	if pager.Err() != nil {
		t.Fatalf("unexpected pager error: %v", pager.Err())
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items (first page plus the echoed one), got %d", len(items))
	}
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("expected exactly 2 page fetches, got %d", n)
	}
}

// Endpoints that return a bare JSON array instead of a page envelope are
// treated as a single final page.
func TestCursorPagerBareArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `["one", "two"]`)
	}))
	defer server.Close()

	pager := NewCursorPager(&Fetcher{}, "test", server.URL, nil)
	items := collectCursor(t, pager)
	if len(items) != 2 {
		t.Errorf("expected 2 items from the bare array, got %d", len(items))
	}
}

// Transient server errors are retried with backoff until a success.
func TestFetcherRetriesServerErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer server.Close()

	fetcher := &Fetcher{MaxRetries: 3}
	body, err := fetcher.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if string(body) != `{"ok": true}` {
		t.Errorf("unexpected body %q", body)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

// A client error is terminal on the first attempt and surfaces as a
// FetchError.
func TestFetcherDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := &Fetcher{MaxRetries: 3}
	_, err := fetcher.Get(context.Background(), server.URL, nil)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected a *FetchError, got %T: %v", err, err)
	}
	if fetchErr.Attempts != 1 {
		t.Errorf("expected a single attempt for status 404, got %d", fetchErr.Attempts)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
}

// Exhausted retries surface as a FetchError carrying the attempt count.
func TestFetcherExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	fetcher := &Fetcher{MaxRetries: 1}
	_, err := fetcher.Get(context.Background(), server.URL, nil)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected a *FetchError, got %T: %v", err, err)
	}
	if fetchErr.Attempts != 2 {
		t.Errorf("expected 2 attempts with MaxRetries=1, got %d", fetchErr.Attempts)
	}
}

// The offset pager advances the offset parameter page by page and terminates
// on the first empty page.
func TestOffsetPagerAdvancesAndTerminates(t *testing.T) {
	var offsets []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("expected limit=2, got %q", r.URL.Query().Get("limit"))
		}
		switch offset {
		case "0":
			fmt.Fprint(w, `{"data": ["a", "b"]}`)
		case "2":
			fmt.Fprint(w, `{"data": ["c"]}`)
		default:
			fmt.Fprint(w, `{"data": []}`)
		}
	}))
	defer server.Close()

	pager := NewOffsetPager(&Fetcher{}, "test", server.URL, nil, 2)

	var items []string
	for pager.Next(context.Background()) {
		var s string
		if err := json.Unmarshal(pager.Item(), &s); err != nil {
			t.Fatalf("item did not decode: %v", err)
		}
		items = append(items, s)
	}
	if pager.Err() != nil {
		t.Fatalf("unexpected pager error: %v", pager.Err())
	}
	if len(items) != 3 {
		t.Errorf("expected 3 items, got %d", len(items))
	}
	want := []string{"0", "2", "4"}
	for i := range want {
		if i >= len(offsets) || offsets[i] != want[i] {
			t.Fatalf("unexpected offset sequence %v, want %v", offsets, want)
		}
	}
}

// MaxPages caps the walk even when the listing keeps yielding items.
func TestOffsetPagerMaxPages(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		fmt.Fprint(w, `{"data": ["x", "y"]}`)
	}))
	defer server.Close()

	pager := NewOffsetPager(&Fetcher{}, "test", server.URL, nil, 2)
	pager.MaxPages = 2

	count := 0
	for pager.Next(context.Background()) {
		count++
	}
	if count != 4 {
		t.Errorf("expected 4 items over 2 capped pages, got %d", count)
	}
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("expected 2 page fetches, got %d", n)
	}
}
