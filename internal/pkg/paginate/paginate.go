package paginate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"parliasearch/internal/pkg/logger"
	"parliasearch/internal/pkg/metrics"
)

// Returned by a pager or fetcher once the retry budget for a request is
// exhausted. It aborts the current adapter's iteration; items already
// consumed stay valid.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Paces upstream requests: a rate limiter for the base interval plus a
// randomized jitter window. Upstream throttling can silently degrade
// responses, so the delay is applied before every page and detail request.
type Throttle struct {
	limiter *rate.Limiter
	jitter  time.Duration
}

// Base and jitter are in seconds. A base of zero disables pacing.
func NewThrottle(base, jitter float64) *Throttle {
	t := &Throttle{}
	if base > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(1/base), 1)
	}
	if jitter > 0 {
		t.jitter = time.Duration(jitter * float64(time.Second))
	}
	return t
}

// Blocks until the next request may be issued.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if t.jitter > 0 {
		d := time.Duration(rand.Int63n(int64(t.jitter)))
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Retry state machine states for a single logical request.
type fetchState int

const (
	stateFetching fetchState = iota
	stateRetrying
	stateExhausted
)

const (
	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 8 * time.Second
)

// Issues throttled GET requests with bounded exponential backoff.
// Shared by the pagers and by the adapters' per-document detail fetches.
type Fetcher struct {
	Client     *http.Client
	Throttle   *Throttle
	Header     http.Header
	MaxRetries int
}

// Performs one GET, retrying timeouts, 429 and 5xx responses. Returns the
// response body, or a *FetchError once the attempt ceiling is hit.
func (f *Fetcher) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	full := rawURL
	if len(params) > 0 {
		full = rawURL + "?" + params.Encode()
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	state := stateFetching
	attempts := 0
	var lastErr error

	for state != stateExhausted {
		if err := f.Throttle.Wait(ctx); err != nil {
			return nil, err
		}

		attempts++
		body, retryable, err := f.once(ctx, client, full)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retryable || attempts > f.MaxRetries {
			state = stateExhausted
			continue
		}

		state = stateRetrying
		metrics.FetchRetries.Inc()
		logger.Log.Warn("Retrying upstream request",
			zap.String("url", rawURL),
			zap.Int("attempt", attempts),
			zap.Error(err))

		select {
		case <-time.After(backoffDelay(attempts)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	metrics.FetchFailures.Inc()
	return nil, &FetchError{URL: rawURL, Attempts: attempts, Err: lastErr}
}

func (f *Fetcher) once(ctx context.Context, client *http.Client, full string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, false, err
	}
	for k, vs := range f.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, false, err
		}
		// Network errors and timeouts are transient.
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return body, false, nil
}

// Exponential backoff with random jitter, capped.
func backoffDelay(attempt int) time.Duration {
	d := baseBackoff << (attempt - 1)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d + time.Duration(rand.Int63n(int64(d/2)+1))
}

// Shape of one upstream page. Items may arrive under "documents" or "data";
// the cursor token is absent on the final page.
type page struct {
	Documents []json.RawMessage `json:"documents"`
	Data      []json.RawMessage `json:"data"`
	Cursor    string            `json:"cursor"`
}

// Follows a server-issued cursor token across pages and yields raw items one
// at a time. Usage mirrors bufio.Scanner: Next / Item / Err.
type CursorPager struct {
	fetcher *Fetcher
	source  string
	url     string
	params  url.Values

	items      []json.RawMessage
	idx        int
	prevCursor string
	done       bool
	err        error
}

// The params are copied; the cursor parameter is managed internally and must
// not be preset by the caller.
func NewCursorPager(fetcher *Fetcher, source, endpoint string, params url.Values) *CursorPager {
	copied := url.Values{}
	for k, vs := range params {
		copied[k] = append([]string(nil), vs...)
	}
	return &CursorPager{
		fetcher: fetcher,
		source:  source,
		url:     endpoint,
		params:  copied,
		idx:     -1,
	}
}

// Advances to the next item, fetching further pages as needed.
func (p *CursorPager) Next(ctx context.Context) bool {
	if p.err != nil {
		return false
	}
	p.idx++
	for p.idx >= len(p.items) {
		if p.done {
			return false
		}
		if !p.fetchPage(ctx) {
			return false
		}
	}
	return true
}

// The raw item the last Next call advanced to.
func (p *CursorPager) Item() json.RawMessage { return p.items[p.idx] }

// Non-nil after Next returns false because a fetch failed.
func (p *CursorPager) Err() error { return p.err }

func (p *CursorPager) fetchPage(ctx context.Context) bool {
	body, err := p.fetcher.Get(ctx, p.url, p.params)
	if err != nil {
		p.err = err
		return false
	}
	metrics.PagesFetched.WithLabelValues(p.source).Inc()

	var pg page
	if err := json.Unmarshal(body, &pg); err != nil {
		// Some endpoints return a bare array.
		var arr []json.RawMessage
		if arrErr := json.Unmarshal(body, &arr); arrErr != nil {
			p.err = fmt.Errorf("decode page: %w", err)
			return false
		}
		pg.Documents = arr
	}

	items := pg.Documents
	if len(items) == 0 {
		items = pg.Data
	}
	p.items = items
	p.idx = 0

	// Stop when no cursor is returned, or when the server echoes the
	// previous cursor instead of signaling completion. The equality check
	// is the loop-termination invariant, not an optimization.
	if pg.Cursor == "" || pg.Cursor == p.prevCursor {
		p.done = true
	} else {
		p.prevCursor = pg.Cursor
		p.params.Set("cursor", pg.Cursor)
	}

	return len(p.items) > 0 || !p.done
}

// Walks an offset/limit paged listing and yields raw items. Terminates on the
// first empty page; MaxPages, when positive, caps the number of pages.
type OffsetPager struct {
	fetcher  *Fetcher
	source   string
	url      string
	params   url.Values
	limit    int
	MaxPages int

	items  []json.RawMessage
	idx    int
	offset int
	pages  int
	done   bool
	err    error
}

func NewOffsetPager(fetcher *Fetcher, source, endpoint string, params url.Values, limit int) *OffsetPager {
	copied := url.Values{}
	for k, vs := range params {
		copied[k] = append([]string(nil), vs...)
	}
	return &OffsetPager{
		fetcher: fetcher,
		source:  source,
		url:     endpoint,
		params:  copied,
		limit:   limit,
		idx:     -1,
	}
}

func (p *OffsetPager) Next(ctx context.Context) bool {
	if p.err != nil {
		return false
	}
	p.idx++
	for p.idx >= len(p.items) {
		if p.done {
			return false
		}
		if !p.fetchPage(ctx) {
			return false
		}
	}
	return true
}

func (p *OffsetPager) Item() json.RawMessage { return p.items[p.idx] }

func (p *OffsetPager) Err() error { return p.err }

func (p *OffsetPager) fetchPage(ctx context.Context) bool {
	p.params.Set("offset", strconv.Itoa(p.offset))
	p.params.Set("limit", strconv.Itoa(p.limit))

	body, err := p.fetcher.Get(ctx, p.url, p.params)
	if err != nil {
		p.err = err
		return false
	}
	metrics.PagesFetched.WithLabelValues(p.source).Inc()

	var pg page
	if err := json.Unmarshal(body, &pg); err != nil {
		p.err = fmt.Errorf("decode page: %w", err)
		return false
	}

	items := pg.Data
	if len(items) == 0 {
		items = pg.Documents
	}
	if len(items) == 0 {
		p.done = true
		return false
	}

	p.items = items
	p.idx = 0
	p.offset += p.limit
	p.pages++
	if p.MaxPages > 0 && p.pages >= p.MaxPages {
		p.done = true
	}
	return true
}
