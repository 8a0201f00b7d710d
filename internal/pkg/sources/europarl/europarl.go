// Adapter for the European Parliament open-data API: offset-paged work
// discovery, per-work detail resolution and artifact retrieval from the
// doceo document service.
package europarl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"parliasearch/internal/pkg/canonical"
	"parliasearch/internal/pkg/extract"
	"parliasearch/internal/pkg/logger"
	"parliasearch/internal/pkg/paginate"
	"parliasearch/internal/pkg/pipeline"
)

const (
	sourceLabel = "europarl"
	docBase     = "https://www.europarl.europa.eu/doceo/document"
	userAgent   = "parliasearch/1.0"
)

// Work kinds accepted by the adapter, in upstream query-parameter form.
var workTypeQuery = map[string]string{
	"A":     "REPORT_PLENARY",
	"TA":    "TEXT_ADOPTED",
	"E":     "QUESTION_WRITTEN",
	"E-ASW": "QUESTION_WRITTEN_ANSWER",
	"CRE":   "CRE_PLENARY",
}

// Unauthenticated client for the open-data API.
type Client struct {
	apiBase   string
	docBase   string
	pageLimit int
	fetcher   *paginate.Fetcher
}

func NewClient(apiBase string, pageLimit int, timeout time.Duration, throttle *paginate.Throttle, maxRetries int) *Client {
	if pageLimit <= 0 {
		pageLimit = 5000
	}
	header := http.Header{}
	header.Set("User-Agent", userAgent)
	header.Set("Accept", "application/ld+json, application/json;q=0.9, */*;q=0.1")
	return &Client{
		apiBase:   apiBase,
		docBase:   docBase,
		pageLimit: pageLimit,
		fetcher: &paginate.Fetcher{
			Client:     &http.Client{Timeout: timeout},
			Throttle:   throttle,
			Header:     header,
			MaxRetries: maxRetries,
		},
	}
}

// A work reference from the listing endpoint.
type workStub struct {
	ID         string `json:"id"`
	WorkType   string `json:"work_type"`
	Identifier string `json:"identifier"`
	Label      string `json:"label"`
}

// Resolved metadata for one work.
type workDetails struct {
	Identifier string
	WorkType   string
	TitleEN    string
	Issued     string
	IsAnswer   bool
}

// Linked-data shape of the detail endpoint, reduced to the fields we read.
type detailPayload struct {
	Data []struct {
		Identifier        string            `json:"identifier"`
		WorkType          string            `json:"work_type"`
		ParliamentaryTerm string            `json:"parliamentary_term"`
		TitleDcterms      map[string]string `json:"title_dcterms"`
		IsRealizedBy      []struct {
			ID           string            `json:"id"`
			Title        map[string]string `json:"title"`
			IsEmbodiedBy []struct {
				Issued string `json:"issued"`
			} `json:"is_embodied_by"`
		} `json:"is_realized_by"`
	} `json:"data"`
}

// Resolves title, issued date and answer flag for one work. The endpoint
// expects the bare identifier, not the full ELI path.
func (c *Client) details(ctx context.Context, workID string) (workDetails, error) {
	ident := workID
	if i := strings.LastIndex(workID, "/"); i >= 0 {
		ident = workID[i+1:]
	}

	params := url.Values{}
	params.Set("format", "application/ld+json")
	params.Set("language", "en")

	body, err := c.fetcher.Get(ctx, c.apiBase+"/documents/"+ident, params)
	if err != nil {
		return workDetails{}, err
	}

	var payload detailPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return workDetails{}, fmt.Errorf("decode work details: %w", err)
	}
	if len(payload.Data) == 0 {
		return workDetails{Identifier: ident}, nil
	}

	data := payload.Data[0]
	out := workDetails{
		Identifier: data.Identifier,
		WorkType:   data.WorkType,
		IsAnswer:   strings.Contains(data.WorkType, "QUESTION_WRITTEN_ANSWER"),
	}
	if out.Identifier == "" {
		out.Identifier = ident
	}

	if strings.Contains(data.WorkType, "CRE_PLENARY") || strings.HasPrefix(out.Identifier, "CRE-") {
		out.TitleEN = data.TitleDcterms["en"]
		return out, nil
	}

	// Prefer the English expression; fall back to the first one.
	exprs := data.IsRealizedBy
	chosen := -1
	for i, e := range exprs {
		if strings.HasSuffix(e.ID, "/en") {
			chosen = i
			break
		}
		if _, ok := e.Title["en"]; ok {
			chosen = i
			break
		}
	}
	if chosen < 0 && len(exprs) > 0 {
		chosen = 0
	}
	if chosen >= 0 {
		out.TitleEN = exprs[chosen].Title["en"]
		if len(exprs[chosen].IsEmbodiedBy) > 0 {
			out.Issued = exprs[chosen].IsEmbodiedBy[0].Issued
		}
	}
	return out, nil
}

// Canonical artifact link for a work: the display PDF plus the source label.
func (c *Client) downloadURL(meta IdentifierMeta, isAnswer bool) (string, string) {
	kind := strings.ToUpper(meta.Kind)
	if kind == "CRE" {
		return fmt.Sprintf("%s/CRE-%s-%s_EN.pdf", c.docBase, meta.Term, meta.Date), "CRE"
	}
	suffix, src := "", kind
	if kind == "E" && isAnswer {
		suffix, src = "-ASW", "E-ASW"
	}
	u := fmt.Sprintf("%s/%s-%s-%s-%s%s_EN.pdf", c.docBase, kind, meta.Term, meta.Year, meta.Number, suffix)
	return u, src
}

// A pipeline source over one or more work kinds. Detail and artifact fetches
// for independent works run concurrently up to Concurrency.
type Source struct {
	Client      *Client
	Kinds       []string // subset of A, TA, E, E-ASW, CRE; empty means all
	Term        int      // legislative term filter, 0 disables
	Limit       int      // per-kind cap on emitted documents, 0 disables
	Concurrency int

	// Markup handles debate transcripts; PDF handles everything else and
	// may be extract.Unconfigured when extraction runs out of process.
	Markup extract.Extractor
	PDF    extract.Extractor
}

func (s *Source) Name() string { return "europarl" }

func (s *Source) kinds() []string {
	if len(s.Kinds) > 0 {
		return s.Kinds
	}
	return []string{"CRE", "A", "TA", "E", "E-ASW"}
}

// Walks each kind's listing, filters by term client-side, and fans the
// per-work fetch chain out to a bounded worker set. emit is safe for
// concurrent use by the pipeline's contract.
func (s *Source) Stream(ctx context.Context, emit pipeline.Emit) error {
	for _, kind := range s.kinds() {
		if err := s.streamKind(ctx, kind, emit); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) streamKind(ctx context.Context, kind string, emit pipeline.Emit) error {
	queryKind, ok := workTypeQuery[kind]
	if !ok {
		return fmt.Errorf("unknown work kind %q", kind)
	}

	params := url.Values{}
	params.Set("work-type", queryKind)
	params.Set("format", "application/ld+json")
	pager := paginate.NewOffsetPager(s.Client.fetcher, sourceLabel, s.Client.apiBase+"/documents", params, s.Client.pageLimit)

	workers := s.Concurrency
	if workers <= 0 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, workers)
		mu       sync.Mutex
		firstErr error
		emitted  int
	)

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for pager.Next(runCtx) {
		var stub workStub
		if err := json.Unmarshal(pager.Item(), &stub); err != nil {
			logger.Log.Warn("Skipping undecodable work stub", zap.Error(err))
			continue
		}
		if s.Term > 0 && ParseIdentifier(stub.Identifier).Term != strconv.Itoa(s.Term) {
			continue
		}

		mu.Lock()
		stop := firstErr != nil || (s.Limit > 0 && emitted >= s.Limit)
		mu.Unlock()
		if stop {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(stub workStub) {
			defer wg.Done()
			defer func() { <-sem }()

			rec, ok, err := s.fetchOne(runCtx, stub)
			if err != nil {
				setErr(err)
				return
			}
			if !ok {
				return
			}

			doc, mapErr := canonical.FromEU(rec)
			mu.Lock()
			if firstErr == nil && (s.Limit <= 0 || emitted < s.Limit) {
				if err := emit(doc, mapErr); err != nil {
					mu.Unlock()
					setErr(err)
					return
				}
				emitted++
			}
			mu.Unlock()
		}(stub)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return pager.Err()
}

// Runs the detail fetch, artifact retrieval and text extraction for one
// work. ok is false when the work should be skipped without error.
func (s *Source) fetchOne(ctx context.Context, stub workStub) (canonical.EURecord, bool, error) {
	details, err := s.Client.details(ctx, stub.ID)
	if err != nil {
		if ctx.Err() != nil {
			return canonical.EURecord{}, false, ctx.Err()
		}
		// A single unresolvable work should not sink the whole listing.
		return s.skipArtifact(stub.Identifier, stub.ID, err)
	}

	meta := ParseIdentifier(details.Identifier)
	pdfURL, srcName := s.Client.downloadURL(meta, details.IsAnswer)

	rec := canonical.EURecord{
		Identifier: details.Identifier,
		Title:      details.TitleEN,
		SourceName: srcName,
		Issued:     details.Issued,
		URL:        pdfURL,
	}

	if srcName == "CRE" {
		// The display link stays on the PDF; the markup variant feeds
		// text extraction.
		fetchURL := strings.TrimSuffix(pdfURL, ".pdf") + ".xml"
		artifact, err := s.Client.fetcher.Get(ctx, fetchURL, nil)
		if err != nil {
			return s.skipArtifact(details.Identifier, fetchURL, err)
		}
		text, err := s.Markup.Extract(artifact)
		if err != nil {
			return s.skipArtifact(details.Identifier, fetchURL, err)
		}
		rec.Content = text
		rec.Language = "mixed"
		if meta.Date != "" {
			rec.Issued = meta.Date
		}
		return rec, true, nil
	}

	artifact, err := s.Client.fetcher.Get(ctx, pdfURL, nil)
	if err != nil {
		return s.skipArtifact(details.Identifier, pdfURL, err)
	}
	text, err := s.PDF.Extract(artifact)
	if err != nil {
		return s.skipArtifact(details.Identifier, pdfURL, err)
	}
	rec.Content = text
	rec.Language = "en"
	return rec, true, nil
}

// Artifact problems skip the single work; the kind's listing continues.
func (s *Source) skipArtifact(identifier, artifactURL string, err error) (canonical.EURecord, bool, error) {
	logger.Log.Warn("Skipping work, artifact unavailable",
		zap.String("identifier", identifier),
		zap.String("url", artifactURL),
		zap.Error(err))
	return canonical.EURecord{}, false, nil
}
