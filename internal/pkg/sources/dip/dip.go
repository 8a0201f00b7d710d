// Adapter for the Bundestag DIP API: cursor-paged full-text feeds of plenary
// transcripts and printed matters (Drucksachen).
package dip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"parliasearch/internal/pkg/canonical"
	"parliasearch/internal/pkg/logger"
	"parliasearch/internal/pkg/paginate"
	"parliasearch/internal/pkg/pipeline"
)

const sourceLabel = "dip"

// Key-authenticated client for the DIP REST API.
type Client struct {
	baseURL string
	fetcher *paginate.Fetcher
}

// The API rejects unauthenticated requests, so a missing key is a
// construction error rather than a per-request one.
func NewClient(baseURL, apiKey string, throttle *paginate.Throttle, maxRetries int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("DIP API key missing, set DIP_API_KEY")
	}
	header := http.Header{}
	header.Set("Authorization", "ApiKey "+apiKey)
	return &Client{
		baseURL: baseURL,
		fetcher: &paginate.Fetcher{
			Client:     &http.Client{Timeout: 30 * time.Second},
			Throttle:   throttle,
			Header:     header,
			MaxRetries: maxRetries,
		},
	}, nil
}

// One item of a DIP feed page before coalescing. Upstream spells several
// fields inconsistently across endpoints; every synonym is captured here and
// resolved in normalize.
type rawItem struct {
	ID           json.RawMessage `json:"id"`
	DocumentID   json.RawMessage `json:"documentId"`
	VorgangID    json.RawMessage `json:"vorgangId"`
	DrucksacheID json.RawMessage `json:"drucksacheId"`

	Titel string `json:"titel"`
	Title string `json:"title"`

	Datum string `json:"datum"`
	Date  string `json:"date"`

	Text   string `json:"text"`
	Inhalt string `json:"inhalt"`

	Fundstelle struct {
		PDFURL string `json:"pdf_url"`
	} `json:"fundstelle"`
}

// Accepts string or numeric JSON ids and returns their textual form.
func idString(raws ...json.RawMessage) string {
	for _, raw := range raws {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Maps a raw page item to the intermediate record. Items lacking any of
// id, title, date or text are dropped silently; partial upstream records
// are common and not an error.
func (it *rawItem) normalize(plenary bool) (canonical.DIPRecord, bool) {
	rec := canonical.DIPRecord{
		ID:     idString(it.ID, it.DocumentID, it.VorgangID, it.DrucksacheID),
		Title:  coalesce(it.Titel, it.Title),
		Date:   coalesce(it.Datum, it.Date),
		Text:   coalesce(it.Text, it.Inhalt),
		PDFURL: it.Fundstelle.PDFURL,
	}
	if plenary {
		rec.DocumentType = canonical.DIPKindPlenary
	} else {
		rec.DocumentType = canonical.DIPKindDrucksache
	}
	if rec.ID == "" || rec.Title == "" || rec.Date == "" || rec.Text == "" {
		return canonical.DIPRecord{}, false
	}
	return rec, true
}

// Date-range parameters as the DIP endpoints expect them. The API has used
// several spellings over time; sending all of them is harmless.
func dateParams(dateFrom, dateTo string, drucksache bool) url.Values {
	params := url.Values{}
	params.Set("format", "json")
	if dateFrom != "" {
		params.Set("f.datum.start", dateFrom)
		params.Set("datum.start", dateFrom)
		if drucksache {
			params.Set("fundstelle.datum.start", dateFrom)
		}
	}
	if dateTo != "" {
		params.Set("f.datum.end", dateTo)
		params.Set("datum.end", dateTo)
		if drucksache {
			params.Set("fundstelle.datum.end", dateTo)
		}
	}
	return params
}

// A pipeline source covering both DIP feeds for one date range. MaxDocs,
// when positive, caps the number of emitted documents (daily runs).
type Source struct {
	Client   *Client
	DateFrom string
	DateTo   string
	MaxDocs  int
}

func (s *Source) Name() string { return "bundestag-dip" }

// Pulls both feeds sequentially and emits one canonicalized document per
// complete upstream record.
func (s *Source) Stream(ctx context.Context, emit pipeline.Emit) error {
	produced := 0

	streams := []struct {
		path    string
		plenary bool
	}{
		{"/plenarprotokoll-text", true},
		{"/drucksache-text", false},
	}

	for _, stream := range streams {
		params := dateParams(s.DateFrom, s.DateTo, !stream.plenary)
		pager := paginate.NewCursorPager(s.Client.fetcher, sourceLabel, s.Client.baseURL+stream.path, params)

		for pager.Next(ctx) {
			var it rawItem
			if err := json.Unmarshal(pager.Item(), &it); err != nil {
				logger.Log.Warn("Skipping undecodable DIP item", zap.Error(err))
				continue
			}
			rec, ok := it.normalize(stream.plenary)
			if !ok {
				continue
			}
			doc, err := canonical.FromDIP(rec)
			if err := emit(doc, err); err != nil {
				return err
			}
			produced++
			if s.MaxDocs > 0 && produced >= s.MaxDocs {
				return nil
			}
		}
		if err := pager.Err(); err != nil {
			return fmt.Errorf("%s: %w", stream.path, err)
		}
	}
	return nil
}
