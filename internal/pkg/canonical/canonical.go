// Maps source-specific intermediate records into the canonical document
// schema. Mapping is pure aside from the ingestion timestamp: the same input
// always yields the same output.
package canonical

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pemistahl/lingua-go"

	"parliasearch/internal/pkg/models"
)

// DIP document kinds as stored in metadata.document_type.
const (
	DIPKindPlenary    = models.DocTypePlenary
	DIPKindDrucksache = models.DocTypeDrucksache
)

// Raised when a mapped document is missing required fields. The document is
// dropped and counted; the run continues.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// Intermediate record from the Bundestag DIP adapter, already coalesced.
type DIPRecord struct {
	ID           string
	Title        string
	Date         string
	Text         string
	PDFURL       string
	DocumentType string
}

// Intermediate record from the European Parliament adapter.
type EURecord struct {
	Identifier string
	Title      string
	SourceName string // A, TA, E, E-ASW or CRE
	Issued     string
	URL        string
	Content    string
	Language   string
}

// Hook for clock injection in tests.
var now = time.Now

// Stable store-level id derived from the document URL.
func DocID(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// Maps a DIP record to a canonical document. The DIP feed is German-language
// throughout, so language detection is skipped for it.
func FromDIP(rec DIPRecord) (models.CanonicalDocument, error) {
	docURL := rec.PDFURL
	if docURL == "" && rec.ID != "" {
		docURL = "https://dip.bundestag.de/vorgang/" + url.PathEscape(rec.ID)
	}

	doc := models.CanonicalDocument{
		ID:              rec.ID,
		Title:           rec.Title,
		Content:         rec.Text,
		Source:          models.SourceBundestag,
		SourceName:      "German Bundestag",
		PublicationDate: NormalizeDate(rec.Date),
		URL:             docURL,
		Language:        "de",
		Metadata:        models.Metadata{DocumentType: rec.DocumentType},
		IngestedAt:      now().UTC().Format(time.RFC3339),
	}
	return doc, Validate(&doc)
}

// Maps a European Parliament record to a canonical document. The id is
// content-hashed from the URL because the upstream id is an ELI path, not a
// stable store key.
func FromEU(rec EURecord) (models.CanonicalDocument, error) {
	title := rec.Title
	if title == "" {
		// Explicit sentinel rather than masking a data gap upstream.
		title = "title not found"
	}

	lang := rec.Language
	if lang == "" {
		lang = detectLanguage(rec.Content, "en")
	}

	doc := models.CanonicalDocument{
		ID:              DocID(rec.URL),
		Title:           title,
		Content:         rec.Content,
		Source:          models.SourceEU,
		SourceName:      rec.SourceName,
		PublicationDate: NormalizeDate(rec.Issued),
		URL:             rec.URL,
		Language:        lang,
		Metadata:        models.Metadata{DocumentType: rec.SourceName},
		IngestedAt:      now().UTC().Format(time.RFC3339),
	}
	return doc, Validate(&doc)
}

// Rejects documents missing any of source, url or content.
func Validate(doc *models.CanonicalDocument) error {
	var missing []string
	if doc.Source == "" {
		missing = append(missing, "source")
	}
	if doc.URL == "" {
		missing = append(missing, "url")
	}
	if doc.Content == "" {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Normalizes a publication date to a UTC instant string so range filters are
// chronologically and lexicographically consistent. Date-only inputs expand
// to midnight UTC; zoned timestamps are converted to Z form. Unparseable
// input passes through unchanged rather than dropping the record.
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if len(raw) == 10 {
		if _, err := time.Parse("2006-01-02", raw); err == nil {
			return raw + "T00:00:00Z"
		}
		return raw
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	// Naive datetime without zone: treat as UTC.
	if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	return raw
}

// Language detection is restricted to the languages that actually occur in
// the ingested corpora. The detector is built once; model loading is too
// costly per document.
var languageDetector = lingua.NewLanguageDetectorBuilder().
	FromLanguages(lingua.German, lingua.English, lingua.French).
	WithPreloadedLanguageModels().
	Build()

const minDetectableLength = 20

func detectLanguage(text, fallback string) string {
	if len(text) < minDetectableLength {
		return fallback
	}
	lang, ok := languageDetector.DetectLanguageOf(text)
	if !ok {
		return fallback
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}
