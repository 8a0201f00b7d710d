package models

// Coarse origin of a document. Values are stored as keywords, so they must
// stay stable across releases.
const (
	SourceBundestag = "bundestag"
	SourceEU        = "eu"
)

// Fine-grained document kinds carried in metadata.document_type.
const (
	DocTypePlenary         = "plenarprotokoll"
	DocTypeDrucksache      = "drucksache"
	DocTypeReport          = "A"
	DocTypeAdoptedText     = "TA"
	DocTypeWrittenQuestion = "E"
	DocTypeWrittenAnswer   = "E-ASW"
	DocTypeDebateRecord    = "CRE"
)

// Metadata carries the fine-grained document kind alongside the coarse source.
type Metadata struct {
	DocumentType string `json:"document_type"`
}

// The normalized, store-ready representation of one ingested record.
// JSON tags match the index mapping one to one.
type CanonicalDocument struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Source          string   `json:"source"`
	SourceName      string   `json:"source_name"`
	PublicationDate string   `json:"publication_date,omitempty"`
	URL             string   `json:"url"`
	Language        string   `json:"language"`
	Metadata        Metadata `json:"metadata"`
	IngestedAt      string   `json:"ingested_at"`
}

// Identifier used for in-run deduplication: the document id when present,
// otherwise the URL.
func (d *CanonicalDocument) Identifier() string {
	if d.ID != "" {
		return d.ID
	}
	return d.URL
}

// Tallies the outcome of one bulk submission.
type BulkReport struct {
	Indexed int
	Errors  []string
}
