// Text extraction from binary artifacts. PDF extraction is an external
// collaborator and is only represented here as an interface; the debate
// transcript markup extractor ships in-tree.
package extract

import (
	"bytes"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Produces plain text from one binary artifact.
type Extractor interface {
	Extract(artifact []byte) (string, error)
}

// Adapts a plain function to the Extractor interface.
type Func func(artifact []byte) (string, error)

func (f Func) Extract(artifact []byte) (string, error) { return f(artifact) }

// Returned when no extractor has been configured for an artifact kind.
// Affected documents are skipped, not fatal.
var ErrNoExtractor = errors.New("no extractor configured for this artifact kind")

// Placeholder for artifact kinds whose extraction runs out of process.
func Unconfigured() Extractor {
	return Func(func([]byte) (string, error) { return "", ErrNoExtractor })
}

// Extracts the spoken text from a debate transcript in its structured markup
// form. The markup nests speech paragraphs several levels deep; walking all
// text nodes and collapsing whitespace matches what the downstream index
// needs.
type MarkupExtractor struct{}

func NewMarkupExtractor() *MarkupExtractor { return &MarkupExtractor{} }

func (m *MarkupExtractor) Extract(artifact []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(artifact))
	if err != nil {
		return "", err
	}
	text := doc.Text()
	return strings.Join(strings.Fields(text), " "), nil
}
