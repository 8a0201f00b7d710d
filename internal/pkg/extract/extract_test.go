package extract

import (
	"errors"
	"testing"
)

func TestMarkupExtractorCollapsesWhitespace(t *testing.T) {
	e := NewMarkupExtractor()
	got, err := e.Extract([]byte("<html><body><p>Guten   Morgen.</p>\n<p>Die Sitzung\nist eröffnet.</p></body></html>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Guten Morgen. Die Sitzung ist eröffnet."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMarkupExtractorStripsTags(t *testing.T) {
	e := NewMarkupExtractor()
	got, err := e.Extract([]byte("<div><span class=\"speaker\">President.</span> &ndash; Good morning.</div>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "President. – Good morning." {
		t.Errorf("unexpected text %q", got)
	}
}

func TestUnconfigured(t *testing.T) {
	_, err := Unconfigured().Extract([]byte("anything"))
	if !errors.Is(err, ErrNoExtractor) {
		t.Errorf("expected ErrNoExtractor, got %v", err)
	}
}
