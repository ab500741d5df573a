// Package normalize converts raw fetched page content into a canonical
// comparable form and fingerprints it, so that inconsequential re-renders do
// not register as changes across runs.
package normalize

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespace = regexp.MustCompile(`\s+`)

// Normalizer produces canonical text from raw content. It is a pure function
// of its inputs; the only state is the set of compiled ignore patterns.
type Normalizer struct {
	ignore []*regexp.Regexp
}

// New returns a Normalizer which erases the given volatile patterns
// (timestamps, session tokens etc.) before comparing content.
func New(ignore ...*regexp.Regexp) *Normalizer {
	return &Normalizer{ignore: ignore}
}

// Normalize returns the canonical text of raw content, scoped to the given
// selector when one is set. A selector that matches nothing is not an error:
// normalization falls back to the whole document and selectorMissed is
// returned true so the caller can record a warning.
func (n *Normalizer) Normalize(raw []byte, selector string) (text string, selectorMissed bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		// not parseable at all - canonicalize the raw bytes as plain text
		return n.canonical(string(raw)), false
	}

	doc.Find("script, style, noscript").Remove()

	sel := doc.Selection
	if selector != "" {
		scoped := doc.Find(selector)
		if scoped.Length() > 0 {
			sel = scoped
		} else {
			selectorMissed = true
		}
	}

	return n.canonical(sel.Text()), selectorMissed
}

// canonical erases ignore patterns and whitespace-only differences, as
// whitespace is sometimes rendered randomly.
func (n *Normalizer) canonical(s string) string {
	for _, re := range n.ignore {
		s = re.ReplaceAllString(s, " ")
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Fingerprint returns the deterministic digest identifying canonical content
// across runs. Equal canonical text yields an equal digest.
func Fingerprint(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}

// Excerpt returns the leading part of the canonical text, at most max runes,
// for keeping a reportable sample in the snapshot.
func Excerpt(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
