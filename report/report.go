// Package report renders diffs into deterministic, human-readable
// notification payloads.
package report

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"

	"gitlab.com/henri.philipps/sitewatch"
)

// Display caps per section keep notifications readable; anything beyond is
// summarized as "(+N more)".
const (
	maxAddedShown   = 20
	maxChangedShown = 20
	maxRemovedShown = 10
	maxExcerptDiff  = 200
)

// Batch selects how sections are grouped into notification messages.
type Batch string

const (
	// BatchCombined sends one message summarizing the whole run.
	BatchCombined Batch = "combined"
	// BatchPerSite sends one message per site with changes.
	BatchPerSite Batch = "per_site"
)

// Section is the rendered summary of one site's diff.
type Section struct {
	Site string
	Diff sitewatch.Diff
	Text string
}

// Build renders the per-site section for the given diff. Output is
// deterministic: the diff engine delivers sorted URL lists and the caps are
// fixed.
func Build(siteName string, d sitewatch.Diff) Section {
	s := Section{Site: siteName, Diff: d}

	switch d.Status {
	case sitewatch.StatusFetchFailed:
		s.Text = fmt.Sprintf("*[%s]* ⚠️ fetch failed - site skipped, previous state preserved", siteName)
		return s
	case sitewatch.StatusSkipped:
		s.Text = fmt.Sprintf("*[%s]* ⚠️ URL budget exhausted - site skipped, previous state preserved", siteName)
		return s
	}

	// a suppressed-only diff stays silent, so don't render anything for it
	if d.Empty() {
		return s
	}

	var blocks []string
	if len(d.Added) > 0 {
		blocks = append(blocks, "🔔 New URLs:\n"+truncated(d.Added, maxAddedShown))
	}
	if len(d.Changed) > 0 {
		blocks = append(blocks, "♻️ Changed content:\n"+changedBlock(d))
	}
	if len(d.Removed) > 0 {
		blocks = append(blocks, "⚠️ Removed URLs:\n"+truncated(d.Removed, maxRemovedShown))
	}
	if d.Suppressed > 0 {
		blocks = append(blocks, fmt.Sprintf("(%d change(s) below threshold suppressed)", d.Suppressed))
	}

	if len(blocks) == 0 {
		return s
	}

	s.Text = fmt.Sprintf("*[%s]* updates:\n\n%s", siteName, strings.Join(blocks, "\n\n"))
	return s
}

// changedBlock lists changed URLs, each followed by a compact content diff of
// the stored excerpts when both sides are available.
func changedBlock(d sitewatch.Diff) string {
	shown := d.Changed
	if len(shown) > maxChangedShown {
		shown = shown[:maxChangedShown]
	}

	var b strings.Builder
	for i, url := range shown {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(url)
		if pair, ok := d.Excerpts[url]; ok {
			if td := textDiff(pair.Old, pair.New); td != "" {
				b.WriteString("\n    ")
				b.WriteString(clip(td, maxExcerptDiff))
			}
		}
	}
	if extra := len(d.Changed) - maxChangedShown; extra > 0 {
		b.WriteString(fmt.Sprintf("\n…(+%d more)", extra))
	}

	return b.String()
}

// Report aggregates the run's per-site sections in configured site order.
type Report struct {
	Sections []Section
}

// BuildOverall assembles the sections of one run. Order is the configured
// site order, so output is reproducible.
func BuildOverall(sections []Section) Report {
	return Report{Sections: sections}
}

// Empty reports whether the run produced nothing worth notifying about.
// Degraded sites count as reportable.
func (r Report) Empty() bool {
	for _, s := range r.Sections {
		if !s.Diff.Empty() {
			return false
		}
	}
	return true
}

// Messages renders the notification payloads according to the batching
// policy. An empty report yields no messages.
func (r Report) Messages(batch Batch) []string {
	var texts []string
	for _, s := range r.Sections {
		if s.Diff.Empty() {
			continue
		}
		texts = append(texts, s.Text)
	}

	if len(texts) == 0 {
		return nil
	}
	if batch == BatchPerSite {
		return texts
	}
	return []string{strings.Join(texts, "\n\n")}
}

// textDiff renders a compact semantic diff of two excerpts. Whitespace-only
// differences are ignored, as some sites render whitespace randomly.
func textDiff(old, new string) string {
	if stripSpace(old) == stripSpace(new) {
		return ""
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(old, new, false))

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString("[+")
			b.WriteString(d.Text)
			b.WriteString("]")
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-")
			b.WriteString(d.Text)
			b.WriteString("]")
		case diffmatchpatch.DiffEqual:
		}
	}

	return b.String()
}

func truncated(urls []string, max int) string {
	shown := urls
	if len(urls) > max {
		shown = urls[:max]
	}
	out := strings.Join(shown, "\n")
	if extra := len(urls) - max; extra > 0 {
		out += fmt.Sprintf("\n…(+%d more)", extra)
	}
	return out
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// stripSpace removes all whitespace from the given string.
func stripSpace(str string) string {
	var builder strings.Builder
	builder.Grow(len(str))
	for _, r := range str {
		if !unicode.IsSpace(r) {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
