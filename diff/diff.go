// Package diff implements the change-detection engine: comparing the current
// observations of a site against its persisted snapshot.
package diff

import (
	"sort"
	"time"

	"gitlab.com/henri.philipps/sitewatch"
)

// Compute compares one site's observations from the current run against its
// prior snapshot and returns the structured diff.
//
// fetchOK must only be true when URL discovery for the site succeeded. An
// empty observation list with fetchOK set means the site legitimately
// publishes no URLs anymore and everything prior is removed. Without that
// signal the site is reported as fetch-failed and nothing is diffed, so a
// failed fetch never shows up as a mass removal.
func Compute(site *sitewatch.Site, obs []sitewatch.Observation, fetchOK bool, prior sitewatch.SiteSnapshot) sitewatch.Diff {
	if !fetchOK {
		return sitewatch.Diff{Status: sitewatch.StatusFetchFailed}
	}

	d := sitewatch.Diff{Status: sitewatch.StatusOK}

	current := make(map[string]sitewatch.Observation, len(obs))
	for _, o := range obs {
		current[o.URL] = o
	}

	for url, o := range current {
		if o.Failed {
			// transient per-URL failure - the prior state stays authoritative
			continue
		}

		prev, known := prior[url]
		if !known {
			d.Added = append(d.Added, url)
			continue
		}
		if prev.Fingerprint == o.Fingerprint {
			continue
		}

		if delta(o.Length, prev.Length) >= site.ChangeThreshold {
			d.Changed = append(d.Changed, url)
			if prev.Excerpt != "" && o.Excerpt != "" {
				if d.Excerpts == nil {
					d.Excerpts = map[string]sitewatch.ExcerptPair{}
				}
				d.Excerpts[url] = sitewatch.ExcerptPair{Old: prev.Excerpt, New: o.Excerpt}
			}
		} else {
			d.Suppressed++
		}
	}

	for url := range prior {
		// failed observations count as present, so they never appear removed
		if _, seen := current[url]; !seen {
			d.Removed = append(d.Removed, url)
		}
	}

	if site.MinChanged > 0 && len(d.Changed) < site.MinChanged {
		d.Suppressed += len(d.Changed)
		d.Changed = nil
		d.Excerpts = nil
	}

	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)

	return d
}

// Merge produces the site snapshot to persist after a run. The prior value is
// never mutated. Failed observations carry their prior entry forward, removed
// URLs drop out, and every successful observation records its new state -
// including mismatches suppressed by the threshold, so a slow drift is
// reported once it crosses the threshold within a single run rather than
// accumulating silently.
func Merge(prior sitewatch.SiteSnapshot, obs []sitewatch.Observation, fetchOK bool, now time.Time) sitewatch.SiteSnapshot {
	if !fetchOK {
		return prior.Clone()
	}

	next := make(sitewatch.SiteSnapshot, len(obs))
	for _, o := range obs {
		if o.Failed {
			if prev, known := prior[o.URL]; known {
				next[o.URL] = prev
			}
			continue
		}
		next[o.URL] = sitewatch.PageState{
			Fingerprint: o.Fingerprint,
			Length:      o.Length,
			Excerpt:     o.Excerpt,
			LastSeen:    now,
		}
	}

	return next
}

func delta(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
