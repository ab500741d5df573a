package sitewatch

// SiteStatus describes the outcome of processing one site during a run.
type SiteStatus string

const (
	// StatusOK means the site was fetched and diffed.
	StatusOK SiteStatus = "ok"
	// StatusFetchFailed means no source of the site could be fetched. The
	// site's snapshot entries are preserved unchanged and no diff is computed,
	// so a flaky fetch never masquerades as "all URLs removed".
	StatusFetchFailed SiteStatus = "fetch_failed"
	// StatusSkipped means the run's total URL budget was exhausted before the
	// site was reached. Like a fetch failure, its snapshot entries are preserved.
	StatusSkipped SiteStatus = "skipped"
)

// ExcerptPair carries the stored canonical-text excerpts of a changed page,
// for rendering a content diff in the report.
type ExcerptPair struct {
	Old string
	New string
}

// Diff is the structured result of comparing one site's current observations
// against its prior snapshot. Added, Removed and Changed are pairwise disjoint
// and, for a StatusOK diff, together with the unchanged URLs account for every
// URL seen in either the observations or the snapshot.
type Diff struct {
	Status  SiteStatus
	Added   []string
	Removed []string
	Changed []string
	// Suppressed counts fingerprint mismatches filtered out by the site's
	// change threshold or minimum-changed policy.
	Suppressed int
	// Excerpts maps changed URLs to their stored excerpts, when available.
	Excerpts map[string]ExcerptPair
}

// Empty reports whether the diff carries nothing worth notifying about.
// Degraded statuses are never empty - they must surface in the report.
func (d Diff) Empty() bool {
	return d.Status == StatusOK && len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}
