package sitewatch

// Observation is the result of fetching and normalizing one URL during one run.
// Observations are ephemeral - they only reach the persisted snapshot via the
// merge at the end of a successful run.
type Observation struct {
	URL         string
	Fingerprint string
	// Length is the byte length of the canonical text, used for threshold checks.
	Length int
	// Excerpt optionally keeps the leading slice of the canonical text so
	// reports can show what changed.
	Excerpt string
	// Failed marks a URL whose fetch or normalization failed this run. Its
	// prior snapshot entry must be preserved and it must not count as removed.
	Failed bool
}
