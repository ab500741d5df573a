package sitewatch

import "time"

// PageState is what the snapshot remembers about one URL between runs.
type PageState struct {
	Fingerprint string    `json:"fingerprint"`
	Length      int       `json:"length"`
	Excerpt     string    `json:"excerpt,omitempty"`
	LastSeen    time.Time `json:"last_seen"`
}

// SiteSnapshot maps the URLs of one site to their last known state.
type SiteSnapshot map[string]PageState

// Clone returns a deep copy of the site snapshot.
func (s SiteSnapshot) Clone() SiteSnapshot {
	c := make(SiteSnapshot, len(s))
	for url, state := range s {
		c[url] = state
	}
	return c
}

// Snapshot is the persisted last known state of all monitored sites. It is
// loaded once per run, treated as immutable, and replaced as a whole by the
// merge of a successful run.
type Snapshot struct {
	Sites map[string]SiteSnapshot `json:"sites"`
}

// NewSnapshot returns an empty snapshot, the state of a first run.
func NewSnapshot() Snapshot {
	return Snapshot{Sites: map[string]SiteSnapshot{}}
}

// Site returns the snapshot of the named site, or an empty one if the site
// has never been seen.
func (s Snapshot) Site(name string) SiteSnapshot {
	if site, ok := s.Sites[name]; ok {
		return site
	}
	return SiteSnapshot{}
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	c := NewSnapshot()
	for name, site := range s.Sites {
		c.Sites[name] = site.Clone()
	}
	return c
}

// WithSite returns a copy of the snapshot with the given site's state replaced.
func (s Snapshot) WithSite(name string, site SiteSnapshot) Snapshot {
	c := s.Clone()
	c.Sites[name] = site
	return c
}
