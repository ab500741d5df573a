package sitewatch

import (
	"net/url"
	"strings"
	"time"
)

// Site contains the meta data necessary to describe a competitor site to be monitored.
type Site struct {
	// Name uniquely identifies the site and keys its snapshot entries.
	Name string
	// URL is the base URL used for sitemap and feed discovery.
	URL string
	// Selector optionally restricts normalization to a sub-region of each page.
	Selector string
	// IncludePaths and ExcludePaths filter discovered URLs by path prefix.
	IncludePaths []string
	ExcludePaths []string
	// ChangeThreshold is the minimum absolute canonical byte-length delta for
	// a fingerprint mismatch to be reported as changed. 0 reports every mismatch.
	ChangeThreshold int
	// MinChanged is the minimum number of changed URLs required before any of
	// them is reported, to guard against noise from a single flaky page.
	MinChanged int
	// Timeout bounds each fetch request for this site.
	Timeout time.Duration
	// DiscoverRSS enables RSS/Atom feed discovery in addition to sitemaps.
	DiscoverRSS bool
}

// IncludesURL reports whether the given URL passes the site's include and
// exclude path prefix filters.
func (s *Site) IncludesURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	if len(s.IncludePaths) > 0 {
		included := false
		for _, p := range s.IncludePaths {
			if strings.HasPrefix(path, p) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, p := range s.ExcludePaths {
		if strings.HasPrefix(path, p) {
			return false
		}
	}

	return true
}

// Limits bound the amount of work a single run is allowed to do.
type Limits struct {
	MaxURLsPerSite int
	MaxTotalURLs   int
	RequestTimeout time.Duration
	RequestRetries int
	PoliteSleep    time.Duration
}
