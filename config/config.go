// Package config loads and validates the declarative site list driving a run.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"gitlab.com/henri.philipps/sitewatch"
	"gitlab.com/henri.philipps/sitewatch/report"
)

// Defaults applied when the file leaves them out. The change threshold is the
// minimum absolute byte-length delta of canonical text for a fingerprint
// mismatch to count as changed.
const (
	DefaultChangeThreshold = 2000
	DefaultMaxURLsPerSite  = 1500
	DefaultMaxTotalURLs    = 3000
	DefaultRequestTimeout  = 20 * time.Second
	DefaultRequestRetries  = 2
	DefaultPoliteSleep     = 150 * time.Millisecond
	DefaultStatePath       = "state.json"
)

// Backends for snapshot persistence.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// State describes where the snapshot is persisted.
type State struct {
	Backend     string
	Path        string
	PostgresURI string
}

// Config is the resolved runtime configuration for one run. Immutable after Load.
type Config struct {
	Sites          []*sitewatch.Site
	Limits         sitewatch.Limits
	IgnorePatterns []*regexp.Regexp
	NotifyBatch    report.Batch
	NotifyRequired bool
	StoreExcerpts  bool
	State          State
}

type fileSite struct {
	Name            string   `yaml:"name"`
	URL             string   `yaml:"url"`
	Selector        string   `yaml:"selector"`
	IncludePaths    []string `yaml:"include_paths"`
	ExcludePaths    []string `yaml:"exclude_paths"`
	ChangeThreshold *int     `yaml:"change_threshold"`
	MinChanged      int      `yaml:"min_changed"`
	TimeoutSec      int      `yaml:"timeout_sec"`
	DiscoverRSS     *bool    `yaml:"discover_rss"`
}

type fileLimits struct {
	MaxURLsPerSite    int  `yaml:"max_urls_per_site"`
	MaxTotalURLs      int  `yaml:"max_total_urls"`
	RequestTimeoutSec int  `yaml:"request_timeout_sec"`
	RequestRetries    *int `yaml:"request_retries"`
	PoliteSleepMS     *int `yaml:"polite_sleep_ms"`
}

type fileOptions struct {
	DiscoverRSS    *bool  `yaml:"discover_rss"`
	NotifyBatch    string `yaml:"notify_batch"`
	NotifyRequired bool   `yaml:"notify_required"`
	StoreExcerpts  bool   `yaml:"store_excerpts"`
}

type fileState struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	PGURI   string `yaml:"pguri"`
}

type file struct {
	Sites           []fileSite  `yaml:"sites"`
	ChangeThreshold *int        `yaml:"change_threshold"`
	IgnorePatterns  []string    `yaml:"ignore_patterns"`
	Limits          fileLimits  `yaml:"limits"`
	Options         fileOptions `yaml:"options"`
	State           fileState   `yaml:"state"`
}

// Load reads and validates the configuration file. Any malformed entry is a
// startup-time fatal error wrapping sitewatch.ErrConfig - a run never starts
// on a bad site list.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", sitewatch.ErrConfig, path, err)
	}
	return Parse(data)
}

// Parse validates and resolves the raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %v", sitewatch.ErrConfig, err)
	}

	if len(f.Sites) == 0 {
		return nil, fmt.Errorf("%w: no sites configured", sitewatch.ErrConfig)
	}

	cfg := &Config{
		Limits: sitewatch.Limits{
			MaxURLsPerSite: intOr(f.Limits.MaxURLsPerSite, DefaultMaxURLsPerSite),
			MaxTotalURLs:   intOr(f.Limits.MaxTotalURLs, DefaultMaxTotalURLs),
			RequestTimeout: secondsOr(f.Limits.RequestTimeoutSec, DefaultRequestTimeout),
			RequestRetries: DefaultRequestRetries,
			PoliteSleep:    DefaultPoliteSleep,
		},
		NotifyBatch:    report.BatchCombined,
		NotifyRequired: f.Options.NotifyRequired,
		StoreExcerpts:  f.Options.StoreExcerpts,
		State: State{
			Backend:     f.State.Backend,
			Path:        f.State.Path,
			PostgresURI: f.State.PGURI,
		},
	}

	if f.Limits.RequestRetries != nil {
		cfg.Limits.RequestRetries = *f.Limits.RequestRetries
	}
	if f.Limits.PoliteSleepMS != nil {
		cfg.Limits.PoliteSleep = time.Duration(*f.Limits.PoliteSleepMS) * time.Millisecond
	}

	switch f.Options.NotifyBatch {
	case "":
	case string(report.BatchCombined):
		cfg.NotifyBatch = report.BatchCombined
	case string(report.BatchPerSite):
		cfg.NotifyBatch = report.BatchPerSite
	default:
		return nil, fmt.Errorf("%w: notify_batch %q not supported", sitewatch.ErrConfig, f.Options.NotifyBatch)
	}

	switch cfg.State.Backend {
	case "":
		cfg.State.Backend = BackendFile
	case BackendFile, BackendPostgres:
	default:
		return nil, fmt.Errorf("%w: state backend %q not supported", sitewatch.ErrConfig, cfg.State.Backend)
	}
	if cfg.State.Path == "" {
		cfg.State.Path = DefaultStatePath
	}

	for _, pattern := range f.IgnorePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: ignore pattern %q: %v", sitewatch.ErrConfig, pattern, err)
		}
		cfg.IgnorePatterns = append(cfg.IgnorePatterns, re)
	}

	globalThreshold := DefaultChangeThreshold
	if f.ChangeThreshold != nil {
		globalThreshold = *f.ChangeThreshold
	}
	globalRSS := true
	if f.Options.DiscoverRSS != nil {
		globalRSS = *f.Options.DiscoverRSS
	}

	names := map[string]bool{}
	for i, fs := range f.Sites {
		site, err := resolveSite(fs, globalThreshold, globalRSS, cfg.Limits.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: site %d (%s): %v", sitewatch.ErrConfig, i, fs.Name, err)
		}
		if names[site.Name] {
			return nil, fmt.Errorf("%w: duplicate site name %q", sitewatch.ErrConfig, site.Name)
		}
		names[site.Name] = true
		cfg.Sites = append(cfg.Sites, site)
	}

	return cfg, nil
}

func resolveSite(fs fileSite, globalThreshold int, globalRSS bool, defaultTimeout time.Duration) (*sitewatch.Site, error) {
	if fs.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if fs.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(fs.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("url %q is not a valid http(s) URL", fs.URL)
	}

	site := &sitewatch.Site{
		Name:            fs.Name,
		URL:             fs.URL,
		Selector:        fs.Selector,
		IncludePaths:    fs.IncludePaths,
		ExcludePaths:    fs.ExcludePaths,
		ChangeThreshold: globalThreshold,
		MinChanged:      fs.MinChanged,
		Timeout:         defaultTimeout,
		DiscoverRSS:     globalRSS,
	}
	if fs.ChangeThreshold != nil {
		site.ChangeThreshold = *fs.ChangeThreshold
	}
	if fs.TimeoutSec > 0 {
		site.Timeout = time.Duration(fs.TimeoutSec) * time.Second
	}
	if fs.DiscoverRSS != nil {
		site.DiscoverRSS = *fs.DiscoverRSS
	}

	return site, nil
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func secondsOr(v int, fallback time.Duration) time.Duration {
	if v > 0 {
		return time.Duration(v) * time.Second
	}
	return fallback
}
