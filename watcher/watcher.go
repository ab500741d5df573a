// Package watcher orchestrates one monitoring run: discover and fetch each
// configured site, normalize and fingerprint its pages, diff against the
// loaded snapshot, notify, and only then persist the merged snapshot.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"gitlab.com/henri.philipps/sitewatch"
	"gitlab.com/henri.philipps/sitewatch/config"
	"gitlab.com/henri.philipps/sitewatch/diff"
	"gitlab.com/henri.philipps/sitewatch/discover"
	"gitlab.com/henri.philipps/sitewatch/fetch"
	"gitlab.com/henri.philipps/sitewatch/normalize"
	"gitlab.com/henri.philipps/sitewatch/notify"
	"gitlab.com/henri.philipps/sitewatch/report"
	"gitlab.com/henri.philipps/sitewatch/storage"
)

const excerptLen = 400

// Watcher runs one monitoring pass over the configured sites.
type Watcher struct {
	cfg      *config.Config
	store    storage.SnapshotStorage
	fetcher  fetch.Fetcher
	notifier notify.Notifier
	logger   *slog.Logger
	threads  int
	now      func() time.Time
}

// NewWatcher is returning a new Watcher instance.
func NewWatcher(cfg *config.Config, store storage.SnapshotStorage, fetcher fetch.Fetcher, notifier notify.Notifier, opts ...Opt) *Watcher {
	watcher := &Watcher{
		cfg:      cfg,
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		logger:   slog.Default(),
		threads:  1,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(watcher)
	}

	return watcher
}

// Opt is a functional option for a watcher.
type Opt func(*Watcher)

// WithLogger configures the Logger.
func WithLogger(logger *slog.Logger) Opt {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithThreads sets how many pages of a site are fetched in parallel. This is
// a non-semantic optimization: all fetching of a site completes before its
// diff is computed.
func WithThreads(threads int) Opt {
	return func(w *Watcher) {
		if threads > 0 {
			w.threads = threads
		}
	}
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Opt {
	return func(w *Watcher) {
		w.now = now
	}
}

// Run executes a single monitoring pass. Sites are processed in configured
// order; a failing site is reported as degraded and never aborts the run.
// The merged snapshot is persisted only after the report was delivered (or
// delivery is configured best-effort), so a crash never loses an unreported
// diff - the next run simply sees it again.
func (w *Watcher) Run(ctx context.Context) error {
	prior, err := w.store.Load(ctx)
	if err != nil {
		return err
	}

	discoverer := discover.New(w.fetcher, w.logger)
	normalizer := normalize.New(w.cfg.IgnorePatterns...)

	// snapshots of sites no longer configured stay around untouched
	next := prior.Clone()
	budget := w.cfg.Limits.MaxTotalURLs

	var sections []report.Section
	for _, site := range w.cfg.Sites {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger := w.logger.With(slog.String("site", site.Name))

		if budget <= 0 {
			logger.Warn("total URL budget exhausted - skipping site")
			sections = append(sections, report.Build(site.Name, sitewatch.Diff{Status: sitewatch.StatusSkipped}))
			continue
		}

		obs, fetchOK := w.observe(ctx, site, discoverer, normalizer, &budget, logger)
		d := diff.Compute(site, obs, fetchOK, prior.Site(site.Name))
		if fetchOK {
			next.Sites[site.Name] = diff.Merge(prior.Site(site.Name), obs, fetchOK, w.now())
		} else {
			logger.Warn("fetch failed - previous state preserved")
		}

		sections = append(sections, report.Build(site.Name, d))
		logger.Info("site processed",
			slog.String("status", string(d.Status)),
			slog.Int("observed", len(obs)),
			slog.Int("added", len(d.Added)),
			slog.Int("removed", len(d.Removed)),
			slog.Int("changed", len(d.Changed)),
			slog.Int("suppressed", d.Suppressed))
	}

	rep := report.BuildOverall(sections)
	if rep.Empty() {
		w.logger.Info("no changes detected - staying silent")
	} else {
		for _, msg := range rep.Messages(w.cfg.NotifyBatch) {
			if err := w.notifier.Notify(ctx, msg); err != nil {
				if w.cfg.NotifyRequired {
					// skip persisting so the unreported diff shows up again next run
					return fmt.Errorf("required notification failed, keeping previous snapshot: %w", err)
				}
				w.logger.Error("best-effort notification failed", err)
			}
		}
	}

	if err := w.store.Save(ctx, next); err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}

	return nil
}

// observe discovers the site's current URLs and fingerprints each page. The
// boolean result is the "fetch succeeded" signal for the diff engine.
func (w *Watcher) observe(ctx context.Context, site *sitewatch.Site, discoverer *discover.Discoverer, normalizer *normalize.Normalizer, budget *int, logger *slog.Logger) ([]sitewatch.Observation, bool) {
	max := w.cfg.Limits.MaxURLsPerSite
	if *budget < max {
		max = *budget
	}

	urls, ok := discoverer.URLs(ctx, site, max)
	if !ok {
		return nil, false
	}
	*budget -= len(urls)
	logger.Debug("URLs discovered", slog.Int("count", len(urls)))

	obs := make([]sitewatch.Observation, len(urls))

	wg := &sync.WaitGroup{}
	work := make(chan int)

	for i := 0; i < w.threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				obs[idx] = w.observeURL(ctx, site, urls[idx], normalizer, logger)
			}
		}()
	}

	for i := range urls {
		work <- i
	}
	close(work)
	wg.Wait()

	return obs, true
}

// observeURL fetches and fingerprints one page. Failures are per-URL: the
// observation is marked failed and the page's prior state stays authoritative.
func (w *Watcher) observeURL(ctx context.Context, site *sitewatch.Site, url string, normalizer *normalize.Normalizer, logger *slog.Logger) sitewatch.Observation {
	fetchCtx := ctx
	if site.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, site.Timeout)
		defer cancel()
	}

	raw, err := w.fetcher.Fetch(fetchCtx, url)
	if err != nil {
		logger.Warn("page fetch failed", "url", url, "error", err.Error())
		return sitewatch.Observation{URL: url, Failed: true}
	}

	text, selectorMissed := normalizer.Normalize(raw, site.Selector)
	if selectorMissed {
		logger.Warn("selector matched nothing - normalized whole page", "url", url, "selector", site.Selector)
	}

	o := sitewatch.Observation{
		URL:         url,
		Fingerprint: normalize.Fingerprint(text),
		Length:      len(text),
	}
	if w.cfg.StoreExcerpts {
		o.Excerpt = normalize.Excerpt(text, excerptLen)
	}

	if w.cfg.Limits.PoliteSleep > 0 {
		time.Sleep(w.cfg.Limits.PoliteSleep)
	}

	return o
}
