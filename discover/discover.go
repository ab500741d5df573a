// Package discover collects the set of URLs a site currently publishes, from
// its sitemaps and optionally its RSS/Atom feeds.
package discover

import (
	"bytes"
	"context"
	"encoding/xml"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"log/slog"

	"gitlab.com/henri.philipps/sitewatch"
	"gitlab.com/henri.philipps/sitewatch/fetch"
)

var commonFeedPaths = []string{"/feed", "/rss", "/rss.xml", "/atom.xml"}

// Discoverer resolves a site's configured base URL into its current URL set.
type Discoverer struct {
	fetcher fetch.Fetcher
	logger  *slog.Logger
	parser  *gofeed.Parser
}

// New returns a Discoverer using the given fetcher for all requests.
func New(fetcher fetch.Fetcher, logger *slog.Logger) *Discoverer {
	return &Discoverer{fetcher: fetcher, logger: logger, parser: gofeed.NewParser()}
}

// URLs returns the site's current URLs after include/exclude filtering,
// sorted and capped at max entries.
//
// The boolean result is the "fetch succeeded" signal the diff engine needs:
// it is true only when at least one source (sitemap or feed) was fetched and
// parsed, so "reachable sitemap listing nothing" is a legitimate empty result
// while "nothing reachable at all" is a fetch failure.
func (d *Discoverer) URLs(ctx context.Context, site *sitewatch.Site, max int) ([]string, bool) {
	logger := d.logger.With(slog.String("site", site.Name))
	base := strings.TrimRight(site.URL, "/")

	collected := map[string]bool{}
	sourced := false

	if sitemap := d.findSitemap(ctx, base, logger); sitemap != "" {
		d.walkSitemap(ctx, sitemap, collected, max, logger)
		sourced = true
	} else {
		logger.Info("no sitemap found", slog.String("base", base))
	}

	if site.DiscoverRSS {
		for _, feedURL := range d.findFeeds(ctx, base, logger) {
			if d.collectFeedItems(ctx, feedURL, collected, max, logger) {
				sourced = true
			}
		}
	}

	if !sourced {
		return nil, false
	}

	var urls []string
	for u := range collected {
		if site.IncludesURL(u) {
			urls = append(urls, u)
		}
	}
	sort.Strings(urls)
	if len(urls) > max {
		urls = urls[:max]
	}

	return urls, true
}

// findSitemap returns the first reachable sitemap URL, trying robots.txt
// declarations before the conventional locations.
func (d *Discoverer) findSitemap(ctx context.Context, base string, logger *slog.Logger) string {
	candidates := d.robotsSitemaps(ctx, base)
	candidates = append(candidates, join(base, "/sitemap.xml"), join(base, "/sitemap_index.xml"))

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if _, err := d.fetcher.Fetch(ctx, candidate); err == nil {
			return candidate
		}
	}

	return ""
}

// robotsSitemaps extracts the Sitemap: lines from the site's robots.txt.
func (d *Discoverer) robotsSitemaps(ctx context.Context, base string) []string {
	body, err := d.fetcher.Fetch(ctx, join(base, "/robots.txt"))
	if err != nil {
		return nil
	}

	var sitemaps []string
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(strings.ToLower(line), "sitemap:") {
			sitemaps = append(sitemaps, strings.TrimSpace(line[len("sitemap:"):]))
		}
	}

	return sitemaps
}

// sitemapDoc covers both sitemap indexes and urlsets of the sitemaps.org schema.
type sitemapDoc struct {
	Sitemaps []sitemapLoc `xml:"sitemap"`
	URLs     []sitemapLoc `xml:"url"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// walkSitemap collects page URLs from the sitemap, following nested sitemap
// indexes, until the cap is reached. Unparseable child sitemaps are skipped.
func (d *Discoverer) walkSitemap(ctx context.Context, root string, collected map[string]bool, max int, logger *slog.Logger) {
	seen := map[string]bool{}
	stack := []string{root}

	for len(stack) > 0 && len(collected) < max {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true

		body, err := d.fetcher.Fetch(ctx, cur)
		if err != nil {
			logger.Warn("failed to fetch sitemap", "url", cur, "error", err.Error())
			continue
		}

		var doc sitemapDoc
		if err := xml.Unmarshal(body, &doc); err != nil {
			logger.Warn("failed to parse sitemap", "url", cur, "error", err.Error())
			continue
		}

		for _, sm := range doc.Sitemaps {
			if loc := strings.TrimSpace(sm.Loc); loc != "" {
				stack = append(stack, loc)
			}
		}
		for _, u := range doc.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				collected[loc] = true
				if len(collected) >= max {
					break
				}
			}
		}
	}
}

// findFeeds probes the common feed paths and scans the base page for
// alternate feed links.
func (d *Discoverer) findFeeds(ctx context.Context, base string, logger *slog.Logger) []string {
	var feeds []string
	dedup := map[string]bool{}

	add := func(u string) {
		if u != "" && !dedup[u] {
			dedup[u] = true
			feeds = append(feeds, u)
		}
	}

	for _, path := range commonFeedPaths {
		u := join(base, path)
		body, err := d.fetcher.Fetch(ctx, u)
		if err != nil {
			continue
		}
		if looksLikeFeed(body) {
			add(u)
		}
	}

	body, err := d.fetcher.Fetch(ctx, base)
	if err != nil {
		return feeds
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return feeds
	}
	doc.Find(`link[rel~="alternate"]`).Each(func(_ int, sel *goquery.Selection) {
		typ, _ := sel.Attr("type")
		typ = strings.ToLower(typ)
		if !strings.Contains(typ, "rss") && !strings.Contains(typ, "atom") && !strings.Contains(typ, "xml") {
			return
		}
		if href, ok := sel.Attr("href"); ok {
			add(join(base, href))
		}
	})

	return feeds
}

// collectFeedItems parses the feed and collects its item links. The boolean
// result reports whether the feed was fetched and parsed.
func (d *Discoverer) collectFeedItems(ctx context.Context, feedURL string, collected map[string]bool, max int, logger *slog.Logger) bool {
	body, err := d.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		logger.Warn("failed to fetch feed", "url", feedURL, "error", err.Error())
		return false
	}

	feed, err := d.parser.ParseString(string(body))
	if err != nil {
		logger.Warn("failed to parse feed", "url", feedURL, "error", err.Error())
		return false
	}

	for _, item := range feed.Items {
		if len(collected) >= max {
			break
		}
		if link := strings.TrimSpace(item.Link); link != "" {
			collected[link] = true
		}
	}

	return true
}

func looksLikeFeed(body []byte) bool {
	head := strings.TrimSpace(string(body))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<?xml") || strings.Contains(head, "<rss") || strings.Contains(head, "<feed")
}

// join resolves ref against base, so relative feed hrefs work too.
func join(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}
