package discover

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"log/slog"

	"gitlab.com/henri.philipps/sitewatch"
)

// fakeFetcher serves canned responses by URL.
type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := f[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: status code 404", url)
	}
	return []byte(body), nil
}

const sitemapIndex = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://acme.example/sitemap-posts.xml</loc></sitemap>
</sitemapindex>`

const sitemapPosts = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://acme.example/blog/post-1</loc></url>
  <url><loc>https://acme.example/blog/post-2</loc></url>
  <url><loc>https://acme.example/internal/admin</loc></url>
</urlset>`

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>acme</title>
  <item><title>p3</title><link>https://acme.example/blog/post-3</link></item>
</channel></rss>`

func TestDiscoverer_URLs(t *testing.T) {
	fetcher := fakeFetcher{
		"https://acme.example/robots.txt":        "User-agent: *\nSitemap: https://acme.example/sitemap-index.xml\n",
		"https://acme.example/sitemap-index.xml": sitemapIndex,
		"https://acme.example/sitemap-posts.xml": sitemapPosts,
		"https://acme.example/feed":              rssFeed,
		"https://acme.example":                   "<html><head></head><body></body></html>",
	}

	site := &sitewatch.Site{
		Name:         "acme",
		URL:          "https://acme.example/",
		ExcludePaths: []string{"/internal"},
		DiscoverRSS:  true,
	}

	d := New(fetcher, slog.Default())
	urls, ok := d.URLs(context.Background(), site, 100)

	if !ok {
		t.Fatalf("Expected discovery to succeed")
	}
	want := []string{
		"https://acme.example/blog/post-1",
		"https://acme.example/blog/post-2",
		"https://acme.example/blog/post-3",
	}
	if !reflect.DeepEqual(want, urls) {
		t.Errorf("Expected URLs %v, got %v", want, urls)
	}
}

func TestDiscoverer_URLs_SitemapWithoutRobots(t *testing.T) {
	fetcher := fakeFetcher{
		"https://acme.example/sitemap.xml": sitemapPosts,
	}

	site := &sitewatch.Site{Name: "acme", URL: "https://acme.example"}

	d := New(fetcher, slog.Default())
	urls, ok := d.URLs(context.Background(), site, 100)

	if !ok {
		t.Fatalf("Expected discovery via conventional sitemap location to succeed")
	}
	if want, got := 3, len(urls); want != got {
		t.Errorf("Expected %d URLs, got %d: %v", want, got, urls)
	}
}

func TestDiscoverer_URLs_Capped(t *testing.T) {
	fetcher := fakeFetcher{
		"https://acme.example/sitemap.xml": sitemapPosts,
	}

	site := &sitewatch.Site{Name: "acme", URL: "https://acme.example"}

	d := New(fetcher, slog.Default())
	urls, ok := d.URLs(context.Background(), site, 2)

	if !ok {
		t.Fatalf("Expected discovery to succeed")
	}
	if want, got := 2, len(urls); want != got {
		t.Errorf("Expected cap of %d URLs, got %d: %v", want, got, urls)
	}
}

func TestDiscoverer_URLs_NothingReachable(t *testing.T) {
	site := &sitewatch.Site{Name: "acme", URL: "https://acme.example", DiscoverRSS: true}

	d := New(fakeFetcher{}, slog.Default())
	urls, ok := d.URLs(context.Background(), site, 100)

	if ok {
		t.Errorf("Expected discovery to report failure when no source is reachable, got URLs %v", urls)
	}
}

func TestDiscoverer_URLs_FeedLinkOnBasePage(t *testing.T) {
	fetcher := fakeFetcher{
		"https://acme.example":          `<html><head><link rel="alternate" type="application/rss+xml" href="/news.xml"></head></html>`,
		"https://acme.example/news.xml": rssFeed,
	}

	site := &sitewatch.Site{Name: "acme", URL: "https://acme.example", DiscoverRSS: true}

	d := New(fetcher, slog.Default())
	urls, ok := d.URLs(context.Background(), site, 100)

	if !ok {
		t.Fatalf("Expected discovery via alternate link to succeed")
	}
	want := []string{"https://acme.example/blog/post-3"}
	if !reflect.DeepEqual(want, urls) {
		t.Errorf("Expected URLs %v, got %v", want, urls)
	}
}
