package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"log/slog"

	"gitlab.com/henri.philipps/sitewatch"
	"gitlab.com/henri.philipps/sitewatch/config"
	"gitlab.com/henri.philipps/sitewatch/report"
	"gitlab.com/henri.philipps/sitewatch/storage/memory"
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

// fakeNotifier records delivered messages and can be set to fail.
type fakeNotifier struct {
	messages []string
	fail     bool
}

func (n *fakeNotifier) Notify(_ context.Context, message string) error {
	if n.fail {
		return sitewatch.ErrNotifyFailed
	}
	n.messages = append(n.messages, message)
	return nil
}

const sitemapFmt = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">%s</urlset>`

func sitemap(urls ...string) string {
	var locs strings.Builder
	for _, u := range urls {
		locs.WriteString("<url><loc>" + u + "</loc></url>")
	}
	return fmt.Sprintf(sitemapFmt, locs.String())
}

func testConfig(names ...string) *config.Config {
	cfg := &config.Config{
		Limits: sitewatch.Limits{
			MaxURLsPerSite: 100,
			MaxTotalURLs:   200,
		},
		NotifyBatch: report.BatchCombined,
	}
	for _, name := range names {
		cfg.Sites = append(cfg.Sites, &sitewatch.Site{
			Name: name,
			URL:  fmt.Sprintf("https://%s.example", name),
		})
	}
	return cfg
}

func siteFetcher(name string, pages map[string]string) fakeFetcher {
	base := fmt.Sprintf("https://%s.example", name)
	f := fakeFetcher{}
	var urls []string
	for path, content := range pages {
		f[base+path] = content
		urls = append(urls, base+path)
	}
	f[base+"/sitemap.xml"] = sitemap(urls...)
	return f
}

func merge(dst fakeFetcher, srcs ...fakeFetcher) fakeFetcher {
	for _, src := range srcs {
		for k, v := range src {
			dst[k] = v
		}
	}
	return dst
}

func TestWatcher_Run_FirstAndSecondRun(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	fetcher := siteFetcher("acme", map[string]string{
		"/a": "<p>content a</p>",
		"/b": "<p>content b</p>",
	})
	store := memory.New(slog.Default())
	notifier := &fakeNotifier{}

	w := NewWatcher(testConfig("acme"), store, fetcher, notifier, WithClock(func() time.Time { return now }))

	// first run: everything is new
	if err := w.Run(ctx); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if want, got := 1, len(notifier.messages); want != got {
		t.Fatalf("Expected %d notification after first run, got %d", want, got)
	}
	if msg := notifier.messages[0]; !strings.Contains(msg, "New URLs:") ||
		!strings.Contains(msg, "https://acme.example/a") ||
		!strings.Contains(msg, "https://acme.example/b") {
		t.Errorf("Expected first-run message to list both new URLs, got:\n%s", msg)
	}

	snap, _ := store.Load(ctx)
	if want, got := 2, len(snap.Site("acme")); want != got {
		t.Fatalf("Expected %d snapshot entries, got %d", want, got)
	}
	if want, got := now, snap.Site("acme")["https://acme.example/a"].LastSeen; want != got {
		t.Errorf("Expected last seen %s, got %s", want, got)
	}

	// second run with identical content: silence
	if err := w.Run(ctx); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if want, got := 1, len(notifier.messages); want != got {
		t.Errorf("Expected no further notification for an unchanged site, got %d messages", got)
	}
}

func TestWatcher_Run_DetectsChangeAndRemoval(t *testing.T) {
	ctx := context.Background()
	store := memory.New(slog.Default())
	notifier := &fakeNotifier{}
	cfg := testConfig("acme")

	before := siteFetcher("acme", map[string]string{
		"/a": "<p>original content of page a</p>",
		"/b": "<p>content b</p>",
	})
	if err := NewWatcher(cfg, store, before, notifier).Run(ctx); err != nil {
		t.Fatalf("seed Run failed: %v", err)
	}
	notifier.messages = nil

	after := siteFetcher("acme", map[string]string{
		"/a": "<p>completely rewritten page a</p>",
		"/c": "<p>content c</p>",
	})
	if err := NewWatcher(cfg, store, after, notifier).Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if want, got := 1, len(notifier.messages); want != got {
		t.Fatalf("Expected %d notification, got %d", want, got)
	}
	msg := notifier.messages[0]
	for _, want := range []string{
		"Changed content:\nhttps://acme.example/a",
		"New URLs:\nhttps://acme.example/c",
		"Removed URLs:\nhttps://acme.example/b",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected message to contain %q, got:\n%s", want, msg)
		}
	}

	snap, _ := store.Load(ctx)
	if _, gone := snap.Site("acme")["https://acme.example/b"]; gone {
		t.Errorf("Expected removed URL to drop out of the snapshot")
	}
}

func TestWatcher_Run_FetchFailureIsolation(t *testing.T) {
	ctx := context.Background()
	store := memory.New(slog.Default())
	notifier := &fakeNotifier{}
	cfg := testConfig("broken", "healthy")

	// seed both sites
	seed := merge(fakeFetcher{},
		siteFetcher("broken", map[string]string{"/x": "<p>x</p>"}),
		siteFetcher("healthy", map[string]string{"/y": "<p>y</p>"}),
	)
	if err := NewWatcher(cfg, store, seed, notifier).Run(ctx); err != nil {
		t.Fatalf("seed Run failed: %v", err)
	}
	notifier.messages = nil
	seeded, _ := store.Load(ctx)

	// second run: broken.example is entirely unreachable, healthy gained a page
	second := siteFetcher("healthy", map[string]string{
		"/y": "<p>y</p>",
		"/z": "<p>z</p>",
	})
	if err := NewWatcher(cfg, store, second, notifier).Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if want, got := 1, len(notifier.messages); want != got {
		t.Fatalf("Expected %d notification, got %d", want, got)
	}
	msg := notifier.messages[0]
	if !strings.Contains(msg, "*[broken]*") || !strings.Contains(msg, "fetch failed") {
		t.Errorf("Expected degraded status line for broken site, got:\n%s", msg)
	}
	if !strings.Contains(msg, "https://healthy.example/z") {
		t.Errorf("Expected healthy site still diffed and reported, got:\n%s", msg)
	}
	if strings.Contains(msg, "Removed URLs:\nhttps://broken.example/x") {
		t.Errorf("Expected no removals for the unreachable site, got:\n%s", msg)
	}

	snap, _ := store.Load(ctx)
	if want, got := fmt.Sprint(seeded.Site("broken")), fmt.Sprint(snap.Site("broken")); want != got {
		t.Errorf("Expected broken site's snapshot preserved unchanged, want %s got %s", want, got)
	}
	if want, got := 2, len(snap.Site("healthy")); want != got {
		t.Errorf("Expected healthy site's snapshot updated to %d entries, got %d", want, got)
	}
}

func TestWatcher_Run_RequiredNotifyFailureSkipsPersist(t *testing.T) {
	ctx := context.Background()
	store := memory.New(slog.Default())
	notifier := &fakeNotifier{fail: true}

	cfg := testConfig("acme")
	cfg.NotifyRequired = true

	fetcher := siteFetcher("acme", map[string]string{"/a": "<p>a</p>"})

	err := NewWatcher(cfg, store, fetcher, notifier).Run(ctx)
	if !errors.Is(err, sitewatch.ErrNotifyFailed) {
		t.Fatalf("Expected ErrNotifyFailed, got %v", err)
	}

	snap, _ := store.Load(ctx)
	if want, got := 0, len(snap.Site("acme")); want != got {
		t.Errorf("Expected snapshot untouched after failed required notification, got %d entries", got)
	}
}

func TestWatcher_Run_BestEffortNotifyFailureStillPersists(t *testing.T) {
	ctx := context.Background()
	store := memory.New(slog.Default())
	notifier := &fakeNotifier{fail: true}

	cfg := testConfig("acme")

	fetcher := siteFetcher("acme", map[string]string{"/a": "<p>a</p>"})

	if err := NewWatcher(cfg, store, fetcher, notifier).Run(ctx); err != nil {
		t.Fatalf("Expected best-effort run to succeed, got %v", err)
	}

	snap, _ := store.Load(ctx)
	if want, got := 1, len(snap.Site("acme")); want != got {
		t.Errorf("Expected snapshot persisted despite failed best-effort notification, got %d entries", got)
	}
}

func TestWatcher_Run_ParallelFetchMatchesSequential(t *testing.T) {
	ctx := context.Background()

	pages := map[string]string{}
	for i := 0; i < 25; i++ {
		pages[fmt.Sprintf("/p%02d", i)] = fmt.Sprintf("<p>page %d</p>", i)
	}
	fetcher := siteFetcher("acme", pages)

	sequential := memory.New(slog.Default())
	parallel := memory.New(slog.Default())

	if err := NewWatcher(testConfig("acme"), sequential, fetcher, &fakeNotifier{}).Run(ctx); err != nil {
		t.Fatalf("sequential Run failed: %v", err)
	}
	if err := NewWatcher(testConfig("acme"), parallel, fetcher, &fakeNotifier{}, WithThreads(8)).Run(ctx); err != nil {
		t.Fatalf("parallel Run failed: %v", err)
	}

	seqSnap, _ := sequential.Load(ctx)
	parSnap, _ := parallel.Load(ctx)

	seq := seqSnap.Site("acme")
	par := parSnap.Site("acme")
	if want, got := len(seq), len(par); want != got {
		t.Fatalf("Expected %d entries from parallel run, got %d", want, got)
	}
	for url, state := range seq {
		if want, got := state.Fingerprint, par[url].Fingerprint; want != got {
			t.Errorf("Expected fingerprint %s for %s, got %s", want, url, got)
		}
	}
}
