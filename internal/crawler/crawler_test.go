package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sws-run/sws/internal/config"
	"github.com/sws-run/sws/internal/csvsink"
	"github.com/sws-run/sws/internal/downloader"
	"github.com/sws-run/sws/internal/errs"
	"github.com/sws-run/sws/internal/scripthost"
)

// linkFollowingScript pushes one record per page (the page's own URL) and
// follows every absolute <a href> it finds, mirroring the teacher's
// TestCrawler_Crawl link-following fixture adapted to the sws script surface.
const linkFollowingScript = `
function scrapPage(page, ctx) {
	var r = new sws.Record();
	r.pushField(ctx.pageLocation().get());
	ctx.sendRecord(r);

	var links = page.select("a").iter();
	for (var i = 0; i < links.length; i++) {
		ctx.sendUrl(links[i].attr("href"));
	}
}
`

func newTestHostFactory(t *testing.T, src string) HostFactory {
	t.Helper()
	prog, err := scripthost.Compile("test.js", src)
	if err != nil {
		t.Fatalf("compile script: %v", err)
	}
	logger := slog.New(slog.DiscardHandler)
	return func(workerID string) (*scripthost.Host, error) {
		return scripthost.New(prog, workerID, logger)
	}
}

func newTestSink(t *testing.T) *csvsink.Sink {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.csv")
	sink, err := csvsink.NewFile(path, csvsink.ModeCreateNew, csvsink.DefaultConfig())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	return sink
}

func newTestDownloader(t *testing.T) *downloader.Downloader {
	t.Helper()
	dl, err := downloader.New(downloader.Config{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new downloader: %v", err)
	}
	return dl
}

func testCrawlerConfig() config.CrawlerConfig {
	cfg := config.DefaultCrawlerConfig()
	cfg.NumWorkers = 2
	return cfg
}

func TestOrchestrator_FollowsLinksAndEmitsOneRecordPerPage(t *testing.T) {
	var mu sync.Mutex
	var hits []string

	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	defer ts.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		fmt.Fprintf(w, `<html><body><a href="%s/page2">p2</a></body></html>`, ts.URL)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		fmt.Fprintf(w, `<html><body><a href="%s/page3">p3</a></body></html>`, ts.URL)
	})
	mux.HandleFunc("/page3", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		fmt.Fprint(w, `<html><body>no more links</body></html>`)
	})

	seed := config.Seed{Kind: config.SeedPages, Pages: []string{ts.URL + "/"}}
	o := New(testCrawlerConfig(), seed, newTestDownloader(t), newTestSink(t), newTestHostFactory(t, linkFollowingScript), slog.Default())

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(hits) != 3 {
		t.Fatalf("expected 3 pages fetched, got %d: %v", len(hits), hits)
	}
	if o.State() != StateDone {
		t.Fatalf("expected StateDone, got %v", o.State())
	}
	if o.InFlight() != 0 {
		t.Fatalf("expected InFlight() to settle at 0, got %d", o.InFlight())
	}
}

func TestOrchestrator_DedupesRevisitedURLs(t *testing.T) {
	var mu sync.Mutex
	count := 0

	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	defer ts.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		fmt.Fprintf(w, `<html><body><a href="%s/">self</a></body></html>`, ts.URL)
	})

	seed := config.Seed{Kind: config.SeedPages, Pages: []string{ts.URL + "/"}}
	o := New(testCrawlerConfig(), seed, newTestDownloader(t), newTestSink(t), newTestHostFactory(t, linkFollowingScript), slog.Default())

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected the self-linking page to be fetched exactly once, got %d", count)
	}
}

// TestOrchestrator_AcceptURLFiltersSitemapEntries mirrors spec.md's
// documented "Sitemap URL_SET filter" testable property: acceptUrl is
// consulted per URL discovered in a sitemap (not per link sendUrl'd from
// scrapPage), and only accepted entries are ever downloaded.
func TestOrchestrator_AcceptURLFiltersSitemapEntries(t *testing.T) {
	var mu sync.Mutex
	visitedOut := false

	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	defer ts.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/keep?term=lua</loc></url>
  <url><loc>%s/drop</loc></url>
</urlset>`, ts.URL, ts.URL)
	})
	mux.HandleFunc("/keep", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>kept</body></html>`)
	})
	mux.HandleFunc("/drop", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		visitedOut = true
		mu.Unlock()
		fmt.Fprint(w, `<html><body>dropped</body></html>`)
	})

	src := `
	function scrapPage(page, ctx) {}
	function acceptUrl(url, ctx) {
		return url.indexOf("term=") !== -1;
	}
	`

	seed := config.Seed{Kind: config.SeedSitemaps, Sitemaps: []string{ts.URL + "/sitemap.xml"}}
	o := New(testCrawlerConfig(), seed, newTestDownloader(t), newTestSink(t), newTestHostFactory(t, src), slog.Default())

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if visitedOut {
		t.Fatal("acceptUrl rejected the non-term= sitemap entry but it was fetched anyway")
	}
}

func TestOrchestrator_FatalDownloadErrorFailsTheRun(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg := testCrawlerConfig()
	cfg.OnDlError = errs.PolicyFail

	seed := config.Seed{Kind: config.SeedPages, Pages: []string{ts.URL + "/"}}
	o := New(cfg, seed, newTestDownloader(t), newTestSink(t), newTestHostFactory(t, linkFollowingScript), slog.Default())

	err := o.Run(context.Background())
	if err == nil {
		t.Fatal("expected a fatal error from a 500 response under PolicyFail")
	}
	if o.State() != StateFailed {
		t.Fatalf("expected StateFailed, got %v", o.State())
	}
}

func TestOrchestrator_SkipAndLogDownloadErrorContinuesTheRun(t *testing.T) {
	var mu sync.Mutex
	secondHit := false

	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	defer ts.Close()

	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		secondHit = true
		mu.Unlock()
		fmt.Fprint(w, `<html><body>ok</body></html>`)
	})

	cfg := testCrawlerConfig()
	cfg.OnDlError = errs.PolicySkipAndLog

	seed := config.Seed{Kind: config.SeedPages, Pages: []string{ts.URL + "/bad", ts.URL + "/good"}}
	o := New(cfg, seed, newTestDownloader(t), newTestSink(t), newTestHostFactory(t, linkFollowingScript), slog.Default())

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if o.State() != StateDone {
		t.Fatalf("expected StateDone despite the skipped 500, got %v", o.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if !secondHit {
		t.Fatal("expected the second seeded page to still be fetched after the first failed")
	}
}
