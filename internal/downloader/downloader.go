// Package downloader implements the crawler's GET-only page and sitemap
// fetcher (spec.md §5): single configured User-Agent, no cookies, no auth,
// a mandatory per-download timeout, and errs.KindDownload classification
// of failures. Grounded on burr's internal/scraper/fetcher.go, stripped of
// proxy rotation, UA rotation, fingerprinting, and bypass detection (all
// out of scope per spec.md's GET-only/no-auth downloader contract).
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sws-run/sws/internal/errs"
	"github.com/sws-run/sws/pkg/httpclient"
)

// Config configures the Downloader.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
}

// Page is the result of a single successful download.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Downloader performs GET requests with a fixed User-Agent and no cookie
// jar, classifying failures as errs.KindDownload.
type Downloader struct {
	userAgent string
	client    *httpclient.Client
}

// New builds a Downloader from Config, defaulting Timeout to 30s.
func New(cfg Config) (*Downloader, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "sws/1.0"
	}
	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
	})
	if err != nil {
		return nil, fmt.Errorf("downloader: %w", err)
	}
	return &Downloader{userAgent: cfg.UserAgent, client: client}, nil
}

// Get fetches targetURL, returning a classified errs.Error of kind
// errs.KindDownload on any failure (request construction, network, or a
// non-2xx status).
func (d *Downloader) Get(ctx context.Context, targetURL string) (*Page, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, errs.New(errs.KindDownload, targetURL, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml,*/*;q=0.8")

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return nil, errs.New(errs.KindDownload, targetURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.KindDownload, targetURL, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.New(errs.KindDownload, targetURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	return &Page{
		URL:        targetURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}
