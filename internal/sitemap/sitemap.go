// Package sitemap implements the Sitemap Traverser: streams XML sitemaps
// (plain or gzipped), classifies each document as INDEX or URL_SET, and
// recursively expands INDEX entries into candidate page URLs filtered by
// acceptUrl and an optional Robot (spec.md §4.4).
//
// Grounded on the teacher's internal/scraper/sitemap.go
// (github.com/oxffaa/gopher-parse-sitemap), restructured to classify the
// document up front from its root element instead of the teacher's
// try-urlset-then-try-index fallback, and extended with gzip support via
// the standard library's compress/gzip — no sitemap-aware gzip library
// exists anywhere in the retrieved pack, so that one piece is stdlib.
package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strings"

	sitemaplib "github.com/oxffaa/gopher-parse-sitemap"

	"github.com/sws-run/sws/internal/errs"
	"github.com/sws-run/sws/internal/robots"
)

// Kind is the sitemap document shape, determined by its XML root element.
type Kind string

const (
	KindIndex  Kind = "index"
	KindURLSet Kind = "url_set"
)

// FetchFunc retrieves the raw bytes of a sitemap document.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// AcceptFunc is the user script's acceptUrl callback. A nil AcceptFunc
// accepts every URL, per spec.md §4.3/§8.
type AcceptFunc func(loc string, kind Kind) (bool, error)

// SeenSet prevents duplicate enqueue/recursion within one run. It is
// shared between sitemap URLs and page URLs, per spec.md §9, to make
// cyclic sitemaps safe.
type SeenSet interface {
	MarkIfNew(s string) bool
}

// Traverser walks sitemap documents emitting candidate page URLs.
type Traverser struct {
	Fetch      FetchFunc
	Accept     AcceptFunc
	Seen       SeenSet
	Robot      *robots.Robot // optional
	OnXMLError errs.Policy
	Logger     *slog.Logger
	// Emit is called once per accepted, in-scope, not-yet-seen page URL,
	// in depth-first document order.
	Emit func(pageURL string)
}

// Traverse fetches sitemapURL, classifies it, and recursively expands it,
// calling emit once per accepted, in-scope, not-yet-seen page URL, in
// depth-first document order. A malformed or unknown-root document is
// classified as errs.KindXML and handled per t.OnXMLError: skip-and-log
// swallows the error (the run continues with whatever else there is to
// crawl); fail propagates it to the caller.
func (t *Traverser) Traverse(ctx context.Context, sitemapURL string) error {
	if !t.Seen.MarkIfNew(sitemapURL) {
		return nil // already visited or currently being visited: cycle guard
	}

	body, err := t.Fetch(ctx, sitemapURL)
	if err != nil {
		return t.handleXMLError(sitemapURL, fmt.Errorf("fetch: %w", err))
	}

	decoded, err := maybeGunzip(sitemapURL, body)
	if err != nil {
		return t.handleXMLError(sitemapURL, fmt.Errorf("gunzip: %w", err))
	}

	kind, err := classify(decoded)
	if err != nil {
		return t.handleXMLError(sitemapURL, err)
	}

	switch kind {
	case KindIndex:
		return t.traverseIndex(ctx, sitemapURL, decoded)
	case KindURLSet:
		return t.traverseURLSet(sitemapURL, decoded)
	default:
		return t.handleXMLError(sitemapURL, fmt.Errorf("unknown sitemap kind %q", kind))
	}
}

func (t *Traverser) traverseIndex(ctx context.Context, sitemapURL string, body []byte) error {
	var locs []string
	err := sitemaplib.ParseIndex(bytes.NewReader(body), func(e sitemaplib.IndexEntry) error {
		locs = append(locs, e.GetLocation())
		return nil
	})
	if err != nil {
		return t.handleXMLError(sitemapURL, fmt.Errorf("parse index: %w", err))
	}

	for _, loc := range locs {
		accepted, err := t.accept(loc, KindIndex)
		if err != nil {
			t.Logger.Warn("acceptUrl failed for nested sitemap, rejecting", "url", loc, "err", err)
			continue
		}
		if !accepted {
			continue
		}
		if err := t.Traverse(ctx, loc); err != nil {
			return err
		}
	}
	return nil
}

func (t *Traverser) traverseURLSet(sitemapURL string, body []byte) error {
	var locs []string
	err := sitemaplib.Parse(bytes.NewReader(body), func(e sitemaplib.Entry) error {
		locs = append(locs, e.GetLocation())
		return nil
	})
	if err != nil {
		return t.handleXMLError(sitemapURL, fmt.Errorf("parse urlset: %w", err))
	}

	for _, loc := range locs {
		accepted, err := t.accept(loc, KindURLSet)
		if err != nil {
			t.Logger.Warn("acceptUrl failed for page url, rejecting", "url", loc, "err", err)
			continue
		}
		if !accepted {
			continue
		}
		if t.Robot != nil && !t.Robot.Allowed(loc) {
			continue
		}
		if !t.Seen.MarkIfNew(loc) {
			continue
		}
		t.Emit(loc)
	}
	return nil
}

func (t *Traverser) accept(loc string, kind Kind) (bool, error) {
	if t.Accept == nil {
		return true, nil
	}
	return t.Accept(loc, kind)
}

func (t *Traverser) handleXMLError(url string, cause error) error {
	classified := errs.New(errs.KindXML, url, cause)
	if t.OnXMLError == errs.PolicyFail {
		return classified
	}
	t.Logger.Warn("sitemap error, skipping", "url", url, "err", cause)
	return nil
}

// classify peeks the document's root element to determine its Kind,
// without fully decoding it, so an XmlError for an unknown root is raised
// deterministically rather than inferred from two failed parse attempts.
func classify(body []byte) (Kind, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", fmt.Errorf("sitemap: empty or malformed xml document")
		}
		if err != nil {
			return "", fmt.Errorf("sitemap: malformed xml: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch strings.ToLower(se.Name.Local) {
		case "sitemapindex":
			return KindIndex, nil
		case "urlset":
			return KindURLSet, nil
		default:
			return "", fmt.Errorf("sitemap: unknown root element <%s>", se.Name.Local)
		}
	}
}

// maybeGunzip decompresses body if sitemapURL ends in .gz or body starts
// with the gzip magic number, streaming the decode rather than shelling
// out to a whole-buffer decompressor.
func maybeGunzip(sitemapURL string, body []byte) ([]byte, error) {
	looksGzipped := strings.HasSuffix(sitemapURL, ".gz") ||
		(len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b)
	if !looksGzipped {
		return body, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sitemap: gzip: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sitemap: gzip read: %w", err)
	}
	return out, nil
}
