// Package htmldom implements the HTML Model & Selector Engine: an
// immutable parsed document, CSS selector compilation, and handle-based
// element references that are safe to hand to a scripting runtime.
//
// Grounded on github.com/PuerkitoBio/goquery (and its underlying
// github.com/andybalholm/cascadia CSS engine), the same library the
// teacher and the rest of the retrieved pack (ScrapeGoat, docs-crawler)
// use for DOM traversal.
package htmldom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Html is an immutable parsed document owned for the scope of one
// scrapPage invocation. It owns a handle table mapping opaque integer
// handles to *goquery.Selection nodes so that ElemRef values handed to a
// script never carry a raw pointer into the parse tree.
type Html struct {
	doc     *goquery.Document
	handles []*goquery.Selection
}

// Parse builds an Html from raw bytes. Encoding is assumed UTF-8;
// goquery/golang.org/x/net/html is best-effort on other encodings.
func Parse(body []byte) (*Html, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	return &Html{doc: doc}, nil
}

// intern records a selection and returns a stable handle for it.
func (h *Html) intern(sel *goquery.Selection) ElemRef {
	h.handles = append(h.handles, sel)
	return ElemRef{html: h, handle: len(h.handles) - 1}
}

func (h *Html) resolve(handle int) (*goquery.Selection, error) {
	if handle < 0 || handle >= len(h.handles) {
		return nil, fmt.Errorf("htmldom: invalid element handle %d", handle)
	}
	return h.handles[handle], nil
}

// Select compiles sel once and returns a lazy query executor rooted at
// the document.
func (h *Html) Select(sel string) (*Select, error) {
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("htmldom: invalid selector %q: %w", sel, err)
	}
	return &Select{html: h, root: h.doc.Selection, compiled: compiled}, nil
}

// Root returns a handle-based ElemRef for the document node (the parent of
// the <html> element), for callers that want to navigate from the top
// without a selector.
func (h *Html) Root() ElemRef {
	return h.intern(h.doc.Selection)
}
