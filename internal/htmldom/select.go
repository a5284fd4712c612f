package htmldom

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Select is a lazy query executor over an Html or ElemRef plus a compiled
// selector; iterating yields ElemRefs in document order.
type Select struct {
	html     *Html
	root     *goquery.Selection
	compiled cascadia.Sel
}

func (s *Select) matches() *goquery.Selection {
	return s.root.FindMatcher(s.compiled)
}

// Iter yields the matched ElemRefs in document order, without indices.
func (s *Select) Iter() []ElemRef {
	matched := s.matches()
	refs := make([]ElemRef, 0, matched.Length())
	matched.Each(func(_ int, sel *goquery.Selection) {
		refs = append(refs, s.html.intern(sel))
	})
	return refs
}

// IndexedElemRef pairs a 1-based position with the ElemRef at that
// position, as produced by Enumerate.
type IndexedElemRef struct {
	Index int
	Elem  ElemRef
}

// Enumerate yields 1-based indices paired with the ElemRef, matching the
// indices user scripts observe (spec.md §4.1, §8).
func (s *Select) Enumerate() []IndexedElemRef {
	refs := s.Iter()
	out := make([]IndexedElemRef, len(refs))
	for i, r := range refs {
		out[i] = IndexedElemRef{Index: i + 1, Elem: r}
	}
	return out
}

// Len reports the number of matches without building ElemRefs.
func (s *Select) Len() int {
	return s.matches().Length()
}

// First returns the first match, if any.
func (s *Select) First() (ElemRef, bool) {
	refs := s.Iter()
	if len(refs) == 0 {
		return ElemRef{}, false
	}
	return refs[0], true
}
