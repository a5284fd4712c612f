package htmldom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ElemRef is a non-owning handle into an Html; it is valid only during the
// lifetime of the Html that produced it. It carries no pointer of its own —
// only the owning Html and an opaque integer handle — so a script that
// retains an ElemRef past its producing Html's lifetime gets a resolution
// error rather than a dangling reference.
type ElemRef struct {
	html   *Html
	handle int
}

func (e ElemRef) selection() (*goquery.Selection, error) {
	if e.html == nil {
		return nil, fmt.Errorf("htmldom: elemref has no owning document")
	}
	return e.html.resolve(e.handle)
}

// Select compiles sel once and returns a lazy query executor rooted at this
// element.
func (e ElemRef) Select(sel string) (*Select, error) {
	s, err := e.selection()
	if err != nil {
		return nil, err
	}
	s2, err := e.html.Select(sel)
	if err != nil {
		return nil, err
	}
	s2.root = s
	return s2, nil
}

// TagName returns the element's tag name, e.g. "div".
func (e ElemRef) TagName() (string, error) {
	s, err := e.selection()
	if err != nil {
		return "", err
	}
	return goquery.NodeName(s), nil
}

// ID returns the element's id attribute, or "" if absent.
func (e ElemRef) ID() (string, error) {
	s, err := e.selection()
	if err != nil {
		return "", err
	}
	v, _ := s.Attr("id")
	return v, nil
}

// InnerText returns the concatenation of descendant text nodes in document
// order, without re-introducing element boundaries; whitespace is preserved
// as in source.
func (e ElemRef) InnerText() (string, error) {
	s, err := e.selection()
	if err != nil {
		return "", err
	}
	return s.Text(), nil
}

// InnerHTML returns the serialized inner markup.
func (e ElemRef) InnerHTML() (string, error) {
	s, err := e.selection()
	if err != nil {
		return "", err
	}
	h, err := s.Html()
	if err != nil {
		return "", fmt.Errorf("htmldom: inner html: %w", err)
	}
	return h, nil
}

// Attr returns the attribute value and whether it was present.
func (e ElemRef) Attr(name string) (string, bool, error) {
	s, err := e.selection()
	if err != nil {
		return "", false, err
	}
	v, ok := s.Attr(name)
	return v, ok, nil
}

// Attrs returns every attribute on the element's first node.
func (e ElemRef) Attrs() (map[string]string, error) {
	s, err := e.selection()
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	if s.Length() == 0 {
		return out, nil
	}
	for _, a := range s.Get(0).Attr {
		out[a.Key] = a.Val
	}
	return out, nil
}

// Classes returns the split class tokens.
func (e ElemRef) Classes() ([]string, error) {
	v, ok, err := e.Attr("class")
	if err != nil || !ok || v == "" {
		return nil, err
	}
	return strings.Fields(v), nil
}

// HasClass reports whether c is a member of the class set.
func (e ElemRef) HasClass(c string) (bool, error) {
	s, err := e.selection()
	if err != nil {
		return false, err
	}
	return s.HasClass(c), nil
}
