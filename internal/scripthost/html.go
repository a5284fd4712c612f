package scripthost

import (
	"github.com/sws-run/sws/internal/htmldom"
)

// boundHTML, boundSelect and boundElem wrap the corresponding htmldom
// types with a captured generation number, checked against the owning
// Host before every method call. A script that stashes one of these in a
// global and reads it from a later invocation gets a "use of expired
// handle" error instead of silently reading (or racing on) a previous
// page's parse tree.
type boundHTML struct {
	host  *Host
	gen   int
	inner *htmldom.Html
}

func (b *boundHTML) check() error { return b.host.checkGeneration(b.gen) }

func (b *boundHTML) Select(sel string) (*boundSelect, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	s, err := b.inner.Select(sel)
	if err != nil {
		return nil, err
	}
	return &boundSelect{host: b.host, gen: b.gen, inner: s}, nil
}

func (b *boundHTML) Root() (*boundElem, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return &boundElem{host: b.host, gen: b.gen, inner: b.inner.Root()}, nil
}

type boundSelect struct {
	host  *Host
	gen   int
	inner *htmldom.Select
}

func (b *boundSelect) check() error { return b.host.checkGeneration(b.gen) }

func (b *boundSelect) Iter() ([]*boundElem, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	refs := b.inner.Iter()
	out := make([]*boundElem, len(refs))
	for i, r := range refs {
		out[i] = &boundElem{host: b.host, gen: b.gen, inner: r}
	}
	return out, nil
}

// indexedElem is the JS-visible shape yielded by Select.Enumerate(): an
// object with `index` (1-based) and `elem` fields.
type indexedElem struct {
	Index int
	Elem  *boundElem
}

func (b *boundSelect) Enumerate() ([]indexedElem, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	pairs := b.inner.Enumerate()
	out := make([]indexedElem, len(pairs))
	for i, p := range pairs {
		out[i] = indexedElem{Index: p.Index, Elem: &boundElem{host: b.host, gen: b.gen, inner: p.Elem}}
	}
	return out, nil
}

func (b *boundSelect) Len() (int, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	return b.inner.Len(), nil
}

func (b *boundSelect) First() (*boundElem, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	e, ok := b.inner.First()
	if !ok {
		return nil, nil
	}
	return &boundElem{host: b.host, gen: b.gen, inner: e}, nil
}

type boundElem struct {
	host  *Host
	gen   int
	inner htmldom.ElemRef
}

func (b *boundElem) check() error { return b.host.checkGeneration(b.gen) }

func (b *boundElem) Select(sel string) (*boundSelect, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	s, err := b.inner.Select(sel)
	if err != nil {
		return nil, err
	}
	return &boundSelect{host: b.host, gen: b.gen, inner: s}, nil
}

func (b *boundElem) TagName() (string, error) {
	if err := b.check(); err != nil {
		return "", err
	}
	return b.inner.TagName()
}

// Id returns the element's id attribute, named to map to the script
// surface's lowerCamelCase `id()` (see spec.md §4.1) under goja's
// uncap field-name mapper.
func (b *boundElem) Id() (string, error) {
	if err := b.check(); err != nil {
		return "", err
	}
	return b.inner.ID()
}

func (b *boundElem) InnerText() (string, error) {
	if err := b.check(); err != nil {
		return "", err
	}
	return b.inner.InnerText()
}

// InnerHtml is named (rather than InnerHTML) so goja's uncap field-name
// mapper produces the script surface's `innerHtml()`, per spec.md §4.1.
func (b *boundElem) InnerHtml() (string, error) {
	if err := b.check(); err != nil {
		return "", err
	}
	return b.inner.InnerHTML()
}

// Attr returns the attribute value, or goja's null if the attribute is
// absent, so scripts can tell "not set" apart from "set to the empty
// string" per spec.md §4.1.
func (b *boundElem) Attr(name string) (interface{}, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	v, ok, err := b.inner.Attr(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (b *boundElem) Attrs() (map[string]string, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return b.inner.Attrs()
}

func (b *boundElem) Classes() ([]string, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return b.inner.Classes()
}

func (b *boundElem) HasClass(c string) (bool, error) {
	if err := b.check(); err != nil {
		return false, err
	}
	return b.inner.HasClass(c)
}
