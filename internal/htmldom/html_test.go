package htmldom

import "testing"

const sampleHTML = `<html><body>
<section class="definition" id="d1"><p>first</p></section>
<section class="definition" id="d2"><p>second</p></section>
<section class="other" id="d3"><p>third</p></section>
</body></html>`

func TestSelect_IterDocumentOrder(t *testing.T) {
	h, err := Parse([]byte(sampleHTML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	sel, err := h.Select("section.definition")
	if err != nil {
		t.Fatalf("select: %v", err)
	}

	refs := sel.Iter()
	if len(refs) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(refs))
	}

	id0, err := refs[0].ID()
	if err != nil || id0 != "d1" {
		t.Errorf("expected first match id d1, got %q (err=%v)", id0, err)
	}
	id1, err := refs[1].ID()
	if err != nil || id1 != "d2" {
		t.Errorf("expected second match id d2, got %q (err=%v)", id1, err)
	}
}

func TestSelect_EnumerateIsOneBased(t *testing.T) {
	h, err := Parse([]byte(sampleHTML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	sel, err := h.Select("section")
	if err != nil {
		t.Fatalf("select: %v", err)
	}

	indexed := sel.Enumerate()
	if len(indexed) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(indexed))
	}
	for i, entry := range indexed {
		if entry.Index != i+1 {
			t.Errorf("expected contiguous 1-based index at position %d, got %d", i, entry.Index)
		}
	}
}

func TestElemRef_InnerTextAndClasses(t *testing.T) {
	h, err := Parse([]byte(sampleHTML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sel, err := h.Select("#d1")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	ref, ok := sel.First()
	if !ok {
		t.Fatalf("expected a match for #d1")
	}

	text, err := ref.InnerText()
	if err != nil || text != "first" {
		t.Errorf("expected inner text %q, got %q (err=%v)", "first", text, err)
	}

	has, err := ref.HasClass("definition")
	if err != nil || !has {
		t.Errorf("expected #d1 to have class definition")
	}
}

func TestElemRef_Attr(t *testing.T) {
	h, err := Parse([]byte(sampleHTML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sel, err := h.Select("#d1")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	ref, ok := sel.First()
	if !ok {
		t.Fatalf("expected a match for #d1")
	}

	v, present, err := ref.Attr("id")
	if err != nil || !present || v != "d1" {
		t.Errorf("expected id=d1 present, got %q present=%v (err=%v)", v, present, err)
	}

	v, present, err = ref.Attr("data-missing")
	if err != nil || present || v != "" {
		t.Errorf("expected data-missing to be absent, got %q present=%v (err=%v)", v, present, err)
	}
}

func TestHtml_Select_InvalidSelectorIsError(t *testing.T) {
	h, err := Parse([]byte(sampleHTML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := h.Select(":::not-a-selector"); err == nil {
		t.Fatal("expected an error for an invalid selector")
	}
}

func TestSelect_EmptyMatchIsNotAnError(t *testing.T) {
	h, err := Parse([]byte(sampleHTML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sel, err := h.Select("section.nonexistent")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := sel.Len(); got != 0 {
		t.Errorf("expected 0 matches, got %d", got)
	}
}
