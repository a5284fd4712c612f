package csvsink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sws-run/sws/internal/record"
)

func mkRecord(fields ...string) *record.Record {
	r := record.New()
	for _, f := range fields {
		r.PushField(f)
	}
	return r
}

func TestSink_WritesRowsInOrder(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.csv")

	s, err := NewFile(path, ModeCreateNew, DefaultConfig())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	if err := s.Write(mkRecord("a", "1")); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if err := s.Write(mkRecord("b", "2")); err != nil {
		t.Fatalf("write 2: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "a,1\nb,2\n"
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSink_QuotesFieldsContainingDelimiter(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.csv")

	s, err := NewFile(path, ModeCreateNew, DefaultConfig())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := s.Write(mkRecord("hello, world", `say "hi"`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, _ := os.ReadFile(path)
	want := `"hello, world","say ""hi"""` + "\n"
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSink_FlexibleFalseRejectsMismatchedRowCounts(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.csv")

	cfg := DefaultConfig()
	cfg.Flexible = false
	s, err := NewFile(path, ModeCreateNew, cfg)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer s.Close()

	if err := s.Write(mkRecord("a", "b")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := s.Write(mkRecord("only-one")); err == nil {
		t.Fatal("expected an error for a mismatched field count")
	}
}

func TestSink_FlexibleTrueAllowsMismatchedRowCounts(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.csv")

	cfg := DefaultConfig()
	cfg.Flexible = true
	s, err := NewFile(path, ModeCreateNew, cfg)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer s.Close()

	if err := s.Write(mkRecord("a", "b")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := s.Write(mkRecord("only-one")); err != nil {
		t.Fatalf("expected flexible=true to allow a shorter row: %v", err)
	}
}

func TestSink_CRLFTerminator(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.csv")

	cfg := DefaultConfig()
	cfg.Terminator = Terminator{CRLF: true}
	s, err := NewFile(path, ModeCreateNew, cfg)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := s.Write(mkRecord("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "a\r\n" {
		t.Errorf("got %q, want %q", got, "a\r\n")
	}
}

func TestNewFile_CreateNewFailsIfExists(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.csv")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := NewFile(path, ModeCreateNew, DefaultConfig()); err == nil {
		t.Fatal("expected ModeCreateNew to fail against an existing file")
	}
}
