package dateutil

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	ts := time.Date(2026, time.March, 5, 14, 30, 0, 0, time.UTC)

	got, err := Format("%Y-%m-%d %H:%M:%S", ts)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if want := "2026-03-05 14:30:00"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestParse(t *testing.T) {
	got, err := Parse("%Y-%m-%d", "2026-03-05")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Parse() = %v, want %v", got, want)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	const layout = "%Y-%m-%d %H:%M:%S"
	ts := time.Date(2025, time.December, 25, 9, 5, 1, 0, time.UTC)

	s, err := Format(layout, ts)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	got, err := Parse(layout, s)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("round-trip = %v, want %v", got, ts)
	}
}

func TestFormat_UnsupportedSpecifier(t *testing.T) {
	if _, err := Format("%Q", time.Now()); err == nil {
		t.Fatalf("expected an error for an unsupported specifier")
	}
}

func TestFormat_TrailingPercent(t *testing.T) {
	if _, err := Format("%Y-%", time.Now()); err == nil {
		t.Fatalf("expected an error for a trailing %%")
	}
}

func TestFormat_LiteralPercent(t *testing.T) {
	got, err := Format("100%%", time.Now())
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if want := "100%"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}
