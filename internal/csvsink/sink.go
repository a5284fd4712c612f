// Package csvsink implements the CSV Sink: a single serialized writer
// consuming dynamic Records from all workers.
//
// Grounded on the teacher's internal/storage/csvbackend, generalized from
// a fixed ScrapeResult row shape to dynamic record.Record rows. Go's
// encoding/csv.Writer only exposes a Comma rune and a UseCRLF bool — it has
// no knob for a configurable escape character independent of the quote
// character, and no pack dependency fills that gap either, so field
// quoting here is hand-rolled against the RFC 4180 shape instead of
// wrapping encoding/csv.
package csvsink

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sws-run/sws/internal/record"
)

// Terminator selects the line ending written after each row.
type Terminator struct {
	CRLF bool
	Any  rune // used when CRLF is false; default '\n'
}

// Config holds the CSV Sink's tunables (spec.md §4.2).
type Config struct {
	Delimiter  rune
	Escape     rune
	Flexible   bool
	Terminator Terminator
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Delimiter:  ',',
		Escape:     '"',
		Flexible:   false,
		Terminator: Terminator{Any: '\n'},
	}
}

// OutputMode selects how a file-backed sink's target is opened. It has no
// meaning for stdout targets.
type OutputMode int

const (
	ModeCreateNew OutputMode = iota
	ModeAppend
	ModeTruncate
)

// Sink is a single serialized writer consuming Records from any worker.
type Sink struct {
	cfg        Config
	mu         sync.Mutex
	w          *bufio.Writer
	closer     func() error
	fieldCount int
	wroteRows  bool
}

// NewStdout creates a Sink writing to stdout, which is never closed.
func NewStdout(cfg Config) *Sink {
	return &Sink{
		cfg:    cfg,
		w:      bufio.NewWriter(os.Stdout),
		closer: func() error { return nil },
	}
}

// NewFile creates a Sink writing to path, opened per mode. ModeCreateNew
// fails if path already exists; ModeAppend and ModeTruncate are mutually
// exclusive per spec.md §4.2 and are enforced by the caller (CLI layer),
// not here.
func NewFile(path string, mode OutputMode, cfg Config) (*Sink, error) {
	var flags int
	switch mode {
	case ModeCreateNew:
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	case ModeAppend:
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case ModeTruncate:
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	default:
		return nil, fmt.Errorf("csvsink: unknown output mode %v", mode)
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvsink: open %s: %w", path, err)
	}

	return &Sink{
		cfg:    cfg,
		w:      bufio.NewWriter(f),
		closer: f.Close,
	}, nil
}

// Write appends rec in arrival order. Records are serialized behind a
// mutex so writes from concurrent workers never interleave mid-row.
func (s *Sink) Write(rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := rec.Fields()

	if !s.cfg.Flexible {
		if !s.wroteRows {
			s.fieldCount = len(fields)
		} else if len(fields) != s.fieldCount {
			return fmt.Errorf("csvsink: row has %d fields, expected %d (flexible=false)", len(fields), s.fieldCount)
		}
	}

	var line strings.Builder
	for i, f := range fields {
		if i > 0 {
			line.WriteRune(s.cfg.Delimiter)
		}
		s.writeField(&line, f)
	}
	if s.cfg.Terminator.CRLF {
		line.WriteString("\r\n")
	} else {
		line.WriteRune(s.cfg.Terminator.Any)
	}

	if _, err := s.w.WriteString(line.String()); err != nil {
		return fmt.Errorf("csvsink: write: %w", err)
	}
	s.wroteRows = true
	return nil
}

// writeField quotes f iff it contains the delimiter, the escape rune, or a
// newline, doubling any embedded escape runes, matching RFC 4180 quoting
// with a configurable escape character in place of a fixed '"'.
func (s *Sink) writeField(b *strings.Builder, f string) {
	needsQuote := strings.ContainsRune(f, s.cfg.Delimiter) ||
		strings.ContainsRune(f, s.cfg.Escape) ||
		strings.ContainsAny(f, "\r\n")
	if !needsQuote {
		b.WriteString(f)
		return
	}
	b.WriteRune(s.cfg.Escape)
	for _, r := range f {
		if r == s.cfg.Escape {
			b.WriteRune(s.cfg.Escape)
		}
		b.WriteRune(r)
	}
	b.WriteRune(s.cfg.Escape)
}

// Flush flushes buffered output without closing the underlying target.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// Close flushes and releases the sink's resources. Partial rows are never
// written: Write only ever appends whole lines, so any error from Write
// leaves no trailing partial row in the buffer.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("csvsink: flush: %w", err)
	}
	return s.closer()
}
