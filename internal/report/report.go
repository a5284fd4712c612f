// Package report renders the end-of-run summary for a crawl or scrap
// invocation: pages fetched, records emitted, and errors grouped by the
// errs.Kind taxonomy. Grounded on the teacher's internal/report, with its
// per-ScrapeResult aggregation replaced by the orchestrator's own running
// counters (there is no stored result slice to scan after the fact — the
// CSV Sink is the only record of what was emitted, per spec.md's
// streaming dataflow), and its bot-detection fields dropped (out of
// scope for this spec).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"
)

// Counters is the running tally a crawler.Orchestrator (or a scrap-mode
// run) accumulates over its lifetime. It is exported here, rather than
// defined in internal/crawler, so that both crawl and scrap modes can
// report through the same shape.
type Counters struct {
	PagesFetched   int64
	RecordsEmitted int64
	StatusCodes    map[int]int64
	ErrorsByKind   map[string]int64
	StartTime      time.Time
	EndTime        time.Time
}

// Summary is Counters plus the derived totals the templates render.
type Summary struct {
	PagesFetched   int64
	RecordsEmitted int64
	TotalErrors    int64
	StatusCodes    map[int]int64
	ErrorsByKind   map[string]int64
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

// GenerateSummary derives a Summary from the counters a run accumulated.
func GenerateSummary(c Counters) Summary {
	s := Summary{
		PagesFetched:   c.PagesFetched,
		RecordsEmitted: c.RecordsEmitted,
		StatusCodes:    c.StatusCodes,
		ErrorsByKind:   c.ErrorsByKind,
		StartTime:      c.StartTime,
		EndTime:        c.EndTime,
	}
	if s.StatusCodes == nil {
		s.StatusCodes = map[int]int64{}
	}
	if s.ErrorsByKind == nil {
		s.ErrorsByKind = map[string]int64{}
	}
	for _, n := range s.ErrorsByKind {
		s.TotalErrors += n
	}
	if !s.EndTime.Before(s.StartTime) {
		s.Duration = s.EndTime.Sub(s.StartTime)
	}
	return s
}

// WriteJSON writes the summary to w in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to w.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `sws run summary
---------------
Time:            {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:        {{.Duration}}
Pages fetched:   {{.PagesFetched}}
Records emitted: {{.RecordsEmitted}}
Total errors:    {{.TotalErrors}}

Status codes:
{{- range $code, $count := .StatusCodes}}
  {{$code}}: {{$count}}
{{- else}}
  None
{{- end}}

Errors by kind:
{{- range $kind, $count := .ErrorsByKind}}
  {{$kind}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
