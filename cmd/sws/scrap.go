package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sws-run/sws/internal/csvsink"
	"github.com/sws-run/sws/internal/downloader"
	"github.com/sws-run/sws/internal/errs"
	"github.com/sws-run/sws/internal/htmldom"
	"github.com/sws-run/sws/internal/record"
	"github.com/sws-run/sws/internal/report"
	"github.com/sws-run/sws/internal/scripthost"
)

// scrapFlags mirrors crawlFlags for the local-file/single-URL mode that
// reuses the script host and CSV sink but bypasses the crawler entirely
// (spec.md's explicit "out of scope... it reuses the same script host
// and CSV sink but bypasses crawling" framing).
type scrapFlags struct {
	scriptPath   string
	url          string
	files        string
	output       string
	appendMode   bool
	truncateMode bool
	numWorkers   int
	onError      string
	quiet        bool
}

func newScrapCmd() *cobra.Command {
	f := &scrapFlags{}
	cmd := &cobra.Command{
		Use:   "scrap",
		Short: "Run scrapPage once against a single URL or a local file glob",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrap(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.scriptPath, "script", "", "path to the extraction script (required)")
	flags.StringVar(&f.url, "url", "", "a single URL to download and scrap")
	flags.StringVar(&f.files, "files", "", "a glob of local HTML files to scrap")
	flags.StringVarP(&f.output, "output", "o", "", "output CSV file path (default: stdout)")
	flags.BoolVar(&f.appendMode, "append", false, "append to an existing output file")
	flags.BoolVar(&f.truncateMode, "truncate", false, "truncate an existing output file")
	flags.IntVar(&f.numWorkers, "num-workers", 1, "number of concurrent scripthost workers for --files")
	flags.StringVar(&f.onError, "on-error", string(errs.PolicySkipAndLog), "skip-and-log|fail: policy for scrapPage errors")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "suppress the end-of-run summary")

	must(cmd.MarkFlagRequired("script"))
	return cmd
}

func runScrap(cmd *cobra.Command, f *scrapFlags) error {
	if (f.url == "") == (f.files == "") {
		return newUsageError("exactly one of --url or --files must be set")
	}
	if f.appendMode && f.truncateMode {
		return newUsageError("--append and --truncate are mutually exclusive")
	}
	policy, err := errs.ParsePolicy(f.onError)
	if err != nil {
		return errs.New(errs.KindConfig, "", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	src, err := os.ReadFile(f.scriptPath)
	if err != nil {
		return errs.New(errs.KindConfig, "", fmt.Errorf("read script: %w", err))
	}
	prog, err := scripthost.Compile(f.scriptPath, string(src))
	if err != nil {
		return err
	}
	newHost := func(workerID string) (*scripthost.Host, error) {
		return scripthost.New(prog, workerID, logger)
	}

	sink, err := openSink(f.output, f.appendMode, f.truncateMode, csvsink.DefaultConfig())
	if err != nil {
		return err
	}

	run := &scrapRun{
		sink:         sink,
		policy:       policy,
		startTime:    time.Now(),
		statusCodes:  map[int]int64{},
		errorsByKind: map[string]int64{},
	}

	var runErr error
	if f.url != "" {
		runErr = run.scrapURL(cmd.Context(), newHost, f.url)
	} else {
		runErr = run.scrapFiles(cmd.Context(), newHost, f.files, f.numWorkers)
	}
	run.endTime = time.Now()

	if closeErr := sink.Close(); closeErr != nil && runErr == nil {
		runErr = errs.New(errs.KindSink, "", closeErr)
	}

	if !f.quiet {
		summary := report.GenerateSummary(run.counters())
		_ = report.WriteText(os.Stderr, summary)
	}

	return runErr
}

// scrapRun accumulates the same Counters a crawler.Orchestrator would,
// so --quiet/text-report behavior matches `crawl` even though there is
// no Orchestrator in this mode.
type scrapRun struct {
	sink   *csvsink.Sink
	policy errs.Policy

	mu             sync.Mutex
	pagesFetched   int64
	recordsEmitted int64
	statusCodes    map[int]int64
	errorsByKind   map[string]int64
	startTime      time.Time
	endTime        time.Time
}

func (r *scrapRun) counters() report.Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return report.Counters{
		PagesFetched:   r.pagesFetched,
		RecordsEmitted: r.recordsEmitted,
		StatusCodes:    r.statusCodes,
		ErrorsByKind:   r.errorsByKind,
		StartTime:      r.startTime,
		EndTime:        r.endTime,
	}
}

func (r *scrapRun) recordError(kind errs.Kind) {
	r.mu.Lock()
	r.errorsByKind[string(kind)]++
	r.mu.Unlock()
}

// scrapURL implements `scrap --url U`: exactly one GET, exactly one
// scrapPage call with pageLocation().kind() == Location.URL, per
// spec.md §8's testable property.
func (r *scrapRun) scrapURL(ctx context.Context, newHost func(string) (*scripthost.Host, error), url string) error {
	dl, err := downloader.New(downloader.Config{})
	if err != nil {
		return errs.New(errs.KindConfig, "", err)
	}
	page, err := dl.Get(ctx, url)
	if err != nil {
		r.recordError(errs.KindDownload)
		return err
	}
	r.mu.Lock()
	r.pagesFetched++
	r.statusCodes[page.StatusCode]++
	r.mu.Unlock()

	host, err := newHost("scrap")
	if err != nil {
		return err
	}
	return r.scrapOne(host, page.Body, scripthost.NewURLLocation(url))
}

// scrapFiles implements `scrap --files GLOB`: each matched file is read
// from disk (no network) and scrapped with pageLocation().kind() ==
// Location.PATH, fanned out across numWorkers goroutines the way the
// crawler's worker pool fans out pages across scripthost.Host instances.
func (r *scrapRun) scrapFiles(parent context.Context, newHost func(string) (*scripthost.Host, error), pattern string, numWorkers int) error {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return errs.New(errs.KindConfig, pattern, err)
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	paths := make(chan string)
	g, ctx := errgroup.WithContext(parent)
	for i := 0; i < numWorkers; i++ {
		workerID := fmt.Sprintf("%d", i)
		g.Go(func() error {
			host, err := newHost(workerID)
			if err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case path, ok := <-paths:
					if !ok {
						return nil
					}
					body, err := os.ReadFile(path)
					if err != nil {
						r.recordError(errs.KindScript)
						if errs.IsFatal(errs.New(errs.KindScript, path, err), r.policy) {
							return err
						}
						continue
					}
					r.mu.Lock()
					r.pagesFetched++
					r.mu.Unlock()
					if err := r.scrapOne(host, body, scripthost.NewPathLocation(path)); err != nil {
						return err
					}
				}
			}
		})
	}

	go func() {
		defer close(paths)
		for _, m := range matches {
			select {
			case paths <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	return g.Wait()
}

func (r *scrapRun) scrapOne(host *scripthost.Host, body []byte, loc scripthost.PageLocation) error {
	html, err := htmldom.Parse(body)
	if err != nil {
		classified := errs.New(errs.KindScript, loc.Get(), err)
		r.recordError(classified.Kind)
		if errs.IsFatal(classified, r.policy) {
			return classified
		}
		return nil
	}

	// sinkErr captures a CSV write failure from inside the onRecord
	// callback, which (like scripthost.OnRecord generally) has no error
	// return of its own to propagate through ScrapPage directly.
	var sinkErr *errs.Error
	onRecord := func(fields []string) {
		if sinkErr != nil {
			return
		}
		rec := record.New()
		for _, fld := range fields {
			rec.PushField(fld)
		}
		if err := r.sink.Write(rec); err != nil {
			sinkErr = errs.New(errs.KindSink, loc.Get(), err)
			return
		}
		r.mu.Lock()
		r.recordsEmitted++
		r.mu.Unlock()
	}
	// scrap mode never enqueues: there is no crawl in progress to feed.
	onURL := func(string) {}

	scrapErr := host.ScrapPage(html, loc, nil, onRecord, onURL)

	if sinkErr != nil {
		// SinkError is always fatal (spec.md §7), matching
		// internal/crawler's scrapOne, which escalates the same way.
		r.recordError(sinkErr.Kind)
		return sinkErr
	}

	if scrapErr != nil {
		classified, ok := errs.As(scrapErr)
		if !ok {
			classified = errs.New(errs.KindScript, loc.Get(), scrapErr)
		}
		r.recordError(classified.Kind)
		if errs.IsFatal(classified, r.policy) {
			return classified
		}
	}
	return nil
}
