package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sws-run/sws/internal/config"
	"github.com/sws-run/sws/internal/crawler"
	"github.com/sws-run/sws/internal/csvsink"
	"github.com/sws-run/sws/internal/downloader"
	"github.com/sws-run/sws/internal/errs"
	"github.com/sws-run/sws/internal/report"
	"github.com/sws-run/sws/internal/scripthost"
)

// crawlFlags holds one invocation's --flag values, captured by the
// RunE closure rather than package-level vars so a test can construct
// the command fresh without cross-test state bleeding through.
type crawlFlags struct {
	scriptPath   string
	output       string
	appendMode   bool
	truncateMode bool
	quiet        bool
	userAgent    string
	pageBuffer   int
	concDL       int
	rps          int
	delay        time.Duration
	numWorkers   int
	onDlError    string
	onXMLError   string
	onScrapError string
	robotURL     string
}

func newCrawlCmd() *cobra.Command {
	f := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run the crawl pipeline from a sitemap/page/robots.txt seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.scriptPath, "script", "", "path to the extraction script (required)")
	flags.StringVarP(&f.output, "output", "o", "", "output CSV file path (default: stdout)")
	flags.BoolVar(&f.appendMode, "append", false, "append to an existing output file")
	flags.BoolVar(&f.truncateMode, "truncate", false, "truncate an existing output file")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "suppress the end-of-run summary")
	flags.StringVar(&f.userAgent, "user-agent", "", "User-Agent sent with every download")
	flags.IntVar(&f.pageBuffer, "page-buffer", 0, "bounded page-queue capacity")
	flags.IntVar(&f.concDL, "conc-dl", 0, "Concurrent(n) throttle: at most n downloads in flight")
	flags.IntVar(&f.rps, "rps", 0, "PerSecond(n) throttle: at most n downloads per second")
	flags.DurationVar(&f.delay, "delay", 0, "Delay(d) throttle: serialize downloads with a fixed gap")
	flags.IntVar(&f.numWorkers, "num-workers", 0, "number of script-host worker goroutines")
	flags.StringVar(&f.onDlError, "on-dl-error", "", "skip-and-log|fail: policy for download errors")
	flags.StringVar(&f.onXMLError, "on-xml-error", "", "skip-and-log|fail: policy for sitemap XML errors")
	flags.StringVar(&f.onScrapError, "on-scrap-error", "", "skip-and-log|fail: policy for scrapPage errors")
	flags.StringVar(&f.robotURL, "robot", "", "robots.txt URL to resolve before crawling")

	must(cmd.MarkFlagRequired("script"))
	return cmd
}

func runCrawl(cmd *cobra.Command, f *crawlFlags) error {
	if f.appendMode && f.truncateMode {
		return newUsageError("--append and --truncate are mutually exclusive")
	}
	throttleFlags := 0
	for _, set := range []bool{cmd.Flags().Changed("conc-dl"), cmd.Flags().Changed("rps"), cmd.Flags().Changed("delay")} {
		if set {
			throttleFlags++
		}
	}
	if throttleFlags > 1 {
		return newUsageError("only one of --conc-dl, --rps, --delay may be set")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

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

	initHost, err := newHost("init")
	if err != nil {
		return err
	}
	seed, err := initHost.ReadSeed()
	if err != nil {
		return err
	}
	scriptOverlay, err := initHost.ReadCrawlerConfigOverlay()
	if err != nil {
		return err
	}
	csvScriptOverlay, err := initHost.ReadCsvWriterConfigOverlay()
	if err != nil {
		return err
	}

	cliOverlay, err := f.crawlerOverlay(cmd)
	if err != nil {
		return err
	}

	cfg := config.ApplyOverlay(config.DefaultCrawlerConfig(), scriptOverlay)
	cfg = config.ApplyOverlay(cfg, cliOverlay)

	csvCfg := config.ApplyCsvOverlay(config.DefaultCsvWriterConfig(), csvScriptOverlay)

	if err := config.Validate(cfg, seed); err != nil {
		return err
	}

	sink, err := openSink(f.output, f.appendMode, f.truncateMode, csvCfg)
	if err != nil {
		return err
	}

	dl, err := downloader.New(downloader.Config{UserAgent: cfg.UserAgent})
	if err != nil {
		return errs.New(errs.KindConfig, "", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	o := crawler.New(cfg, seed, dl, sink, newHost, logger)
	runErr := o.Run(ctx)

	if !f.quiet {
		summary := report.GenerateSummary(o.Stats())
		_ = report.WriteText(os.Stderr, summary)
	}

	return runErr
}

// crawlerOverlay builds the CLI layer of the defaults ≺ script globals ≺
// CLI overrides merge (spec.md §4.7), using cmd.Flags().Changed so an
// unset flag never clobbers a value the script already set.
func (f *crawlFlags) crawlerOverlay(cmd *cobra.Command) (config.CrawlerConfigOverlay, error) {
	var overlay config.CrawlerConfigOverlay
	flags := cmd.Flags()

	if flags.Changed("user-agent") {
		overlay.UserAgent = &f.userAgent
	}
	if flags.Changed("page-buffer") {
		overlay.PageBuffer = &f.pageBuffer
	}
	if flags.Changed("num-workers") {
		overlay.NumWorkers = &f.numWorkers
	}
	if flags.Changed("robot") {
		overlay.RobotURL = &f.robotURL
	}

	switch {
	case flags.Changed("conc-dl"):
		overlay.Throttle = &config.Throttle{Kind: config.ThrottleConcurrent, N: f.concDL}
	case flags.Changed("rps"):
		overlay.Throttle = &config.Throttle{Kind: config.ThrottlePerSecond, N: f.rps}
	case flags.Changed("delay"):
		overlay.Throttle = &config.Throttle{Kind: config.ThrottleDelay, Delay: f.delay}
	}

	if flags.Changed("on-dl-error") {
		p, err := errs.ParsePolicy(f.onDlError)
		if err != nil {
			return overlay, errs.New(errs.KindConfig, "", err)
		}
		overlay.OnDlError = &p
	}
	if flags.Changed("on-xml-error") {
		p, err := errs.ParsePolicy(f.onXMLError)
		if err != nil {
			return overlay, errs.New(errs.KindConfig, "", err)
		}
		overlay.OnXmlError = &p
	}
	if flags.Changed("on-scrap-error") {
		p, err := errs.ParsePolicy(f.onScrapError)
		if err != nil {
			return overlay, errs.New(errs.KindConfig, "", err)
		}
		overlay.OnScrapError = &p
	}

	return overlay, nil
}

// openSink builds the CSV Sink for either stdout or a file target, per
// spec.md §4.2's create-new/append/truncate output-mode contract.
func openSink(path string, appendMode, truncateMode bool, cfg csvsink.Config) (*csvsink.Sink, error) {
	if path == "" {
		return csvsink.NewStdout(cfg), nil
	}
	mode := csvsink.ModeCreateNew
	switch {
	case appendMode:
		mode = csvsink.ModeAppend
	case truncateMode:
		mode = csvsink.ModeTruncate
	}
	sink, err := csvsink.NewFile(path, mode, cfg)
	if err != nil {
		return nil, errs.New(errs.KindConfig, path, err)
	}
	return sink, nil
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
