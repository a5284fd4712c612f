// Package crawler implements the Crawler Orchestrator: the top-level
// Seeding -> Crawling -> Draining -> Done|Failed state machine that fans
// out downloads under a Throttler, feeds a bounded page queue, and
// distributes pages to a worker pool running the Script Host (spec.md
// §4.6).
//
// Grounded on the teacher's internal/scraper/crawler.go BFS crawler: its
// job/queue/jobsWg pattern is kept as the shape of the URL queue and
// quiescence detection, generalized from a single fetch-save-extract
// stage into the spec's two concurrent stages (download, then
// script-host worker) and extended with an atomic in-flight counter
// alongside the WaitGroup so quiescence is observable without blocking
// (needed to sequence the CSV flush).
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sws-run/sws/internal/config"
	"github.com/sws-run/sws/internal/csvsink"
	"github.com/sws-run/sws/internal/downloader"
	"github.com/sws-run/sws/internal/errs"
	"github.com/sws-run/sws/internal/htmldom"
	"github.com/sws-run/sws/internal/metrics"
	"github.com/sws-run/sws/internal/record"
	"github.com/sws-run/sws/internal/report"
	"github.com/sws-run/sws/internal/robots"
	"github.com/sws-run/sws/internal/scripthost"
	"github.com/sws-run/sws/internal/seenset"
	"github.com/sws-run/sws/internal/sitemap"
	"github.com/sws-run/sws/internal/throttle"
)

// State is the orchestrator's top-level run state (spec.md §4.6).
type State int

const (
	StateSeeding State = iota
	StateCrawling
	StateDraining
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSeeding:
		return "seeding"
	case StateCrawling:
		return "crawling"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// downloadedPage is one entry on the bounded page queue between the
// download stage and the worker pool.
type downloadedPage struct {
	url  string
	body []byte
}

// HostFactory builds one fresh scripthost.Host per worker, all sharing
// the same compiled program (spec.md §4.3's "each worker thread owns one
// isolated scripting interpreter").
type HostFactory func(workerID string) (*scripthost.Host, error)

// Orchestrator runs one crawl from a resolved Seed and CrawlerConfig.
type Orchestrator struct {
	runID      string
	cfg        config.CrawlerConfig
	seed       config.Seed
	downloader *downloader.Downloader
	sink       *csvsink.Sink
	newHost    HostFactory
	logger     *slog.Logger
	seen       *seenset.Set
	throttler  throttle.Throttler
	robot      *robots.Robot // resolved during Seeding; may remain nil

	urlQueue  chan string
	pageQueue chan downloadedPage

	wg       sync.WaitGroup
	inFlight atomic.Int64

	mu       sync.Mutex
	state    State
	firstErr error

	statsMu        sync.Mutex
	pagesFetched   int64
	recordsEmitted int64
	statusCodes    map[int]int64
	errorsByKind   map[string]int64
	startTime      time.Time
	endTime        time.Time
}

// New constructs an Orchestrator. newHost is called once per worker
// goroutine started by Run.
func New(cfg config.CrawlerConfig, seed config.Seed, dl *downloader.Downloader, sink *csvsink.Sink, newHost HostFactory, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.New().String()
	return &Orchestrator{
		runID:      runID,
		cfg:        cfg,
		seed:       seed,
		downloader: dl,
		sink:       sink,
		newHost:    newHost,
		logger:     logger.With("component", "crawler", "run_id", runID),
		seen:       seenset.New(),
		urlQueue:   make(chan string, 10000),
		pageQueue:  make(chan downloadedPage, cfg.PageBuffer),

		statusCodes:  make(map[int]int64),
		errorsByKind: make(map[string]int64),
	}
}

// Stats reports the running counters accumulated so far, safe to call
// from any goroutine (including mid-run, for progress reporting).
func (o *Orchestrator) Stats() report.Counters {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	codes := make(map[int]int64, len(o.statusCodes))
	for k, v := range o.statusCodes {
		codes[k] = v
	}
	kinds := make(map[string]int64, len(o.errorsByKind))
	for k, v := range o.errorsByKind {
		kinds[k] = v
	}
	return report.Counters{
		PagesFetched:   atomic.LoadInt64(&o.pagesFetched),
		RecordsEmitted: atomic.LoadInt64(&o.recordsEmitted),
		StatusCodes:    codes,
		ErrorsByKind:   kinds,
		StartTime:      o.startTime,
		EndTime:        o.endTime,
	}
}

func (o *Orchestrator) recordStatus(code int) {
	atomic.AddInt64(&o.pagesFetched, 1)
	o.statsMu.Lock()
	o.statusCodes[code]++
	o.statsMu.Unlock()
}

func (o *Orchestrator) recordError(kind errs.Kind) {
	o.statsMu.Lock()
	o.errorsByKind[string(kind)]++
	o.statsMu.Unlock()
}

// State reports the orchestrator's current run state, safe to call from
// any goroutine.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// RunID returns the unique identifier assigned to this run at
// construction, used to correlate log lines and metrics across workers.
func (o *Orchestrator) RunID() string { return o.runID }

// InFlight reports the number of URLs enqueued but not yet fully
// disposed (downloaded and, if pushed to a worker, scraped). Observable
// without blocking on the internal WaitGroup, per spec.md §4.6's need to
// sequence the CSV flush from outside the crawl loop.
func (o *Orchestrator) InFlight() int64 { return o.inFlight.Load() }

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	if o.firstErr == nil {
		o.firstErr = err
		o.state = StateFailed
	}
	o.mu.Unlock()
}

// Run executes Seeding, then Crawling/Draining concurrently, and returns
// the first fatal error (if any) once the run reaches Done or Failed.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()
	defer func() { o.endTime = time.Now() }()

	o.logger.Info("crawl started", "seed_kind", o.seed.Kind)
	o.setState(StateSeeding)
	if err := o.resolveRobot(ctx); err != nil {
		o.fail(err)
		return err
	}

	// Built only now, not in New: applyCrawlDelayDefault may have
	// rewritten o.cfg.Throttle from a robots.txt crawl-delay hint
	// discovered while resolving the robot above, and every download
	// started by the workers below must go through the final Throttler.
	o.throttler = buildThrottler(o.cfg.Throttle)
	defer o.throttler.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	// Start draining urlQueue/pageQueue before enqueueSeed runs. A
	// sitemap seed can hand back far more candidate URLs than
	// urlQueue's buffer holds (a single sitemap near the ~50k-URL
	// ceiling, or several combined), and enqueueSeed calls enqueueURL
	// synchronously for each one; without a consumer already running,
	// that blocking send deadlocks the whole run before Crawling ever
	// starts.
	g.Go(func() error { return o.downloadLoop(gctx, cancel) })
	for i := 0; i < o.cfg.NumWorkers; i++ {
		workerID := fmt.Sprintf("%d", i)
		g.Go(func() error { return o.workerLoop(gctx, workerID, cancel) })
	}

	o.setState(StateCrawling)
	if err := o.enqueueSeed(gctx); err != nil {
		o.fail(err)
		cancel()
	}

	// The WaitGroup reaches zero only once every enqueued URL has been
	// fully disposed (download failure, robot rejection, or a completed
	// scrapPage), so it is safe to close both queues once it returns —
	// nothing is left blocked trying to send into them. Waiting only
	// starts once enqueueSeed has returned (every seed-level wg.Add has
	// already happened); any later Add from a worker-discovered URL
	// happens inside its still-outstanding parent job's processing,
	// strictly before that job's own dispose, so the count can never be
	// observed at zero while dependent work remains.
	drained := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		o.setState(StateDraining)
		close(o.urlQueue)
		close(o.pageQueue)
	case <-gctx.Done():
		// A stage (or seed resolution) failed fatally; cancel already
		// propagated via gctx.
	}

	if err := g.Wait(); err != nil && o.firstErr == nil {
		o.fail(err)
	}

	if err := o.sink.Close(); err != nil {
		o.fail(errs.New(errs.KindSink, "", err))
	}

	if o.firstErr != nil {
		o.setState(StateFailed)
		return o.firstErr
	}
	o.setState(StateDone)
	return nil
}

// enqueueURL applies the optional Robot and dedupes against the seen-set,
// then hands url to placeURL.
func (o *Orchestrator) enqueueURL(ctx context.Context, url string) {
	if o.robot != nil && !o.robot.Allowed(url) {
		return
	}
	if !o.seen.MarkIfNew(url) {
		return
	}
	o.placeURL(ctx, url)
}

// placeURL increments the in-flight counters before placement, per
// spec.md §4.6's "sendUrl must increment the in-flight counter before
// placement", then sends url onto urlQueue.
func (o *Orchestrator) placeURL(ctx context.Context, url string) {
	o.wg.Add(1)
	o.inFlight.Add(1)
	select {
	case o.urlQueue <- url:
	case <-ctx.Done():
		o.dispose()
	}
}

func (o *Orchestrator) dispose() {
	o.inFlight.Add(-1)
	o.wg.Done()
}

// resolveRobot fetches whichever robots.txt the run needs before
// anything is enqueued: an explicit --robot URL, or (mutually
// exclusively, per config.Validate) the seed's own robots.txt. Must run
// to completion, and must finish before the Throttler is built, since it
// may rewrite o.cfg.Throttle from a crawl-delay hint.
func (o *Orchestrator) resolveRobot(ctx context.Context) error {
	if o.cfg.RobotURL != "" {
		robot, err := o.fetchRobot(ctx, o.cfg.RobotURL)
		if err != nil {
			return err
		}
		o.robot = robot
		o.applyCrawlDelayDefault(robot)
		return nil
	}
	if o.seed.Kind == config.SeedRobotsTxt {
		robot, err := o.fetchRobot(ctx, o.seed.RobotsTxt)
		if err != nil {
			return err
		}
		o.robot = robot
		o.applyCrawlDelayDefault(robot)
	}
	return nil
}

// enqueueSeed submits every seed URL onto urlQueue: direct page URLs are
// enqueued as-is; sitemap URLs (and robots.txt-harvested sitemaps) are
// traversed. Runs concurrently with the download/worker goroutines Run
// starts before calling this, so a large sitemap's enqueueURL calls
// always have a consumer on the other end of urlQueue.
func (o *Orchestrator) enqueueSeed(ctx context.Context) error {
	switch o.seed.Kind {
	case config.SeedPages:
		for _, p := range o.seed.Pages {
			o.enqueueURL(ctx, p)
		}
		return nil
	case config.SeedSitemaps:
		return o.traverseAll(ctx, o.seed.Sitemaps)
	case config.SeedRobotsTxt:
		return o.traverseAll(ctx, o.robot.Sitemaps())
	default:
		return errs.New(errs.KindConfig, "", fmt.Errorf("crawler: seed has no resolvable kind"))
	}
}

// applyCrawlDelayDefault implements spec.md §4.5's defaulting rule: if
// the robot publishes a crawl-delay hint and the run is still on the
// unmodified default throttle, prefer Delay(hint). An explicit
// script/CLI throttle override always takes precedence (spec.md §9).
func (o *Orchestrator) applyCrawlDelayDefault(robot *robots.Robot) {
	if o.cfg.Throttle != config.DefaultThrottle() {
		return
	}
	if d, ok := robot.CrawlDelay(); ok {
		o.cfg.Throttle = config.Throttle{Kind: config.ThrottleDelay, Delay: d}
	}
}

// buildThrottler constructs the Throttler matching the resolved config,
// after seeding has had its chance to override it with a crawl-delay hint.
func buildThrottler(t config.Throttle) throttle.Throttler {
	switch t.Kind {
	case config.ThrottlePerSecond:
		return throttle.NewPerSecond(t.N)
	case config.ThrottleDelay:
		return throttle.NewDelay(t.Delay)
	default:
		return throttle.NewConcurrent(int64(t.N))
	}
}

// robotView adapts o.robot to scripthost.RobotView, returning a true nil
// interface (not a non-nil interface wrapping a nil *robots.Robot) when no
// robots.txt was resolved, so script-side `ctx.robot()` checks behave.
func (o *Orchestrator) robotView() scripthost.RobotView {
	if o.robot == nil {
		return nil
	}
	return o.robot
}

func (o *Orchestrator) fetchRobot(ctx context.Context, robotURL string) (*robots.Robot, error) {
	page, err := o.downloader.Get(ctx, robotURL)
	if err != nil {
		return nil, err
	}
	robot, err := robots.Parse(page.Body, o.cfg.UserAgent)
	if err != nil {
		return nil, errs.New(errs.KindConfig, robotURL, err)
	}
	return robot, nil
}

func (o *Orchestrator) traverseAll(ctx context.Context, sitemapURLs []string) error {
	initHost, err := o.newHost("seed")
	if err != nil {
		return err
	}

	tr := &sitemap.Traverser{
		Fetch: func(ctx context.Context, url string) ([]byte, error) {
			page, err := o.downloader.Get(ctx, url)
			if err != nil {
				return nil, err
			}
			return page.Body, nil
		},
		Accept: func(loc string, kind sitemap.Kind) (bool, error) {
			return initHost.AcceptURL(loc, string(kind), o.robotView())
		},
		Seen:       o.seen,
		Robot:      o.robot,
		OnXMLError: o.cfg.OnXmlError,
		Logger:     o.logger,
		// The Traverser has already applied the Robot and marked pageURL
		// in the shared seen-set, so it is placed directly: enqueueURL
		// would find it already seen and drop it.
		Emit: func(pageURL string) { o.placeURL(ctx, pageURL) },
	}

	for _, su := range sitemapURLs {
		if err := tr.Traverse(ctx, su); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) downloadLoop(ctx context.Context, cancel context.CancelFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case url, ok := <-o.urlQueue:
			if !ok {
				return nil
			}
			o.downloadOne(ctx, url, cancel)
		}
	}
}

func (o *Orchestrator) downloadOne(ctx context.Context, url string, cancel context.CancelFunc) {
	if o.robot != nil && !o.robot.Allowed(url) {
		o.dispose()
		return
	}
	waitStart := time.Now()
	if err := o.throttler.Acquire(ctx); err != nil {
		o.dispose()
		return
	}
	metrics.RecordThrottleWait(time.Since(waitStart))
	defer o.throttler.Release()

	dlStart := time.Now()
	page, err := o.downloader.Get(ctx, url)
	if err != nil {
		metrics.RecordDownload(0, time.Since(dlStart))
		classified, ok := errs.As(err)
		if !ok {
			classified = errs.New(errs.KindDownload, url, err)
		}
		o.handleStageError(classified, o.cfg.OnDlError, cancel)
		o.dispose()
		return
	}
	metrics.RecordDownload(page.StatusCode, time.Since(dlStart))
	o.recordStatus(page.StatusCode)

	select {
	case o.pageQueue <- downloadedPage{url: url, body: page.Body}:
		metrics.PageQueueDepth.Set(float64(len(o.pageQueue)))
	case <-ctx.Done():
		o.dispose()
	}
}

func (o *Orchestrator) workerLoop(ctx context.Context, workerID string, cancel context.CancelFunc) error {
	host, err := o.newHost(workerID)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case page, ok := <-o.pageQueue:
			if !ok {
				return nil
			}
			metrics.PageQueueDepth.Set(float64(len(o.pageQueue)))
			o.scrapOne(ctx, host, page, cancel)
		}
	}
}

func (o *Orchestrator) scrapOne(ctx context.Context, host *scripthost.Host, page downloadedPage, cancel context.CancelFunc) {
	defer o.dispose()

	html, err := htmldom.Parse(page.body)
	if err != nil {
		o.handleStageError(errs.New(errs.KindScript, page.url, err), o.cfg.OnScrapError, cancel)
		return
	}

	onRecord := func(fields []string) {
		rec := record.New()
		for _, f := range fields {
			rec.PushField(f)
		}
		if err := o.sink.Write(rec); err != nil {
			o.fail(errs.New(errs.KindSink, page.url, err))
			cancel()
			return
		}
		atomic.AddInt64(&o.recordsEmitted, 1)
		metrics.RecordsEmittedTotal.Inc()
	}
	onURL := func(u string) { o.enqueueURL(ctx, u) }

	if err := host.ScrapPage(html, scripthost.NewURLLocation(page.url), o.robotView(), onRecord, onURL); err != nil {
		classified, ok := errs.As(err)
		if !ok {
			classified = errs.New(errs.KindScript, page.url, err)
		}
		o.handleStageError(classified, o.cfg.OnScrapError, cancel)
	}
}

func (o *Orchestrator) handleStageError(err *errs.Error, policy errs.Policy, cancel context.CancelFunc) {
	o.recordError(err.Kind)
	metrics.RecordError(string(err.Kind))
	if errs.IsFatal(err, policy) {
		o.fail(err)
		cancel()
		return
	}
	o.logger.Warn("stage error, skipping", "kind", err.Kind, "url", err.URL, "err", err.Cause)
}
