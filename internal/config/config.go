// Package config implements the merge (defaults ≺ script globals ≺ CLI
// overrides) and validation of CrawlerConfig, CsvWriterConfig and Seed
// (spec.md §3, §4.7).
package config

import (
	"fmt"
	"time"

	"github.com/sws-run/sws/internal/csvsink"
	"github.com/sws-run/sws/internal/errs"
)

// SeedKind is which of the three mutually exclusive seed shapes is in use.
type SeedKind string

const (
	SeedSitemaps  SeedKind = "sitemaps"
	SeedPages     SeedKind = "pages"
	SeedRobotsTxt SeedKind = "robots_txt"
)

// Seed is exactly one of { sitemap URLs; page URLs; one robots.txt URL }.
type Seed struct {
	Kind      SeedKind
	Sitemaps  []string
	Pages     []string
	RobotsTxt string
}

// Validate enforces spec.md §3's "exactly one kind" invariant.
func (s Seed) Validate() error {
	n := 0
	if len(s.Sitemaps) > 0 {
		n++
	}
	if len(s.Pages) > 0 {
		n++
	}
	if s.RobotsTxt != "" {
		n++
	}
	if n != 1 {
		return errs.New(errs.KindConfig, "", fmt.Errorf("seed must specify exactly one of sitemaps, pages, or robotsTxt (got %d)", n))
	}
	return nil
}

// ThrottleKind selects one of the three rate-limiting strategies.
type ThrottleKind string

const (
	ThrottleConcurrent ThrottleKind = "concurrent"
	ThrottlePerSecond  ThrottleKind = "per_second"
	ThrottleDelay      ThrottleKind = "delay"
)

// Throttle is the active throttling strategy and its parameter.
type Throttle struct {
	Kind  ThrottleKind
	N     int           // Concurrent(n) or PerSecond(n)
	Delay time.Duration // Delay(d)
}

// DefaultThrottle is Concurrent(100), spec.md §4.5's default when no Robot
// crawl-delay hint is available.
func DefaultThrottle() Throttle {
	return Throttle{Kind: ThrottleConcurrent, N: 100}
}

// CrawlerConfig is the merged run configuration (spec.md §3).
type CrawlerConfig struct {
	UserAgent    string
	PageBuffer   int
	Throttle     Throttle
	NumWorkers   int
	OnDlError    errs.Policy
	OnXmlError   errs.Policy
	OnScrapError errs.Policy
	RobotURL     string // optional; must be unset when Seed.Kind == SeedRobotsTxt
}

// DefaultCrawlerConfig returns the documented defaults.
func DefaultCrawlerConfig() CrawlerConfig {
	return CrawlerConfig{
		UserAgent:    "sws/1.0",
		PageBuffer:   100,
		Throttle:     DefaultThrottle(),
		NumWorkers:   4,
		OnDlError:    errs.PolicySkipAndLog,
		OnXmlError:   errs.PolicySkipAndLog,
		OnScrapError: errs.PolicySkipAndLog,
	}
}

// CrawlerConfigOverlay carries only the fields a layer (script globals or
// CLI flags) actually set; nil fields are left untouched by ApplyOverlay.
type CrawlerConfigOverlay struct {
	UserAgent    *string
	PageBuffer   *int
	Throttle     *Throttle
	NumWorkers   *int
	OnDlError    *errs.Policy
	OnXmlError   *errs.Policy
	OnScrapError *errs.Policy
	RobotURL     *string
}

// ApplyOverlay merges overlay onto base, field by field, implementing one
// layer of the defaults ≺ script globals ≺ CLI overrides precedence.
func ApplyOverlay(base CrawlerConfig, overlay CrawlerConfigOverlay) CrawlerConfig {
	out := base
	if overlay.UserAgent != nil {
		out.UserAgent = *overlay.UserAgent
	}
	if overlay.PageBuffer != nil {
		out.PageBuffer = *overlay.PageBuffer
	}
	if overlay.Throttle != nil {
		out.Throttle = *overlay.Throttle
	}
	if overlay.NumWorkers != nil {
		out.NumWorkers = *overlay.NumWorkers
	}
	if overlay.OnDlError != nil {
		out.OnDlError = *overlay.OnDlError
	}
	if overlay.OnXmlError != nil {
		out.OnXmlError = *overlay.OnXmlError
	}
	if overlay.OnScrapError != nil {
		out.OnScrapError = *overlay.OnScrapError
	}
	if overlay.RobotURL != nil {
		out.RobotURL = *overlay.RobotURL
	}
	return out
}

// Validate enforces the config-level invariants from spec.md §3/§7: a
// robots.txt seed may not also carry an explicit robot URL (the "Open
// Question" in spec.md §9 resolves to a ConfigError, not a silent pick),
// page buffer and worker count must be positive.
func Validate(cfg CrawlerConfig, seed Seed) error {
	if err := seed.Validate(); err != nil {
		return err
	}
	if seed.Kind == SeedRobotsTxt && cfg.RobotURL != "" {
		return errs.New(errs.KindConfig, "", fmt.Errorf("seedRobotsTxt and crawlerConfig.robot are mutually exclusive"))
	}
	if cfg.PageBuffer <= 0 {
		return errs.New(errs.KindConfig, "", fmt.Errorf("pageBuffer must be a positive integer, got %d", cfg.PageBuffer))
	}
	if cfg.NumWorkers <= 0 {
		return errs.New(errs.KindConfig, "", fmt.Errorf("numWorkers must be a positive integer, got %d", cfg.NumWorkers))
	}
	return nil
}

// CsvWriterConfig is an alias for the CSV Sink's Config, kept as a
// separate name in this package so call sites read "csvWriterConfig" the
// way the script surface (spec.md §6) names it.
type CsvWriterConfig = csvsink.Config

// DefaultCsvWriterConfig returns the documented defaults.
func DefaultCsvWriterConfig() CsvWriterConfig {
	return csvsink.DefaultConfig()
}

// CsvWriterConfigOverlay carries only the fields a layer (script globals
// or CLI flags) actually set, mirroring CrawlerConfigOverlay's shape.
type CsvWriterConfigOverlay struct {
	Delimiter  *rune
	Escape     *rune
	Flexible   *bool
	Terminator *csvsink.Terminator
}

// ApplyCsvOverlay merges overlay onto base, field by field.
func ApplyCsvOverlay(base CsvWriterConfig, overlay CsvWriterConfigOverlay) CsvWriterConfig {
	out := base
	if overlay.Delimiter != nil {
		out.Delimiter = *overlay.Delimiter
	}
	if overlay.Escape != nil {
		out.Escape = *overlay.Escape
	}
	if overlay.Flexible != nil {
		out.Flexible = *overlay.Flexible
	}
	if overlay.Terminator != nil {
		out.Terminator = *overlay.Terminator
	}
	return out
}
