// Command sws is the CLI front-end for the crawl/scrape pipeline: a
// `crawl` subcommand that runs the full discovery->download->parse->
// script-extract->CSV-sink pipeline from a sitemap/page/robots.txt seed,
// a `scrap` subcommand that runs the same script host and CSV sink
// against an explicit URL or local file glob (bypassing the crawler
// entirely, per spec.md's "out of scope... local-file scrap mode"
// framing — it is a thin collaborator around the already-core Script
// Host and CSV Sink), and `completion` for shell completion scripts.
//
// Grounded on the cobra/viper CLI shape of
// _examples/IshaanNene-ScrapeGoat-And-ArchEnemy's cmd/webstalk (root
// command + PersistentFlags + one xxxCmd() constructor per subcommand +
// a runXxx(cmd, args) error RunE handler) — the teacher itself carries
// cobra/viper only as indirect dependencies with no CLI of its own, per
// SPEC_FULL.md §2 item 11.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sws-run/sws/internal/errs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps a run's terminal error to spec.md §6's exit code
// contract: 0 success (handled by Execute returning nil), 1 a fatal
// pipeline error, 2 a config/usage error.
func exitCode(err error) int {
	if classified, ok := errs.As(err); ok && classified.Kind == errs.KindConfig {
		return 2
	}
	if _, ok := err.(*usageError); ok {
		return 2
	}
	return 1
}

// usageError marks a flag-combination mistake caught before any config
// merge happens (e.g. two throttle flags set at once), distinct from a
// errs.KindConfig raised by internal/config.Validate but carrying the
// same exit-code weight.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func newUsageError(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sws",
		Short:         "sws — a scriptable web-scraping engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `sws crawls pages from a sitemap, page-list, or robots.txt seed, running a
user-supplied JavaScript extraction script against each downloaded page
and writing the CSV rows the script emits to a shared sink.`,
	}

	viper.SetEnvPrefix("sws")
	viper.AutomaticEnv()

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newScrapCmd())
	cmd.AddCommand(newCompletionCmd())
	return cmd
}
