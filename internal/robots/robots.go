// Package robots parses robots.txt and exposes the Robot model: an
// allowed(url) predicate and an optional crawl-delay hint.
//
// Grounded on the teacher's internal/scraper/robots.go, using the same
// github.com/temoto/robotstxt dependency, but decoupled from the teacher's
// Fetcher so it can parse bytes handed to it by the sitemap/downloader
// stages instead of owning its own HTTP fetch+cache.
package robots

import (
	"fmt"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// Robot is the parsed robots.txt model, immutable after construction and
// safe for concurrent read-only use across workers.
type Robot struct {
	data      *robotstxt.RobotsData
	userAgent string
}

// Parse builds a Robot from raw robots.txt bytes, scoped to userAgent's
// matching group.
func Parse(body []byte, userAgent string) (*Robot, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("robots: parse: %w", err)
	}
	return &Robot{data: data, userAgent: userAgent}, nil
}

// Allowed reports whether rawURL may be fetched per the matching
// user-agent group.
func (r *Robot) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	group := r.data.FindGroup(r.userAgent)
	return group.Test(u.Path)
}

// CrawlDelay returns the crawl-delay hint for the matching group, if any,
// used to default Throttle to Delay(hint) per spec.md §4.5.
func (r *Robot) CrawlDelay() (time.Duration, bool) {
	group := r.data.FindGroup(r.userAgent)
	if group.CrawlDelay <= 0 {
		return 0, false
	}
	return group.CrawlDelay, true
}

// Sitemaps returns the sitemap URLs declared in the robots.txt document.
func (r *Robot) Sitemaps() []string {
	return r.data.Sitemaps
}
