// Package errs defines the error taxonomy shared by every pipeline stage
// and the skip-and-log / fail policy that governs how each kind is handled.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies which stage raised an error, per the error taxonomy.
type Kind string

const (
	// KindConfig covers conflicting or missing seeds, a robots.txt seed
	// combined with an explicit robot, invalid config values, and an
	// output file that cannot be opened. Always fatal, never policy-gated.
	KindConfig Kind = "config"
	// KindDownload covers network failures, non-2xx responses and timeouts.
	KindDownload Kind = "download"
	// KindXML covers gzip failures, malformed XML and unknown sitemap roots.
	KindXML Kind = "xml"
	// KindScript covers script load failures (always fatal) and runtime
	// failures raised from scrapPage/acceptUrl.
	KindScript Kind = "script"
	// KindSink covers CSV write failures and flexible=false field-count
	// mismatches. Always fatal.
	KindSink Kind = "sink"
)

// Error wraps a cause with its Kind and enough context (URL or page
// location, worker id) to log per the skip-and-log policy.
type Error struct {
	Kind     Kind
	URL      string
	WorkerID string
	Cause    error
}

func (e *Error) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified Error.
func New(kind Kind, url string, cause error) *Error {
	return &Error{Kind: kind, URL: url, Cause: cause}
}

// WithWorker attaches a worker id to a classified Error, returning a copy.
func (e *Error) WithWorker(id string) *Error {
	cp := *e
	cp.WorkerID = id
	return &cp
}

// Policy is the per-stage disposition for a classified error: either log
// and continue, or escalate the whole run to Failed.
type Policy string

const (
	PolicySkipAndLog Policy = "skip-and-log"
	PolicyFail       Policy = "fail"
)

// ParsePolicy validates a policy string from config/flags.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicySkipAndLog, PolicyFail:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("errs: invalid error policy %q (want %q or %q)", s, PolicySkipAndLog, PolicyFail)
	}
}

// IsFatal reports whether err, under policy p, should cancel the run.
// ConfigError and SinkError are always fatal regardless of p.
func IsFatal(err *Error, p Policy) bool {
	if err.Kind == KindConfig || err.Kind == KindSink {
		return true
	}
	return p == PolicyFail
}

// As is a thin wrapper around errors.As for pulling a classified Error out
// of an arbitrary error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
