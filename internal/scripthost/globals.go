package scripthost

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/sws-run/sws/internal/config"
	"github.com/sws-run/sws/internal/csvsink"
	"github.com/sws-run/sws/internal/errs"
)

func isSet(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

// ReadSeed reads the seedSitemaps | seedPages | seedRobotsTxt globals.
// Per spec.md §4.3, only the worker doing the init pass calls this —
// every other worker only exposes scrapPage/acceptUrl.
func (h *Host) ReadSeed() (config.Seed, error) {
	var seed config.Seed

	if v := h.vm.Get("seedSitemaps"); isSet(v) {
		var urls []string
		if err := h.vm.ExportTo(v, &urls); err != nil {
			return seed, scriptConfigErr("seedSitemaps", err)
		}
		seed.Kind = config.SeedSitemaps
		seed.Sitemaps = urls
	}
	if v := h.vm.Get("seedPages"); isSet(v) {
		var urls []string
		if err := h.vm.ExportTo(v, &urls); err != nil {
			return seed, scriptConfigErr("seedPages", err)
		}
		seed.Kind = config.SeedPages
		seed.Pages = urls
	}
	if v := h.vm.Get("seedRobotsTxt"); isSet(v) {
		seed.Kind = config.SeedRobotsTxt
		seed.RobotsTxt = v.String()
	}

	if err := seed.Validate(); err != nil {
		return config.Seed{}, err
	}
	return seed, nil
}

// ReadCrawlerConfigOverlay reads the crawlerConfig global, if present,
// into an overlay that sits above the defaults and below the CLI layer
// (spec.md §4.7).
func (h *Host) ReadCrawlerConfigOverlay() (config.CrawlerConfigOverlay, error) {
	var overlay config.CrawlerConfigOverlay

	v := h.vm.Get("crawlerConfig")
	if !isSet(v) {
		return overlay, nil
	}
	obj := v.ToObject(h.vm)

	if ua := obj.Get("userAgent"); isSet(ua) {
		s := ua.String()
		overlay.UserAgent = &s
	}
	if pb := obj.Get("pageBuffer"); isSet(pb) {
		n := int(pb.ToInteger())
		overlay.PageBuffer = &n
	}
	if nw := obj.Get("numWorkers"); isSet(nw) {
		n := int(nw.ToInteger())
		overlay.NumWorkers = &n
	}
	if ru := obj.Get("robot"); isSet(ru) {
		s := ru.String()
		overlay.RobotURL = &s
	}

	var err error
	if overlay.OnDlError, err = readPolicy(obj, "onDlError"); err != nil {
		return overlay, err
	}
	if overlay.OnXmlError, err = readPolicy(obj, "onXmlError"); err != nil {
		return overlay, err
	}
	if overlay.OnScrapError, err = readPolicy(obj, "onScrapError"); err != nil {
		return overlay, err
	}

	if th := obj.Get("throttle"); isSet(th) {
		t, err := readThrottle(th.ToObject(h.vm))
		if err != nil {
			return overlay, err
		}
		overlay.Throttle = &t
	}

	return overlay, nil
}

// ReadCsvWriterConfigOverlay reads the csvWriterConfig global, if present
// (spec.md §4.7).
func (h *Host) ReadCsvWriterConfigOverlay() (config.CsvWriterConfigOverlay, error) {
	var overlay config.CsvWriterConfigOverlay

	v := h.vm.Get("csvWriterConfig")
	if !isSet(v) {
		return overlay, nil
	}
	obj := v.ToObject(h.vm)

	if d := obj.Get("delimiter"); isSet(d) {
		r := []rune(d.String())[0]
		overlay.Delimiter = &r
	}
	if e := obj.Get("escape"); isSet(e) {
		r := []rune(e.String())[0]
		overlay.Escape = &r
	}
	if f := obj.Get("flexible"); isSet(f) {
		b := f.ToBoolean()
		overlay.Flexible = &b
	}
	if t := obj.Get("terminator"); isSet(t) {
		term, err := readTerminator(h.vm, t)
		if err != nil {
			return overlay, err
		}
		overlay.Terminator = &term
	}

	return overlay, nil
}

// readTerminator decodes "CRLF" | { Any: c } per spec.md §4.2/§6.
func readTerminator(vm *goja.Runtime, v goja.Value) (csvsink.Terminator, error) {
	if s, ok := v.Export().(string); ok {
		if s == "CRLF" {
			return csvsink.Terminator{CRLF: true}, nil
		}
		return csvsink.Terminator{}, scriptConfigErr("terminator", fmt.Errorf("unknown terminator %q", s))
	}
	obj := v.ToObject(vm)
	any := obj.Get("Any")
	if !isSet(any) {
		return csvsink.Terminator{}, scriptConfigErr("terminator", fmt.Errorf("expected \"CRLF\" or {Any: char}"))
	}
	runes := []rune(any.String())
	if len(runes) != 1 {
		return csvsink.Terminator{}, scriptConfigErr("terminator", fmt.Errorf("Any must be a single character"))
	}
	return csvsink.Terminator{Any: runes[0]}, nil
}

func readPolicy(obj *goja.Object, name string) (*errs.Policy, error) {
	v := obj.Get(name)
	if !isSet(v) {
		return nil, nil
	}
	p, err := errs.ParsePolicy(v.String())
	if err != nil {
		return nil, scriptConfigErr(name, err)
	}
	return &p, nil
}

// readThrottle decodes { Concurrent=N | PerSecond=N | Delay=N }, exactly
// one key present, per spec.md §6.
func readThrottle(obj *goja.Object) (config.Throttle, error) {
	if v := obj.Get("Concurrent"); isSet(v) {
		return config.Throttle{Kind: config.ThrottleConcurrent, N: int(v.ToInteger())}, nil
	}
	if v := obj.Get("PerSecond"); isSet(v) {
		return config.Throttle{Kind: config.ThrottlePerSecond, N: int(v.ToInteger())}, nil
	}
	if v := obj.Get("Delay"); isSet(v) {
		return config.Throttle{Kind: config.ThrottleDelay, Delay: time.Duration(v.ToInteger()) * time.Second}, nil
	}
	return config.Throttle{}, scriptConfigErr("throttle", fmt.Errorf("must be one of Concurrent, PerSecond, or Delay"))
}

func scriptConfigErr(field string, cause error) error {
	return errs.New(errs.KindConfig, "", fmt.Errorf("script global %s: %w", field, cause))
}
