// Package scripthost embeds one goja JavaScript runtime per crawler
// worker and installs the `sws` object model described in spec.md §3/§6:
// Html, Select, ElemRef, Date, Record, ScrapingContext, CrawlingContext,
// Robot, the Sitemap/Location enums, and PageLocation.
//
// Grounded on github.com/dop251/goja, the pack's only pure-Go scripting
// runtime (retrieved via law-makers-crawl's go.mod, which pairs goja with
// goquery for the same "JS-programmable crawler" shape this spec
// describes — see SPEC_FULL.md §4.3/§9). Each worker goroutine owns its
// own *goja.Runtime; goja runtimes are not safe for concurrent use, which
// matches spec.md §5's "no interpreter is shared" requirement exactly.
package scripthost

import (
	"fmt"
	"log/slog"

	"github.com/dop251/goja"

	"github.com/sws-run/sws/internal/errs"
	"github.com/sws-run/sws/internal/htmldom"
)

// Compile parses the user script once. The resulting *goja.Program is
// reused across every worker's Runtime so the script text is parsed a
// single time regardless of num_workers.
func Compile(name, src string) (*goja.Program, error) {
	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, errs.New(errs.KindScript, "", fmt.Errorf("compile %s: %w", name, err))
	}
	return prog, nil
}

// Host wraps one worker's private goja.Runtime. generation is bumped
// before every scrapPage/acceptUrl invocation; every bound handle
// (Html/Select/ElemRef/ScrapingContext) captures the generation current
// at the moment it was constructed and is rejected as expired the
// instant that generation moves on, satisfying spec.md §4.3's "must be
// invalid after the call returns" without goja-side finalizers.
type Host struct {
	workerID   string
	vm         *goja.Runtime
	logger     *slog.Logger
	generation int

	scrapPageFn goja.Callable
	acceptURLFn goja.Callable // nil if the script didn't define one
}

// New constructs a Host: a fresh runtime, the sws namespace installed,
// and prog run once to populate globals. scrapPage is required per
// spec.md §4.3; its absence is a fatal ScriptError (script load failure).
func New(prog *goja.Program, workerID string, logger *slog.Logger) (*Host, error) {
	vm := goja.New()
	// Exported Go method names are exposed to scripts with their first
	// rune lowercased (PushField -> pushField, SendRecord -> sendRecord),
	// matching the lowerCamelCase script surface in spec.md §6.
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	h := &Host{workerID: workerID, vm: vm, logger: logger}

	install(vm)

	if _, err := vm.RunProgram(prog); err != nil {
		return nil, errs.New(errs.KindScript, "", fmt.Errorf("run script: %w", err))
	}

	scrapPage, ok := goja.AssertFunction(vm.Get("scrapPage"))
	if !ok {
		return nil, errs.New(errs.KindScript, "", fmt.Errorf("script: scrapPage is required but not defined"))
	}
	h.scrapPageFn = scrapPage

	if acceptURL, ok := goja.AssertFunction(vm.Get("acceptUrl")); ok {
		h.acceptURLFn = acceptURL
	}

	return h, nil
}

// HasAcceptURL reports whether the script defined an acceptUrl callback.
// Its absence means every URL is accepted, per spec.md §4.3/§8.
func (h *Host) HasAcceptURL() bool { return h.acceptURLFn != nil }

// ScrapPage invokes the script's scrapPage(html, ctx) once for one
// downloaded page. The Html and ScrapingContext handed to the script are
// valid only for the duration of this call. onRecord/onURL are called
// synchronously, in script-emitted order, for every ctx.sendRecord/
// ctx.sendUrl the script makes during this invocation.
func (h *Host) ScrapPage(html *htmldom.Html, loc PageLocation, robot RobotView, onRecord func([]string), onURL func(string)) error {
	h.generation++
	gen := h.generation

	bHTML := &boundHTML{host: h, gen: gen, inner: html}
	ctx := newScrapingContext(h, gen, loc, robot)
	ctx.bind(onRecord, onURL)

	_, err := h.scrapPageFn(goja.Undefined(), h.vm.ToValue(bHTML), h.vm.ToValue(ctx))
	ctx.invalidate()
	if err != nil {
		return errs.New(errs.KindScript, loc.Get(), fmt.Errorf("scrapPage: %w", err))
	}
	return nil
}

// AcceptURL invokes the script's acceptUrl(url, ctx) callback, if
// defined. A non-boolean truthy return value accepts the URL; nil/false
// rejects it (spec.md §9's documented Open Question resolution).
func (h *Host) AcceptURL(url string, sitemapKind string, robot RobotView) (bool, error) {
	if h.acceptURLFn == nil {
		return true, nil
	}
	h.generation++
	gen := h.generation

	ctx := newCrawlingContext(h, gen, sitemapKind, robot)
	v, err := h.acceptURLFn(goja.Undefined(), h.vm.ToValue(url), h.vm.ToValue(ctx))
	ctx.invalidate()
	if err != nil {
		return false, errs.New(errs.KindScript, url, fmt.Errorf("acceptUrl: %w", err))
	}
	return v.ToBoolean(), nil
}

func (h *Host) checkGeneration(gen int) error {
	if gen != h.generation {
		h.logger.Warn("use of expired handle", "worker", h.workerID, "generation", gen, "current", h.generation)
		return fmt.Errorf("scripthost: use of expired handle (worker %s)", h.workerID)
	}
	return nil
}
