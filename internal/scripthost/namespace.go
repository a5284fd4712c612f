package scripthost

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/sws-run/sws/internal/dateutil"
	"github.com/sws-run/sws/internal/record"
	"github.com/sws-run/sws/internal/sitemap"
)

// jsRecord is the script-visible Record: an ordered, growable list of
// string fields. record.Record already exposes exactly the methods
// spec.md §3/§6 calls for (pushField/fields/len), so it is used directly
// rather than wrapped in a second type.
type jsRecord = record.Record

// jsDate is the script-visible sws.Date(dateStr, fmt) object, produced
// by parsing dateStr per the strftime-style input format and re-rendered
// on demand by Format (spec.md §6's "Date parsing/formatting uses
// standard strftime-like specifiers").
type jsDate struct {
	t time.Time
}

func (d *jsDate) Format(outFmt string) (string, error) {
	return dateutil.Format(outFmt, d.t)
}

// install populates the runtime's global object with the `sws` namespace:
// constructors (Record, Date), the Location/Sitemap enums, and nothing
// else that needs Go-side state — Html/ElemRef/Select/ScrapingContext/
// CrawlingContext/Robot instances are only ever produced by the host and
// handed to scripts as call arguments, never constructed from script code.
//
// Constructors return a Go-backed object via vm.ToValue instead of
// attaching closures to call.This, so that a Record a script builds and
// passes to ctx.sendRecord can be exported straight back to *record.Record
// on the Go side.
func install(vm *goja.Runtime) {
	sws := vm.NewObject()

	must(sws.Set("Record", func(call goja.ConstructorCall) *goja.Object {
		return vm.ToValue(record.New()).(*goja.Object)
	}))

	must(sws.Set("Date", func(call goja.ConstructorCall) *goja.Object {
		dateStr := call.Argument(0).String()
		inFmt := call.Argument(1).String()
		t, err := dateutil.Parse(inFmt, dateStr)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("sws.Date: %w", err)))
		}
		return vm.ToValue(&jsDate{t: t}).(*goja.Object)
	}))

	location := vm.NewObject()
	must(location.Set("URL", string(LocationURL)))
	must(location.Set("PATH", string(LocationPath)))
	must(sws.Set("Location", location))

	sitemapEnum := vm.NewObject()
	must(sitemapEnum.Set("INDEX", string(sitemap.KindIndex)))
	must(sitemapEnum.Set("URL_SET", string(sitemap.KindURLSet)))
	must(sws.Set("Sitemap", sitemapEnum))

	must(vm.Set("sws", sws))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
