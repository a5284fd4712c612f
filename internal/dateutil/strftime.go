// Package dateutil converts between strftime-style format strings and
// time.Time, in both directions, for the sws.Date script binding.
//
// The retrieved pack carries github.com/ncruces/go-strftime (pulled in
// transitively by modernc.org/sqlite in the teacher repo), but that
// library only formats a time.Time into a strftime string — it has no
// parse direction. Since sws.Date needs symmetric parse-then-format
// round-tripping (spec.md §8), both directions are implemented here
// against a shared specifier table instead of mixing a formatting
// library with a hand-rolled parser.
package dateutil

import (
	"fmt"
	"strings"
	"time"
)

// specifiers maps a strftime conversion letter to the equivalent Go
// reference-time layout fragment.
var specifiers = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'e': "_2",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'Z': "MST",
	'z': "-0700",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'j': "002",
	'%': "%",
}

// toGoLayout translates a strftime format string into a Go reference-time
// layout string.
func toGoLayout(strftimeFmt string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(strftimeFmt); i++ {
		c := strftimeFmt[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(strftimeFmt) {
			return "", fmt.Errorf("dateutil: trailing %% in format %q", strftimeFmt)
		}
		layout, ok := specifiers[strftimeFmt[i]]
		if !ok {
			return "", fmt.Errorf("dateutil: unsupported specifier %%%c in format %q", strftimeFmt[i], strftimeFmt)
		}
		b.WriteString(layout)
	}
	return b.String(), nil
}

// Parse interprets s according to a strftime-style format string.
func Parse(strftimeFmt, s string) (time.Time, error) {
	layout, err := toGoLayout(strftimeFmt)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("dateutil: parse %q with format %q: %w", s, strftimeFmt, err)
	}
	return t, nil
}

// Format renders t according to a strftime-style format string. Each
// specifier is rendered on its own and literal text is copied unchanged,
// so digits or words in the literal text are never read as Go layout
// fields.
func Format(strftimeFmt string, t time.Time) (string, error) {
	if _, err := toGoLayout(strftimeFmt); err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 0; i < len(strftimeFmt); i++ {
		c := strftimeFmt[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		i++
		b.WriteString(t.Format(specifiers[strftimeFmt[i]]))
	}
	return b.String(), nil
}
