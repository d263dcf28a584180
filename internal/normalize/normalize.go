// Package normalize cleans extracted records into the canonical shape every
// scraper returns.
package normalize

import (
	"html"
	"regexp"
	"strings"
	"time"
	"unicode"

	urlutil "github.com/law-makers/planscrape/internal/utils/url"
	"github.com/law-makers/planscrape/pkg/models"
)

var (
	// Tags start with a name, a slash or "!"; a bare < or > is text.
	tagRe     = regexp.MustCompile(`</?[A-Za-z!][^<>]*>`)
	ordinalRe = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
)

// lenientLayouts are tried after ISO and the site's own layout. Day-first
// forms come before month-first ones since the portals are British.
var lenientLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2006/01/02",
	"20060102",
	"2 January 2006",
	"2 Jan 2006",
	"Monday 2 January 2006",
	"Monday, 2 January 2006",
	"Mon 2 Jan 2006",
	"Mon, 2 Jan 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"2 Jan 06",
	"January 2 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
}

// Options carries the per-site and per-call inputs of Record.
type Options struct {
	Authority string
	SourceURL string
	// DateLayout is the site's response date layout in Go reference form.
	DateLayout string
	// UID and Reference fill in when the page itself did not carry them.
	UID       string
	Reference string
	Now       func() time.Time
}

// Record returns a normalized copy of rec. It never fails; values that
// cannot be normalized are dropped. Normalizing an already normalized
// record changes nothing.
func Record(rec models.Record, opts Options) models.Record {
	out := make(models.Record, len(rec)+4)
	for k, v := range rec {
		if nv, ok := Value(k, v, opts.DateLayout); ok {
			out[k] = nv
		}
	}

	if opts.UID != "" && out["uid"] == "" {
		out["uid"] = cleanUID(opts.UID)
	}
	if out["reference"] == "" {
		switch {
		case opts.Reference != "":
			out["reference"] = CleanText(opts.Reference)
		case out["uid"] != "":
			out["reference"] = out["uid"]
		}
	}

	deriveStartDate(out)

	if opts.Authority != "" {
		out["authority"] = opts.Authority
	}
	if opts.SourceURL != "" {
		out["source_url"] = urlutil.StripSessionID(stripSpace(opts.SourceURL))
	}
	if out["date_scraped"] == "" {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		out["date_scraped"] = now().Format(models.ISODate)
	}
	return out
}

// Value normalizes one field and reports whether it should be kept.
func Value(key, value, dateLayout string) (string, bool) {
	if strings.TrimSpace(value) == "" {
		return "", false
	}

	var v string
	switch {
	case key == "uid":
		v = cleanUID(value)
	case IsURLKey(key):
		v = urlutil.StripSessionID(stripSpace(value))
	case IsDateKey(key):
		d, ok := ParseDate(value, dateLayout)
		if !ok {
			return "", false
		}
		v = d.Format(models.ISODate)
	default:
		v = CleanText(value)
	}
	return v, v != ""
}

// IsDateKey reports whether key holds a date.
func IsDateKey(key string) bool {
	return strings.HasSuffix(key, "_date") || strings.HasPrefix(key, "date_")
}

// IsURLKey reports whether key holds a URL.
func IsURLKey(key string) bool {
	return key == "url" || strings.HasSuffix(key, "_url")
}

// CleanText turns a markup fragment into a single line of plain text. Tag
// removal and entity decoding repeat until stable so that encoded markup
// such as "&lt;b&gt;" cannot survive a second pass.
func CleanText(s string) string {
	s = fixpoint(s, func(s string) string {
		return html.UnescapeString(tagRe.ReplaceAllString(s, " "))
	})
	return strings.Join(strings.Fields(s), " ")
}

func cleanUID(s string) string {
	return fixpoint(s, func(s string) string {
		return stripSpace(CleanText(s))
	})
}

// fixpoint applies f until the value stops changing. Each step shortens the
// string in practice; the bound only guards against pathological entities.
func fixpoint(s string, f func(string) string) string {
	for range len(s) + 1 {
		next := f(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

// ParseDate parses a scraped date, trying ISO, then layout, then a list of
// common formats.
func ParseDate(value, layout string) (time.Time, bool) {
	s := CleanText(value)
	s = ordinalRe.ReplaceAllString(s, "$1")
	if s == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(models.ISODate, s); err == nil {
		return t, true
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, l := range lenientLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// deriveStartDate sets start_date to the earlier of date_received and
// date_validated. ISO strings order chronologically.
func deriveStartDate(r models.Record) {
	received, validated := r["date_received"], r["date_validated"]
	switch {
	case received != "" && validated != "":
		r["start_date"] = min(received, validated)
	case received != "":
		r["start_date"] = received
	case validated != "":
		r["start_date"] = validated
	}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
