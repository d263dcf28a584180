// Package extract turns fetched documents into flat records using
// site-supplied templates.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	urlutil "github.com/law-makers/planscrape/internal/utils/url"
	"github.com/law-makers/planscrape/pkg/models"
)

// BlockKey is the field a data block template yields. A data block template
// that matches without it selects the whole fragment.
const BlockKey = "block"

// Template matches a document fragment and yields a flat record. baseURL is
// used to resolve relative links found in the fragment.
type Template interface {
	Match(fragment, baseURL string) (models.Record, bool)
}

// ListTemplate yields one record per repeated element of a fragment, as on a
// search results page.
type ListTemplate interface {
	MatchAll(fragment, baseURL string) []models.Record
}

// Field describes how one record key is read from an HTML fragment.
type Field struct {
	Key string
	// Selector is a CSS selector relative to the scope. Empty means the
	// scope element itself.
	Selector string
	// Label finds a caption cell (th, dt, label...) whose text equals Label
	// and reads the element after it. Selector then applies inside that
	// element.
	Label string
	// Attr selects what is read: "" for text, "html" for inner HTML, or an
	// attribute name. href, src and action values are made absolute.
	Attr string
	// Pattern narrows the value to its first capture group, or the whole
	// match when it has none. A value the pattern does not match is absent.
	Pattern  *regexp.Regexp
	Optional bool
}

// Selector is a goquery based template. Without fields it matches when the
// scope exists and yields the scope's outer HTML as the block.
type Selector struct {
	Scope  string
	Rows   string
	Fields []Field
}

// Match implements Template.
func (s *Selector) Match(fragment, baseURL string) (models.Record, bool) {
	root, ok := s.root(fragment)
	if !ok {
		return nil, false
	}
	if len(s.Fields) == 0 {
		html, err := goquery.OuterHtml(root)
		if err != nil {
			return nil, false
		}
		return models.Record{BlockKey: html}, true
	}
	return s.matchFields(root, baseURL)
}

// MatchAll implements ListTemplate. Each element matching Rows inside the
// scope is matched against the fields; rows missing a required field are
// skipped.
func (s *Selector) MatchAll(fragment, baseURL string) []models.Record {
	root, ok := s.root(fragment)
	if !ok || s.Rows == "" {
		return nil
	}
	var out []models.Record
	root.Find(s.Rows).Each(func(_ int, row *goquery.Selection) {
		if rec, ok := s.matchFields(row, baseURL); ok {
			out = append(out, rec)
		}
	})
	return out
}

func (s *Selector) root(fragment string) (*goquery.Selection, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, false
	}
	root := doc.Selection
	if s.Scope != "" {
		root = doc.Find(s.Scope).First()
		if root.Length() == 0 {
			return nil, false
		}
	}
	return root, true
}

func (s *Selector) matchFields(root *goquery.Selection, baseURL string) (models.Record, bool) {
	rec := make(models.Record, len(s.Fields))
	for _, f := range s.Fields {
		v, ok := f.read(root, baseURL)
		if !ok || strings.TrimSpace(v) == "" {
			if f.Optional {
				continue
			}
			return nil, false
		}
		rec[f.Key] = v
	}
	return rec, true
}

func (f Field) read(root *goquery.Selection, baseURL string) (string, bool) {
	var sel *goquery.Selection
	switch {
	case f.Label != "":
		sel = findLabelled(root, f.Label)
		if sel != nil && f.Selector != "" {
			sel = sel.Find(f.Selector).First()
		}
	case f.Selector != "":
		sel = root.Find(f.Selector).First()
	default:
		sel = root
	}
	if sel == nil || sel.Length() == 0 {
		return "", false
	}

	var v string
	switch f.Attr {
	case "":
		v = sel.Text()
	case "html":
		h, err := sel.Html()
		if err != nil {
			return "", false
		}
		v = h
	default:
		a, ok := sel.Attr(f.Attr)
		if !ok {
			return "", false
		}
		v = a
	}

	if f.Pattern != nil {
		m := f.Pattern.FindStringSubmatch(v)
		if m == nil {
			return "", false
		}
		v = m[0]
		if len(m) > 1 {
			v = m[1]
		}
	}

	if isLinkAttr(f.Attr) || isURLKey(f.Key) {
		v = urlutil.ResolveURL(baseURL, v)
	}
	return v, true
}

var labelTags = "th, td, dt, label, span, strong, b, div"

func findLabelled(root *goquery.Selection, label string) *goquery.Selection {
	want := normalizeLabel(label)
	var value *goquery.Selection
	root.Find(labelTags).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 1 || normalizeLabel(s.Text()) != want {
			return true
		}
		next := s.Next()
		if next.Length() == 0 {
			return true
		}
		value = next
		return false
	})
	return value
}

func normalizeLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ": ")
	return strings.ToLower(s)
}

func isLinkAttr(attr string) bool {
	return attr == "href" || attr == "src" || attr == "action"
}

func isURLKey(key string) bool {
	return key == "url" || strings.HasSuffix(key, "_url")
}

// Regex is a template backed by a regular expression. Named groups become
// record keys. A pattern without named groups yields its first group (or the
// whole match) as the block.
type Regex struct {
	Pattern *regexp.Regexp
}

// NewRegex compiles pattern into a Regex template. It panics on a bad
// pattern, like regexp.MustCompile, since patterns are site constants.
func NewRegex(pattern string) *Regex {
	return &Regex{Pattern: regexp.MustCompile(pattern)}
}

// Match implements Template.
func (r *Regex) Match(fragment, baseURL string) (models.Record, bool) {
	m := r.Pattern.FindStringSubmatch(fragment)
	if m == nil {
		return nil, false
	}
	return r.record(m, baseURL), true
}

// MatchAll implements ListTemplate.
func (r *Regex) MatchAll(fragment, baseURL string) []models.Record {
	var out []models.Record
	for _, m := range r.Pattern.FindAllStringSubmatch(fragment, -1) {
		out = append(out, r.record(m, baseURL))
	}
	return out
}

func (r *Regex) record(m []string, baseURL string) models.Record {
	rec := models.Record{}
	named := false
	for i, name := range r.Pattern.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		named = true
		if m[i] == "" {
			continue
		}
		v := m[i]
		if isURLKey(name) {
			v = urlutil.ResolveURL(baseURL, v)
		}
		rec[name] = v
	}
	if !named {
		rec[BlockKey] = m[0]
		if len(m) > 1 {
			rec[BlockKey] = m[1]
		}
	}
	return rec
}
