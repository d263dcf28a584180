package httpsession

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	urlutil "github.com/law-makers/planscrape/internal/utils/url"
)

// Page is one fetched response. Body holds the bytes as received; the DOM
// is parsed on first use.
type Page struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
	FromCache   bool

	once   sync.Once
	doc    *goquery.Document
	docErr error
}

// Doc returns the parsed HTML document, decoding legacy charsets announced
// in the Content-Type header or a meta tag.
func (p *Page) Doc() (*goquery.Document, error) {
	p.once.Do(func() {
		r, err := charset.NewReader(bytes.NewReader(p.Body), p.ContentType)
		if err != nil {
			p.docErr = fmt.Errorf("decode %s: %w", p.URL, err)
			return
		}
		p.doc, p.docErr = goquery.NewDocumentFromReader(r)
	})
	return p.doc, p.docErr
}

// HTML returns the body as text, decoded to UTF-8 when possible.
func (p *Page) HTML() string {
	doc, err := p.Doc()
	if err != nil {
		return string(p.Body)
	}
	html, err := doc.Html()
	if err != nil {
		return string(p.Body)
	}
	return html
}

// Decoded returns the body converted to UTF-8 without re-serializing it,
// so regex templates see the markup as the portal wrote it.
func (p *Page) Decoded() string {
	r, err := charset.NewReader(bytes.NewReader(p.Body), p.ContentType)
	if err != nil {
		return string(p.Body)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return string(p.Body)
	}
	return string(b)
}

// Text returns the raw body as a string.
func (p *Page) Text() string {
	return string(p.Body)
}

// JSON decodes the body into a generic value. Numbers are kept as
// json.Number so record ids survive untouched.
func (p *Page) JSON() (any, error) {
	dec := json.NewDecoder(bytes.NewReader(p.Body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json from %s: %w", p.URL, err)
	}
	return v, nil
}

// IsJSON reports whether the response announced a JSON body.
func (p *Page) IsJSON() bool {
	return strings.Contains(strings.ToLower(p.ContentType), "json")
}

// Resolve turns ref into an absolute URL against the page location.
func (p *Page) Resolve(ref string) string {
	return urlutil.ResolveURL(p.URL, ref)
}
