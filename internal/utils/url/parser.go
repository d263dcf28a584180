package urlutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var jsessionRe = regexp.MustCompile(`(?i);jsessionid=[^?#]*`)

// ValidateURL checks that urlStr is an absolute http(s) URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: must be http or https, got %s", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}

	return nil
}

// ResolveURL resolves a possibly-relative href against a base URL
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(u).String()
}

// StripSessionID removes Java servlet ";jsessionid=..." path parameters.
func StripSessionID(urlStr string) string {
	return jsessionRe.ReplaceAllString(urlStr, "")
}

var linkAttrs = map[string]string{
	"a":      "href",
	"link":   "href",
	"img":    "src",
	"script": "src",
	"form":   "action",
	"iframe": "src",
}

// MakeLinksAbsolute rewrites href/src/action attributes of doc against base
// and returns the rendered document.
func MakeLinksAbsolute(doc *goquery.Document, base string) (string, error) {
	for tag, attr := range linkAttrs {
		doc.Find(tag + "[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			v, _ := s.Attr(attr)
			if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(strings.ToLower(v), "javascript:") {
				return
			}
			s.SetAttr(attr, ResolveURL(base, v))
		})
	}
	return doc.Html()
}
