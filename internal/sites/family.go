// Package sites holds the portal families shared by many authorities and
// the table of authorities registered against them.
package sites

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/law-makers/planscrape/internal/extract"
	"github.com/law-makers/planscrape/internal/httpsession"
	"github.com/law-makers/planscrape/internal/scrape"
	"github.com/law-makers/planscrape/internal/scrapeerr"
	"github.com/law-makers/planscrape/pkg/models"
)

// DefaultMaxPages bounds how many result pages one search follows.
const DefaultMaxPages = 50

// Listing describes a search results page: where the results sit, how each
// row reads, what an empty search looks like and how to reach the next page.
type Listing struct {
	Results extract.Config
	Rows    extract.ListTemplate
	// NoResults matches the text a portal shows for a search with no hits.
	// Without it a page lacking the results block is NO_DATA.
	NoResults *regexp.Regexp
	// NextLink is the text of the pagination link. Empty means one page.
	NextLink string
	MaxPages int
}

// collect reads every page of a listing starting at first. Pages after the
// first are reached by following NextLink on the session's current page.
func (l *Listing) collect(ctx context.Context, s *scrape.Scraper, first *httpsession.Page) ([]models.IDRecord, error) {
	maxPages := l.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var out []models.IDRecord
	page := first
	for n := 1; ; n++ {
		html := page.Decoded()
		if l.NoResults != nil && l.NoResults.MatchString(html) {
			break
		}
		rows, err := l.Results.ExtractAll(html, page.URL, l.Rows)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, scrape.IDFromRecord(r, ""))
		}

		if l.NextLink == "" {
			break
		}
		if n >= maxPages {
			s.Logger().Warn().Int("pages", n).Str("url", page.URL).Msg("Page limit reached")
			break
		}
		href, err := s.Session().FindLink(l.NextLink)
		if err != nil {
			break
		}
		if page, err = s.Session().OpenFresh(ctx, href); err != nil {
			return nil, err
		}
		s.Logger().Debug().Int("page", n+1).Int("records", len(out)).Msg("Following next page")
	}
	return out, nil
}

// Detail locates application pages. URL is a format string taking the
// escaped uid; without it a uid cannot be looked up directly.
type Detail struct {
	URL string
}

// HTMLFromUID implements scrape.Source.
func (d Detail) HTMLFromUID(ctx context.Context, s *scrape.Scraper, uid string) (*httpsession.Page, error) {
	if d.URL == "" {
		return nil, nil
	}
	return s.Session().Open(ctx, fmt.Sprintf(d.URL, url.QueryEscape(uid)))
}

// HTMLFromURL implements scrape.Source.
func (d Detail) HTMLFromURL(ctx context.Context, s *scrape.Scraper, rawURL string) (*httpsession.Page, error) {
	return s.Session().Open(ctx, rawURL)
}

func requestDate(s *scrape.Scraper, layout string) string {
	if l := s.Site().RequestDateLayout; l != "" {
		return l
	}
	return layout
}

func jsonBody(page *httpsession.Page) (any, error) {
	v, err := page.JSON()
	if err != nil {
		return nil, scrapeerr.New(scrapeerr.InvalidFormat, err)
	}
	return v, nil
}
