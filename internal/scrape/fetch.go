package scrape

import (
	"context"
	"strings"

	"github.com/law-makers/planscrape/internal/geo"
	"github.com/law-makers/planscrape/internal/httpsession"
	"github.com/law-makers/planscrape/internal/normalize"
	"github.com/law-makers/planscrape/internal/scrapeerr"
	urlutil "github.com/law-makers/planscrape/internal/utils/url"
	"github.com/law-makers/planscrape/pkg/models"
)

// FetchApplication fetches, extracts and normalizes one application. The
// uid and url paths are tried in the site's order and the first page
// obtained is parsed.
func (s *Scraper) FetchApplication(ctx context.Context, uid, url string) models.FetchResult {
	rec, err := s.detail(ctx, uid, url)
	if err != nil {
		return models.FetchResult{ScrapeError: scrapeerr.Message(err)}
	}
	s.metrics.AddRecords(s.site.AuthorityName, "application", 1)
	return models.FetchResult{Record: rec}
}

// ShowApplication returns the page an application was scraped from, with
// links made absolute when makeAbs is set.
func (s *Scraper) ShowApplication(ctx context.Context, uid, url string, makeAbs bool) models.ShowResult {
	page, err := s.page(ctx, uid, url)
	if err != nil {
		return models.ShowResult{ScrapeError: scrapeerr.Message(err)}
	}
	html := page.Decoded()
	if makeAbs {
		if doc, err := page.Doc(); err == nil {
			if abs, err := urlutil.MakeLinksAbsolute(doc, page.URL); err == nil {
				html = abs
			}
		}
	}
	return models.ShowResult{HTML: html, URL: urlutil.StripSessionID(page.URL)}
}

// UpdateApplication refetches rec by its uid and returns it with the fresh
// fields written over the old ones. Fields not returned this time are kept.
func (s *Scraper) UpdateApplication(ctx context.Context, rec models.Record) models.FetchResult {
	uid := strings.TrimSpace(rec["uid"])
	if uid == "" {
		s.metrics.IncError(s.site.AuthorityName, string(scrapeerr.NoUID))
		return models.FetchResult{ScrapeError: scrapeerr.New(scrapeerr.NoUID, nil).Error()}
	}
	fresh, err := s.detail(ctx, uid, rec["url"])
	if err != nil {
		return models.FetchResult{ScrapeError: scrapeerr.Message(err)}
	}
	merged := rec.Clone()
	merged.Merge(fresh)
	return models.FetchResult{Record: merged}
}

type htmlPath struct {
	name string
	arg  string
	get  func(context.Context, *Scraper, string) (*httpsession.Page, error)
}

func (s *Scraper) paths(uid, url string) []htmlPath {
	byUID := htmlPath{"uid", uid, s.src.HTMLFromUID}
	byURL := htmlPath{"url", url, s.src.HTMLFromURL}
	switch {
	case s.site.UIDOnly:
		return []htmlPath{byUID}
	case s.site.URLFirst:
		return []htmlPath{byURL, byUID}
	}
	return []htmlPath{byUID, byURL}
}

// page returns the first page any path produces. When every path fails the
// last failure is returned, and EMPTY when none produced anything.
func (s *Scraper) page(ctx context.Context, uid, url string) (*httpsession.Page, error) {
	var lastErr error
	for _, p := range s.paths(uid, url) {
		if strings.TrimSpace(p.arg) == "" {
			continue
		}
		var page *httpsession.Page
		err := s.guard(ctx, "html_from_"+p.name, func(ctx context.Context) error {
			var err error
			page, err = p.get(ctx, s, strings.TrimSpace(p.arg))
			return err
		})
		if err != nil {
			lastErr = err
			continue
		}
		if page != nil && len(page.Body) > 0 {
			return page, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, scrapeerr.New(scrapeerr.Empty, nil)
}

func (s *Scraper) detail(ctx context.Context, uid, url string) (models.Record, error) {
	page, err := s.page(ctx, uid, url)
	if err != nil {
		return nil, err
	}

	var rec models.Record
	err = s.guard(ctx, "parse", func(context.Context) error {
		raw, err := s.parse(page)
		if err != nil {
			return err
		}
		rec = normalize.Record(raw, normalize.Options{
			Authority:  s.site.AuthorityName,
			SourceURL:  page.URL,
			DateLayout: s.site.ResponseDateLayout,
			UID:        uid,
			Now:        s.now,
		})
		geo.Enrich(rec)
		if missing := rec.Missing(); len(missing) > 0 {
			return scrapeerr.Newf(scrapeerr.NoDetail, "missing required fields: %s", strings.Join(missing, ", "))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Scraper) parse(page *httpsession.Page) (models.Record, error) {
	if p, ok := s.src.(DetailParser); ok {
		return p.ParseDetail(s, page)
	}
	if s.site.DetailJSON != nil && (page.IsJSON() || s.site.Detail == nil) {
		v, err := page.JSON()
		if err != nil {
			return nil, scrapeerr.New(scrapeerr.InvalidFormat, err)
		}
		return s.site.DetailJSON.Extract(v, page.URL)
	}
	if s.site.Detail == nil {
		return nil, scrapeerr.Newf(scrapeerr.OtherError, "%s has no detail template", s.site.AuthorityName)
	}
	return s.site.Detail.Extract(page.Decoded(), page.URL)
}
