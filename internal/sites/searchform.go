package sites

import (
	"context"
	"time"

	"github.com/law-makers/planscrape/internal/scrape"
	"github.com/law-makers/planscrape/pkg/models"
)

// SearchForm is the family of portals searched through an HTML form with a
// pair of date fields. It backs date sites.
type SearchForm struct {
	Detail
	Listing

	// Form is a CSS selector for the search form on the site's SearchURL.
	Form      string
	FromField string
	ToField   string
	// Submit names the submit control to press, if the portal checks it.
	Submit string
	// Fixed holds extra form values sent with every search.
	Fixed map[string]string
}

// Name returns the family name.
func (f *SearchForm) Name() string { return "SearchForm" }

// IDBatch implements scrape.BatchSource.
func (f *SearchForm) IDBatch(ctx context.Context, s *scrape.Scraper, from, to time.Time) ([]models.IDRecord, error) {
	layout := requestDate(s, "02/01/2006")
	if _, err := s.Session().OpenFresh(ctx, s.Site().SearchURL); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(f.Fixed)+2)
	for k, v := range f.Fixed {
		fields[k] = v
	}
	fields[f.FromField] = from.Format(layout)
	fields[f.ToField] = to.Format(layout)

	page, err := s.Session().SubmitForm(ctx, f.Form, fields, f.Submit)
	if err != nil {
		return nil, err
	}
	return f.collect(ctx, s, page)
}
