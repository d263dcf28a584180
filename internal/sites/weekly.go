package sites

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/law-makers/planscrape/internal/scrape"
	"github.com/law-makers/planscrape/pkg/models"
)

// WeeklyList is the family of portals publishing one list per period,
// addressed by the period's end date (or start date with ByStart). It backs
// period sites.
type WeeklyList struct {
	Detail
	Listing

	// ListURL is a format string taking the escaped period date.
	ListURL string
	ByStart bool
}

// Name returns the family name.
func (w *WeeklyList) Name() string { return "WeeklyList" }

// IDPeriod implements scrape.PeriodSource.
func (w *WeeklyList) IDPeriod(ctx context.Context, s *scrape.Scraper, d time.Time) ([]models.IDRecord, time.Time, time.Time, error) {
	from, to, err := scrape.PeriodBounds(s.Site().PeriodType, d)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	key := to
	if w.ByStart {
		key = from
	}

	target := fmt.Sprintf(w.ListURL, url.QueryEscape(key.Format(requestDate(s, "02/01/2006"))))
	page, err := s.Session().OpenFresh(ctx, target)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	recs, err := w.collect(ctx, s, page)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	return recs, from, to, nil
}
