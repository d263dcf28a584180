package scrape

import (
	"context"
	"time"

	"github.com/law-makers/planscrape/internal/httpsession"
	"github.com/law-makers/planscrape/pkg/models"
)

// Source is the site-specific half of a scraper: how to reach one
// application's page. Everything else is driven by the Site constants.
// A hook may return a nil page and nil error to mean "this path has
// nothing", which lets the fetch fall through to the next path.
type Source interface {
	HTMLFromUID(ctx context.Context, s *Scraper, uid string) (*httpsession.Page, error)
	HTMLFromURL(ctx context.Context, s *Scraper, url string) (*httpsession.Page, error)
}

// DetailParser replaces the Site's extraction templates for sites whose
// detail pages need custom handling.
type DetailParser interface {
	ParseDetail(s *Scraper, page *httpsession.Page) (models.Record, error)
}

// BatchSource lists the applications of a date window, both ends inclusive.
type BatchSource interface {
	IDBatch(ctx context.Context, s *Scraper, from, to time.Time) ([]models.IDRecord, error)
}

// PeriodSource lists the applications of the fixed period containing d and
// returns the bounds of that period.
type PeriodSource interface {
	IDPeriod(ctx context.Context, s *Scraper, d time.Time) (recs []models.IDRecord, from, to time.Time, err error)
}

// RecordSource lists the applications whose sequence numbers fall in
// [from, to]. last is the highest sequence number the listing actually
// reached: from-1 when it held nothing, to when the listing does not say.
type RecordSource interface {
	IDRecords(ctx context.Context, s *Scraper, from, to int) (recs []models.IDRecord, last int, err error)
}

// MaxSequencer reports the highest sequence number a list site has
// published.
type MaxSequencer interface {
	MaxSequence(ctx context.Context, s *Scraper) (int, error)
}
