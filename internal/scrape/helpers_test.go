package scrape

import (
	"context"
	"strconv"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/law-makers/planscrape/internal/httpsession"
	"github.com/law-makers/planscrape/internal/retry"
	"github.com/law-makers/planscrape/pkg/models"
)

// mockSource implements every hook; the strategy picks what it needs.
type mockSource struct {
	batch   func(from, to time.Time) ([]models.IDRecord, error)
	period  func(d time.Time) ([]models.IDRecord, time.Time, time.Time, error)
	records func(from, to int) ([]models.IDRecord, error)
	max     func() (int, error)
	byUID   func(ctx context.Context, s *Scraper, uid string) (*httpsession.Page, error)
	byURL   func(ctx context.Context, s *Scraper, url string) (*httpsession.Page, error)

	windows [][2]string
}

func (m *mockSource) IDBatch(_ context.Context, _ *Scraper, from, to time.Time) ([]models.IDRecord, error) {
	m.windows = append(m.windows, [2]string{from.Format(models.ISODate), to.Format(models.ISODate)})
	if m.batch == nil {
		return nil, nil
	}
	return m.batch(from, to)
}

func (m *mockSource) IDPeriod(_ context.Context, _ *Scraper, d time.Time) ([]models.IDRecord, time.Time, time.Time, error) {
	return m.period(d)
}

func (m *mockSource) IDRecords(_ context.Context, _ *Scraper, from, to int) ([]models.IDRecord, int, error) {
	m.windows = append(m.windows, [2]string{models.NumSeq(from).String(), models.NumSeq(to).String()})
	if m.records == nil {
		return nil, from - 1, nil
	}
	recs, err := m.records(from, to)
	return recs, lastOf(recs, from, to), err
}

// lastOf mirrors a listing that reports record numbers: the highest numeric
// uid, from-1 when empty and to when no uid is numeric.
func lastOf(recs []models.IDRecord, from, to int) int {
	if len(recs) == 0 {
		return from - 1
	}
	last := -1
	for _, r := range recs {
		if n, err := strconv.Atoi(r.UID); err == nil {
			last = max(last, n)
		}
	}
	if last < 0 {
		return to
	}
	return last
}

func (m *mockSource) MaxSequence(context.Context, *Scraper) (int, error) {
	if m.max == nil {
		return 0, nil
	}
	return m.max()
}

func (m *mockSource) HTMLFromUID(ctx context.Context, s *Scraper, uid string) (*httpsession.Page, error) {
	if m.byUID == nil {
		return nil, nil
	}
	return m.byUID(ctx, s, uid)
}

func (m *mockSource) HTMLFromURL(ctx context.Context, s *Scraper, url string) (*httpsession.Page, error) {
	if m.byURL == nil {
		return nil, nil
	}
	return m.byURL(ctx, s, url)
}

func day(s string) time.Time {
	t, err := time.Parse(models.ISODate, s)
	if err != nil {
		panic(err)
	}
	return t
}

func clock(s string) func() time.Time {
	return func() time.Time { return day(s).Add(15 * time.Hour) }
}

func ids(uids ...string) []models.IDRecord {
	out := make([]models.IDRecord, len(uids))
	for i, u := range uids {
		out[i] = models.IDRecord{UID: u}
	}
	return out
}

type testingT interface {
	require.TestingT
	Helper()
}

func newTestScraper(t testingT, site Site, src Source, now func() time.Time) (*Scraper, *httpmock.MockTransport) {
	t.Helper()
	if site.AuthorityName == "" {
		site.AuthorityName = "MockA"
	}
	mock := httpmock.NewMockTransport()
	nop := zerolog.Nop()
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 1

	s, err := New(site, src, Options{
		Logger:    &nop,
		Now:       now,
		Transport: mock,
		Retry:     &cfg,
	})
	require.NoError(t, err)
	return s, mock
}
