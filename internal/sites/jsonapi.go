package sites

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/law-makers/planscrape/internal/extract"
	"github.com/law-makers/planscrape/internal/scrape"
	"github.com/law-makers/planscrape/internal/scrapeerr"
	"github.com/law-makers/planscrape/pkg/models"
)

// JSONAPI is the family of portals exposing applications through a JSON
// API keyed by a running record number. It backs list sites.
type JSONAPI struct {
	Detail

	// RangeURL is a format string taking the first and last record number.
	RangeURL string
	Results  extract.JSONConfig

	// NumberPath locates the record number inside each result; defaults
	// to "id".
	NumberPath []string

	// LatestURL returns a document holding the highest record number at
	// LatestPath.
	LatestURL  string
	LatestPath []string
}

// Name returns the family name.
func (j *JSONAPI) Name() string { return "JSONAPI" }

// IDRecords implements scrape.RecordSource.
func (j *JSONAPI) IDRecords(ctx context.Context, s *scrape.Scraper, from, to int) ([]models.IDRecord, int, error) {
	page, err := s.Session().OpenFresh(ctx, fmt.Sprintf(j.RangeURL, from, to))
	if err != nil {
		return nil, 0, err
	}
	v, err := jsonBody(page)
	if err != nil {
		return nil, 0, err
	}
	rows, err := j.Results.ExtractAll(v, page.URL)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.IDRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, scrape.IDFromRecord(r, ""))
	}
	return out, j.lastNumber(v, from, to), nil
}

// lastNumber is the highest record number in the listing, from-1 for an
// empty listing and to when no item carries a readable number.
func (j *JSONAPI) lastNumber(v any, from, to int) int {
	path := j.NumberPath
	if len(path) == 0 {
		path = []string{"id"}
	}
	block, _ := extract.Lookup(v, j.Results.DataBlock)
	items, _ := block.([]any)
	if len(items) == 0 {
		return from - 1
	}
	last := -1
	for _, item := range items {
		raw, ok := extract.Lookup(item, path)
		if !ok {
			continue
		}
		str, _ := extract.Scalar(raw)
		if n, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
			last = max(last, n)
		}
	}
	if last < 0 {
		return to
	}
	return last
}

// MaxSequence implements scrape.MaxSequencer.
func (j *JSONAPI) MaxSequence(ctx context.Context, s *scrape.Scraper) (int, error) {
	page, err := s.Session().OpenFresh(ctx, j.LatestURL)
	if err != nil {
		return 0, err
	}
	v, err := jsonBody(page)
	if err != nil {
		return 0, err
	}
	raw, ok := extract.Lookup(v, j.LatestPath)
	if !ok {
		return 0, scrapeerr.Newf(scrapeerr.NoData, "no latest record at %s", strings.Join(j.LatestPath, "."))
	}
	str, _ := extract.Scalar(raw)
	n, err := strconv.Atoi(strings.TrimSpace(str))
	if err != nil {
		return 0, scrapeerr.New(scrapeerr.InvalidFormat, fmt.Errorf("latest record number %q: %w", str, err))
	}
	return n, nil
}
