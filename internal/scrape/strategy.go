package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/law-makers/planscrape/internal/retry"
	"github.com/law-makers/planscrape/internal/scrapeerr"
	"github.com/law-makers/planscrape/pkg/models"
)

// window is the slice of sequence space one inner call covered and the
// records found in it. seen, when set, is the highest sequence number the
// source confirmed as published.
type window struct {
	from, to models.Seq
	records  []models.IDRecord
	seen     models.Seq
	hasSeen  bool
}

// strategy drives iteration over a sequence space. step fetches the window
// that starts at cur and extends towards hi (forward) or lo (backward).
type strategy interface {
	name() string
	kind() models.SeqKind
	minSequence(ctx context.Context, s *Scraper) (models.Seq, error)
	maxSequence(ctx context.Context, s *Scraper) (models.Seq, error)
	currentStart(s *Scraper, lo, hi models.Seq) models.Seq
	step(ctx context.Context, s *Scraper, cur, lo, hi models.Seq, forward bool) (window, error)
	// overrunsMax reports whether forward iteration may probe past the
	// maximum sequence, which for list sites is only an estimate.
	overrunsMax() bool
}

func strategyFor(site Site, src Source) (strategy, error) {
	switch site.BaseType {
	case models.BaseDate:
		bs, ok := src.(BatchSource)
		if !ok {
			return nil, fmt.Errorf("%s: date source must implement IDBatch", site.AuthorityName)
		}
		return &dateStrategy{src: bs}, nil
	case models.BasePeriod:
		ps, ok := src.(PeriodSource)
		if !ok {
			return nil, fmt.Errorf("%s: period source must implement IDPeriod", site.AuthorityName)
		}
		return &periodStrategy{src: ps}, nil
	case models.BaseList:
		ms, ok := src.(MaxSequencer)
		if !ok {
			return nil, fmt.Errorf("%s: list source must implement MaxSequence", site.AuthorityName)
		}
		if site.Annual {
			return &annualStrategy{listStrategy{max: ms}}, nil
		}
		rs, ok := src.(RecordSource)
		if !ok {
			return nil, fmt.Errorf("%s: list source must implement IDRecords", site.AuthorityName)
		}
		return &listStrategy{src: rs, max: ms}, nil
	case models.BaseBase:
		return baseStrategy{}, nil
	}
	return nil, fmt.Errorf("%s: unsupported base type %q", site.AuthorityName, site.BaseType)
}

// roundUp rounds n up to a multiple of m.
func roundUp(n, m int) int {
	if m <= 0 {
		return n
	}
	return ((n + m - 1) / m) * m
}

// span returns the window [cur, cur+size-1] clamped to hi going forward
// or [cur-size+1, cur] clamped to lo going backward.
func span(cur, lo, hi models.Seq, size int, forward bool) (models.Seq, models.Seq) {
	if forward {
		return cur, models.MinSeq(cur.Add(size-1), hi)
	}
	return models.MaxSeq(cur.Add(-(size - 1)), lo), cur
}

type dateStrategy struct {
	src BatchSource
}

func (d *dateStrategy) name() string         { return string(models.BaseDate) }
func (d *dateStrategy) kind() models.SeqKind { return models.SeqDate }
func (d *dateStrategy) overrunsMax() bool    { return false }

func (d *dateStrategy) minSequence(_ context.Context, s *Scraper) (models.Seq, error) {
	return models.ParseSeq(models.SeqDate, s.site.DataStartTarget)
}

func (d *dateStrategy) maxSequence(_ context.Context, s *Scraper) (models.Seq, error) {
	return models.DateSeq(s.now()), nil
}

func (d *dateStrategy) currentStart(s *Scraper, lo, hi models.Seq) models.Seq {
	n := roundUp(s.site.CurrentSpan, s.site.BatchSize)
	return models.MaxSeq(lo, hi.Add(-(n - 1)))
}

func (d *dateStrategy) fetch(ctx context.Context, s *Scraper, from, to models.Seq) (window, error) {
	recs, err := d.src.IDBatch(ctx, s, from.Date(), to.Date())
	if err != nil {
		return window{}, err
	}
	return window{from: from, to: to, records: recs}, nil
}

// step widens a backward window that comes back without a data block,
// first to twice the batch and then to half of it, since historical
// searches are often sparse.
func (d *dateStrategy) step(ctx context.Context, s *Scraper, cur, lo, hi models.Seq, forward bool) (window, error) {
	batch := s.site.BatchSize
	from, to := span(cur, lo, hi, batch, forward)
	w, err := d.fetch(ctx, s, from, to)
	if forward || err == nil || !errors.Is(err, scrapeerr.ErrNoData) || !from.After(lo) {
		return w, err
	}

	for _, size := range []int{2 * batch, batch / 2} {
		if size < 1 {
			continue
		}
		from, to = span(cur, lo, hi, size, false)
		s.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Retrying empty window with a new size")
		w, err = d.fetch(ctx, s, from, to)
		if err == nil || !errors.Is(err, scrapeerr.ErrNoData) {
			return w, err
		}
	}
	return w, err
}

// baseStrategy backs scrapers that can only fetch known applications.
// Every gather fails with OTHER_ERROR.
type baseStrategy struct{}

var errNoGather = scrapeerr.Newf(scrapeerr.OtherError, "scraper has no id gathering strategy")

func (baseStrategy) name() string         { return string(models.BaseBase) }
func (baseStrategy) kind() models.SeqKind { return models.SeqDate }
func (baseStrategy) overrunsMax() bool    { return false }

func (baseStrategy) minSequence(_ context.Context, s *Scraper) (models.Seq, error) {
	return models.ParseSeq(models.SeqDate, s.site.DataStartTarget)
}

func (baseStrategy) maxSequence(context.Context, *Scraper) (models.Seq, error) {
	return models.Seq{}, errNoGather
}

func (baseStrategy) currentStart(_ *Scraper, lo, _ models.Seq) models.Seq { return lo }

func (baseStrategy) step(context.Context, *Scraper, models.Seq, models.Seq, models.Seq, bool) (window, error) {
	return window{}, errNoGather
}

type periodStrategy struct {
	src PeriodSource
}

func (p *periodStrategy) name() string         { return string(models.BasePeriod) }
func (p *periodStrategy) kind() models.SeqKind { return models.SeqDate }
func (p *periodStrategy) overrunsMax() bool    { return false }

func (p *periodStrategy) minSequence(_ context.Context, s *Scraper) (models.Seq, error) {
	return models.ParseSeq(models.SeqDate, s.site.DataStartTarget)
}

func (p *periodStrategy) maxSequence(_ context.Context, s *Scraper) (models.Seq, error) {
	return models.DateSeq(s.now()), nil
}

func (p *periodStrategy) currentStart(s *Scraper, lo, hi models.Seq) models.Seq {
	return models.MaxSeq(lo, hi.Add(-(s.site.CurrentSpan - 1)))
}

// step asks for the period containing cur. An empty period is a valid
// answer as long as its bounds contain cur.
func (p *periodStrategy) step(ctx context.Context, s *Scraper, cur, _, _ models.Seq, _ bool) (window, error) {
	recs, from, to, err := p.src.IDPeriod(ctx, s, cur.Date())
	if err != nil {
		return window{}, err
	}
	if from.IsZero() || to.IsZero() {
		return window{}, scrapeerr.Newf(scrapeerr.OtherError, "period containing %s has no bounds", cur)
	}
	f, t := models.DateSeq(from), models.DateSeq(to)
	if cur.Before(f) || cur.After(t) {
		return window{}, scrapeerr.Newf(scrapeerr.OtherError, "period %s..%s does not contain %s", f, t, cur)
	}
	return window{from: f, to: t, records: recs}, nil
}

type listStrategy struct {
	src RecordSource
	max MaxSequencer
}

func (l *listStrategy) name() string         { return string(models.BaseList) }
func (l *listStrategy) kind() models.SeqKind { return models.SeqNum }
func (l *listStrategy) overrunsMax() bool    { return true }

func (l *listStrategy) minSequence(_ context.Context, s *Scraper) (models.Seq, error) {
	return models.ParseSeq(models.SeqNum, s.site.DataStartTarget)
}

func (l *listStrategy) maxSequence(ctx context.Context, s *Scraper) (models.Seq, error) {
	n, err := l.max.MaxSequence(ctx, s)
	if err != nil {
		return models.Seq{}, err
	}
	return models.NumSeq(n), nil
}

func (l *listStrategy) currentStart(s *Scraper, lo, hi models.Seq) models.Seq {
	n := roundUp(s.site.CurrentSpan, s.site.BatchSize)
	return models.MaxSeq(lo, hi.Add(-(n - 1)))
}

func (l *listStrategy) step(ctx context.Context, s *Scraper, cur, lo, hi models.Seq, forward bool) (window, error) {
	from, to := span(cur, lo, hi, s.site.BatchSize, forward)
	recs, last, err := l.src.IDRecords(ctx, s, from.Num(), to.Num())
	if err != nil {
		return window{}, err
	}
	return window{from: from, to: to, records: recs, seen: models.NumSeq(last), hasSeen: true}, nil
}

// annualStrategy walks YYYY/NNNN uids by probing each candidate's detail
// page. Index zero is never a uid and is skipped.
type annualStrategy struct {
	listStrategy
}

func (a *annualStrategy) name() string { return "AnnualList" }

func (a *annualStrategy) step(ctx context.Context, s *Scraper, cur, lo, hi models.Seq, forward bool) (window, error) {
	from, to := span(cur, lo, hi, s.site.BatchSize, forward)

	var (
		recs []models.IDRecord
		last = -1
	)
	probe := func(n int) error {
		year, index := s.site.SplitAnnual(n)
		if index == 0 {
			return nil
		}
		uid := fmt.Sprintf(s.site.UIDFormat, year, index)
		rec, err := s.detail(ctx, uid, "")
		if err != nil {
			if isMissing(err) && !s.site.FailMissing {
				return nil
			}
			return err
		}
		recs = append(recs, IDFromRecord(rec, uid))
		last = max(last, n)
		return nil
	}

	if forward {
		for n := from.Num(); n <= to.Num(); n++ {
			if err := probe(n); err != nil {
				return window{}, err
			}
		}
	} else {
		for n := to.Num(); n >= from.Num(); n-- {
			if err := probe(n); err != nil {
				return window{}, err
			}
		}
	}

	// A full window of misses going forward means the year's numbering has
	// run out, so the rest of the year is skipped.
	if forward && len(recs) == 0 && to.Num()-from.Num()+1 == s.site.BatchSize {
		year, _ := s.site.SplitAnnual(to.Num())
		next := s.site.AnnualSeq(year+1, 0)
		if hiYear, _ := s.site.SplitAnnual(hi.Num()); year < hiYear && next-1 > to.Num() {
			to = models.NumSeq(next - 1)
		}
	}
	w := window{from: from, to: to, records: recs}
	if last >= 0 {
		w.seen, w.hasSeen = models.NumSeq(last), true
	}
	return w, nil
}

// SplitAnnual splits an annual sequence number into year and index.
func (s Site) SplitAnnual(n int) (year, index int) {
	return n / s.MaxIndex, n % s.MaxIndex
}

// AnnualSeq joins a year and index into an annual sequence number.
func (s Site) AnnualSeq(year, index int) int {
	return year*s.MaxIndex + index
}

// isMissing reports whether err means the probed record does not exist.
func isMissing(err error) bool {
	switch scrapeerr.TagOf(err) {
	case scrapeerr.NoData, scrapeerr.NoDetail, scrapeerr.InvalidFormat, scrapeerr.Empty:
		return true
	}
	var sc retry.StatusCoder
	return errors.As(err, &sc) && (sc.GetStatusCode() == http.StatusNotFound || sc.GetStatusCode() == http.StatusGone)
}

// IDFromRecord reduces a listing or detail record to an ID record, keeping
// the link and the dates used for ordering. uid is used when rec has none.
func IDFromRecord(rec models.Record, uid string) models.IDRecord {
	id := models.IDRecord{UID: rec["uid"], Extra: map[string]string{}}
	if id.UID == "" {
		id.UID = uid
	}
	for _, k := range []string{"url", "reference", "date_received", "date_validated"} {
		if v := rec[k]; v != "" {
			id.Extra[k] = v
		}
	}
	if id.Extra["url"] == "" && rec["source_url"] != "" {
		id.Extra["url"] = rec["source_url"]
	}
	return id
}
