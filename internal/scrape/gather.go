package scrape

import (
	"context"
	"errors"
	"fmt"

	"github.com/law-makers/planscrape/internal/normalize"
	"github.com/law-makers/planscrape/internal/scrapeerr"
	"github.com/law-makers/planscrape/pkg/models"
)

// ErrBadRange is returned when a backward gather is asked for from ≥ to.
var ErrBadRange = errors.New("from must be before to")

// GatherIDs parses up to two sequence arguments and gathers ids: none
// refreshes the current span, one gathers forward from just after it and
// two gather backward over [from, to].
func (s *Scraper) GatherIDs(ctx context.Context, args ...string) (models.Batch, error) {
	if len(args) > 2 {
		return models.Batch{}, fmt.Errorf("gather_ids takes at most two arguments, got %d", len(args))
	}
	seqs := make([]*models.Seq, 2)
	for i, a := range args {
		seq, err := models.ParseSeq(s.strategy.kind(), a)
		if err != nil {
			return models.Batch{}, err
		}
		seqs[i] = &seq
	}
	return s.Gather(ctx, seqs[0], seqs[1])
}

// GatherCurrentIDs gathers forward over the most recent span.
func (s *Scraper) GatherCurrentIDs(ctx context.Context) models.Batch {
	b, _ := s.Gather(ctx, nil, nil)
	return b
}

// Gather is GatherIDs with parsed bounds; either may be nil. Site failures
// come back in the envelope. The error return is reserved for caller
// mistakes.
func (s *Scraper) Gather(ctx context.Context, from, to *models.Seq) (models.Batch, error) {
	for _, b := range []*models.Seq{from, to} {
		if b != nil && b.Kind() != s.strategy.kind() {
			return models.Batch{}, fmt.Errorf("%s iterates over %s sequences", s.site.AuthorityName, kindName(s.strategy.kind()))
		}
	}
	if from != nil && to != nil && !from.Before(*to) {
		return models.Batch{}, ErrBadRange
	}

	minSeq, err := s.MinSequence(ctx)
	if err != nil {
		return models.FailedBatch(scrapeerr.Message(err)), nil
	}
	maxSeq, err := s.MaxSequence(ctx)
	if err != nil {
		return models.FailedBatch(scrapeerr.Message(err)), nil
	}

	var start, lo, hi models.Seq
	forward := to == nil
	switch {
	case from == nil && to == nil:
		start = s.strategy.currentStart(s, minSeq, maxSeq)
		lo, hi = start, maxSeq
	case to == nil:
		start = models.MaxSeq(from.Add(1), minSeq)
		lo, hi = start, maxSeq
	default:
		lo = minSeq
		if from != nil {
			lo = models.MaxSeq(*from, minSeq)
		}
		start = models.MinSeq(*to, maxSeq)
		hi = start
		if start.Before(lo) {
			err := scrapeerr.Newf(scrapeerr.OtherError, "range %s..%s lies outside %s..%s", lo, *to, minSeq, maxSeq)
			return models.FailedBatch(err.Error()), nil
		}
	}

	s.logger.Debug().
		Str("strategy", s.strategy.name()).
		Bool("forward", forward).
		Str("start", start.String()).
		Str("lo", lo.String()).
		Str("hi", hi.String()).
		Msg("Gathering ids")
	return s.iterate(ctx, start, lo, hi, forward), nil
}

// iterate is the window loop. It stops at the goal, at the bound or at the
// first failure; a failure before any records were found is returned in the
// envelope, a later one ends the loop with what was covered so far.
func (s *Scraper) iterate(ctx context.Context, start, lo, hi models.Seq, forward bool) models.Batch {
	var (
		result   = []models.IDRecord{}
		covered  bool
		bFrom    models.Seq
		bTo      models.Seq
		cur      = start
		stratTag = s.strategy.name()
	)

	for i := 0; ; i++ {
		if i >= s.site.MaxWindows {
			s.logger.Warn().Int("windows", i).Msg("Window limit reached")
			break
		}
		if !forward && cur.Before(lo) {
			break
		}
		winHi, probing := hi, false
		if forward && cur.After(hi) {
			if !s.strategy.overrunsMax() {
				break
			}
			winHi, probing = cur.Add(s.site.BatchSize-1), true
		}

		var w window
		err := s.guard(ctx, "gather_ids", func(ctx context.Context) error {
			var err error
			if w, err = s.strategy.step(ctx, s, cur, lo, winHi, forward); err != nil {
				return err
			}
			return s.stamp(w.records)
		})
		if err == nil {
			err = checkWindow(w, cur, forward)
		}
		if probing && (err == nil && len(w.records) == 0 || errors.Is(err, scrapeerr.ErrNoData)) {
			s.logger.Debug().Str("from", cur.String()).Msg("Nothing published past the maximum sequence")
			break
		}
		if err != nil {
			if len(result) == 0 {
				return models.FailedBatch(scrapeerr.Message(err))
			}
			s.logger.Info().Err(err).Int("records", len(result)).Msg("Stopping with partial results")
			break
		}

		w.from, w.to = models.MaxSeq(w.from, lo), models.MinSeq(w.to, winHi)
		if probing && w.hasSeen && w.seen.Before(w.to) {
			// past the maximum only what the source confirmed counts as covered
			w.to = models.MaxSeq(w.seen, w.from)
		}
		if !covered {
			bFrom, bTo, covered = w.from, w.to, true
		} else if forward {
			bTo = w.to
		} else {
			bFrom = w.from
		}
		result = append(result, w.records...)
		s.metrics.IncWindow(s.site.AuthorityName, stratTag)
		s.metrics.AddRecords(s.site.AuthorityName, "id", len(w.records))

		if forward {
			cur = w.to.Add(1)
		} else {
			cur = w.from.Add(-1)
		}
		if len(result) >= s.site.MinIDGoal {
			break
		}
	}

	if !covered {
		// nothing was fetched: report the empty range just before start
		if forward {
			bFrom = start.Add(-1)
		} else {
			bFrom = start
		}
		bTo = bFrom
	}
	return models.Batch{From: &bFrom, To: &bTo, Result: result}
}

// checkWindow rejects a window that would not move iteration on.
func checkWindow(w window, cur models.Seq, forward bool) error {
	if w.from.Kind() != cur.Kind() || w.to.Kind() != cur.Kind() || w.to.Before(w.from) {
		return scrapeerr.Newf(scrapeerr.OtherError, "invalid window %s..%s", w.from, w.to)
	}
	if forward && w.to.Before(cur) || !forward && w.from.After(cur) {
		return scrapeerr.Newf(scrapeerr.OtherError, "window %s..%s does not advance from %s", w.from, w.to, cur)
	}
	return nil
}

// stamp normalizes every record, sets its authority and rejects records
// with no uid.
func (s *Scraper) stamp(recs []models.IDRecord) error {
	for i := range recs {
		uid, ok := normalize.Value("uid", recs[i].UID, "")
		if !ok {
			return scrapeerr.New(scrapeerr.NoUID, fmt.Errorf("record %d of batch", i))
		}
		recs[i].UID = uid
		recs[i].Authority = s.site.AuthorityName
		for k, v := range recs[i].Extra {
			if nv, ok := normalize.Value(k, v, s.site.ResponseDateLayout); ok {
				recs[i].Extra[k] = nv
			} else {
				delete(recs[i].Extra, k)
			}
		}
	}
	return nil
}

// MaxSequence returns the upper iteration bound: today for date sites, the
// latest published number for list sites.
func (s *Scraper) MaxSequence(ctx context.Context) (models.Seq, error) {
	var seq models.Seq
	err := s.guard(ctx, "max_sequence", func(ctx context.Context) error {
		var err error
		seq, err = s.strategy.maxSequence(ctx, s)
		return err
	})
	return seq, err
}

// MinSequence returns the lower iteration bound from the data start target.
func (s *Scraper) MinSequence(ctx context.Context) (models.Seq, error) {
	var seq models.Seq
	err := s.guard(ctx, "min_sequence", func(ctx context.Context) error {
		var err error
		seq, err = s.strategy.minSequence(ctx, s)
		return err
	})
	return seq, err
}

func kindName(k models.SeqKind) string {
	if k == models.SeqDate {
		return "date"
	}
	return "integer"
}
