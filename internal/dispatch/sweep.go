package dispatch

import (
	"context"
	"net/url"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/law-makers/planscrape/internal/registry"
	"github.com/law-makers/planscrape/internal/scrape"
	"github.com/law-makers/planscrape/pkg/models"
)

// SweepResult is the outcome of gathering current ids for one authority.
// Err is set when the scraper could not be created at all.
type SweepResult struct {
	Authority string       `json:"authority"`
	Batch     models.Batch `json:"batch"`
	Err       error        `json:"-"`
	Error     string       `json:"error,omitempty"`
}

// SweepOptions tunes Sweep. The zero value is usable.
type SweepOptions struct {
	// Concurrency bounds how many hosts are scraped at once. Zero picks
	// DefaultConcurrency.
	Concurrency int
	// RunID tags the requests of every scraper in the sweep.
	RunID string
	// Done is called after each authority finishes, from the worker that ran
	// it.
	Done func(SweepResult)
}

// DefaultConcurrency is three workers per CPU, capped at 50. Scraping is
// I/O bound.
func DefaultConcurrency() int {
	n := runtime.NumCPU() * 3
	if n > 50 {
		n = 50
	}
	return n
}

// GroupByHost groups entries by the host of their search URL. Authorities
// sharing a host are scraped one after another.
func GroupByHost(entries []registry.Entry) map[string][]registry.Entry {
	groups := make(map[string][]registry.Entry)
	for _, e := range entries {
		host := "default"
		if u, err := url.Parse(e.Site.SearchURL); err == nil && u.Host != "" {
			host = u.Host
		}
		groups[host] = append(groups[host], e)
	}
	return groups
}

// Sweep gathers current ids for every named authority, or every enabled
// one when names is empty. A failing authority never stops the others.
// Results come back in the order of names.
func (d *Dispatcher) Sweep(ctx context.Context, names []string, opts SweepOptions) []SweepResult {
	var entries []registry.Entry
	if len(names) == 0 {
		entries = d.reg.Entries(false)
	} else {
		for _, n := range names {
			e, ok := d.reg.Lookup(n)
			if !ok {
				e = registry.Entry{Site: scrape.Site{AuthorityName: n}}
			}
			entries = append(entries, e)
		}
	}

	index := make(map[string]int, len(entries))
	results := make([]SweepResult, len(entries))
	for i, e := range entries {
		index[e.Name()] = i
		results[i].Authority = e.Name()
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency()
	}

	groups := GroupByHost(entries)
	hosts := make([]string, 0, len(groups))
	for h := range groups {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, host := range hosts {
		group := groups[host]
		g.Go(func() error {
			for _, e := range group {
				r := d.sweepOne(ctx, e.Name(), opts.RunID)
				results[index[e.Name()]] = r
				if opts.Done != nil {
					opts.Done(r)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) sweepOne(ctx context.Context, name, runID string) SweepResult {
	res := SweepResult{Authority: name}
	if err := ctx.Err(); err != nil {
		res.Err, res.Error = err, err.Error()
		return res
	}
	s, err := d.GetScraper(name, LogOptions{})
	if err != nil {
		res.Err, res.Error = err, err.Error()
		return res
	}
	defer d.Release(s)
	if runID != "" {
		s.SetRunID(runID)
	}
	res.Batch = s.GatherCurrentIDs(ctx)
	return res
}
