// Package dispatch is the public entry point to the scrapers: look one up
// by authority, run one of its operations, or enumerate the registry.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/law-makers/planscrape/internal/registry"
	"github.com/law-makers/planscrape/internal/scrape"
	"github.com/law-makers/planscrape/internal/scrapeerr"
	"github.com/law-makers/planscrape/pkg/models"
)

// Operation names accepted by Call and RunScraper.
const (
	OpGatherCurrentIDs  = "gather_current_ids"
	OpGatherIDs         = "gather_ids"
	OpFetchApplication  = "fetch_application"
	OpShowApplication   = "show_application"
	OpUpdateApplication = "update_application"
	OpGetMaxSequence    = "get_max_sequence"
	OpGetMinSequence    = "get_min_sequence"
)

// Operations lists the operation names in the order they are documented.
var Operations = []string{
	OpFetchApplication, OpGatherIDs, OpShowApplication, OpGetMaxSequence,
	OpGetMinSequence, OpUpdateApplication, OpGatherCurrentIDs,
}

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrUnknownAttribute = errors.New("unknown scraper attribute")
	ErrBadArguments     = errors.New("bad arguments")
)

// LogOptions routes one scraper's log. Empty fields keep the defaults.
type LogOptions struct {
	Level     string
	Directory string
	Name      string
}

// Dispatcher creates scrapers from a registry with shared options.
type Dispatcher struct {
	reg  *registry.Registry
	base scrape.Options
}

// New returns a dispatcher over reg. base supplies the collaborators every
// scraper is built with.
func New(reg *registry.Registry, base scrape.Options) *Dispatcher {
	return &Dispatcher{reg: reg, base: base}
}

// Registry returns the registry the dispatcher draws from.
func (d *Dispatcher) Registry() *registry.Registry { return d.reg }

// GetScraper creates the scraper for name. It fails with
// registry.ErrUnknownScraper or registry.ErrAlreadyRunning. The caller
// must Release the scraper when done.
func (d *Dispatcher) GetScraper(name string, log LogOptions) (*scrape.Scraper, error) {
	opts := d.base
	if log.Level != "" {
		opts.LogLevel = log.Level
	}
	if log.Directory != "" {
		opts.LogDirectory = log.Directory
	}
	if log.Name != "" {
		opts.LogName = log.Name
	}
	return d.reg.Create(name, opts)
}

// Release closes s and frees its authority's slot.
func (d *Dispatcher) Release(s *scrape.Scraper) {
	d.reg.Destroy(s.Authority())
	if err := s.Close(); err != nil {
		s.Logger().Warn().Err(err).Msg("Failed to close scraper")
	}
}

// RunScraper creates the scraper for name, runs one operation on it and
// releases it. The log_level, log_directory and log_name keys of kwargs
// configure the scraper's log; the rest go to the operation. An empty
// function gathers current ids.
func (d *Dispatcher) RunScraper(ctx context.Context, name, function string, args []string, kwargs map[string]string) (any, error) {
	var log LogOptions
	rest := make(map[string]string, len(kwargs))
	for k, v := range kwargs {
		switch k {
		case "log_level":
			log.Level = v
		case "log_directory":
			log.Directory = v
		case "log_name":
			log.Name = v
		default:
			rest[k] = v
		}
	}

	s, err := d.GetScraper(name, log)
	if err != nil {
		return nil, err
	}
	defer d.Release(s)
	return Call(ctx, s, function, args, rest)
}

// Call runs one named operation on s. Positional args come first; kwargs
// can name the same parameters (uid, url, record, make_abs).
func Call(ctx context.Context, s *scrape.Scraper, function string, args []string, kwargs map[string]string) (any, error) {
	param := func(i int, key string) string {
		if i < len(args) {
			return args[i]
		}
		return kwargs[key]
	}
	allow := func(maxArgs int, keys ...string) error {
		if len(args) > maxArgs {
			return fmt.Errorf("%w: %s takes at most %d arguments, got %d", ErrBadArguments, function, maxArgs, len(args))
		}
	next:
		for k := range kwargs {
			for _, ok := range keys {
				if k == ok {
					continue next
				}
			}
			return fmt.Errorf("%w: %s does not take %q", ErrBadArguments, function, k)
		}
		return nil
	}

	switch function {
	case "", OpGatherCurrentIDs:
		if err := allow(0); err != nil {
			return nil, err
		}
		return s.GatherCurrentIDs(ctx), nil

	case OpGatherIDs:
		if err := allow(2); err != nil {
			return nil, err
		}
		return s.GatherIDs(ctx, args...)

	case OpFetchApplication:
		if err := allow(2, "uid", "url"); err != nil {
			return nil, err
		}
		uid, url := param(0, "uid"), param(1, "url")
		if uid == "" && url == "" {
			return nil, fmt.Errorf("%w: %s needs a uid or url", ErrBadArguments, function)
		}
		return s.FetchApplication(ctx, uid, url), nil

	case OpShowApplication:
		if err := allow(3, "uid", "url", "make_abs"); err != nil {
			return nil, err
		}
		uid, url := param(0, "uid"), param(1, "url")
		if uid == "" && url == "" {
			return nil, fmt.Errorf("%w: %s needs a uid or url", ErrBadArguments, function)
		}
		makeAbs := false
		if raw := param(2, "make_abs"); raw != "" {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: make_abs: %v", ErrBadArguments, err)
			}
			makeAbs = b
		}
		return s.ShowApplication(ctx, uid, url, makeAbs), nil

	case OpUpdateApplication:
		if err := allow(1, "record"); err != nil {
			return nil, err
		}
		var rec models.Record
		if err := json.Unmarshal([]byte(param(0, "record")), &rec); err != nil {
			return nil, fmt.Errorf("%w: record: %v", ErrBadArguments, err)
		}
		return s.UpdateApplication(ctx, rec), nil

	case OpGetMaxSequence, OpGetMinSequence:
		if err := allow(0); err != nil {
			return nil, err
		}
		get := s.MaxSequence
		if function == OpGetMinSequence {
			get = s.MinSequence
		}
		seq, err := get(ctx)
		if err != nil {
			return models.SequenceResult{ScrapeError: scrapeerr.Message(err)}, nil
		}
		return models.SequenceResult{Sequence: &seq}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, function)
}

// AllScraperClasses returns the descriptors of the registered scrapers.
func (d *Dispatcher) AllScraperClasses(includeDisabled bool) []models.Descriptor {
	entries := d.reg.Entries(includeDisabled)
	out := make([]models.Descriptor, len(entries))
	for i, e := range entries {
		out[i] = e.Site.Descriptor()
	}
	return out
}

// AllScraperNames returns the sorted authority names.
func (d *Dispatcher) AllScraperNames(includeDisabled bool) []string {
	entries := d.reg.Entries(includeDisabled)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name()
	}
	return out
}

// AllScraperAttributes maps every authority to one descriptor attribute,
// named as in the descriptor's JSON form (e.g. "base_type").
func (d *Dispatcher) AllScraperAttributes(attr string, includeDisabled bool) (map[string]any, error) {
	out := make(map[string]any)
	for _, desc := range d.AllScraperClasses(includeDisabled) {
		raw, err := json.Marshal(desc)
		if err != nil {
			return nil, err
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		v, ok := fields[attr]
		if !ok && !omittable(attr) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, attr)
		}
		out[desc.AuthorityName] = v
	}
	return out, nil
}

// omittable names the descriptor attributes dropped from JSON when empty.
func omittable(attr string) bool {
	return attr == "comment" || attr == "search_url"
}

// AllScraperModules groups authority names by the family serving them.
func (d *Dispatcher) AllScraperModules(includeDisabled bool) map[string][]string {
	out := make(map[string][]string)
	for _, e := range d.reg.Entries(includeDisabled) {
		out[e.Module] = append(out[e.Module], e.Name())
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out
}
