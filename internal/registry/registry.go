// Package registry holds the table of known scrapers and enforces that at
// most one live instance exists per authority.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"weak"

	"github.com/law-makers/planscrape/internal/scrape"
)

var (
	ErrUnknownScraper = errors.New("unknown scraper")
	ErrAlreadyRunning = errors.New("scraper already running")
)

// Entry registers one authority: its constants, the family (module) it
// belongs to and a constructor for its hooks. NewSource is called once per
// instance so no hook state is shared between instances.
type Entry struct {
	Site      scrape.Site
	Module    string
	NewSource func() scrape.Source
}

// Name returns the authority name the entry is keyed by.
func (e Entry) Name() string { return e.Site.AuthorityName }

// Registry maps authority names to entries and to a weak handle on each
// authority's live scraper. The zero value is not usable; call New.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
	slots   map[string]weak.Pointer[scrape.Scraper]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		slots:   make(map[string]weak.Pointer[scrape.Scraper]),
	}
}

// Register adds an entry. Names are unique.
func (r *Registry) Register(e Entry) error {
	name := e.Name()
	if name == "" {
		return scrape.ErrNoAuthority
	}
	if e.NewSource == nil {
		return fmt.Errorf("%s: no source constructor", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[name]; dup {
		return fmt.Errorf("%s: registered twice", name)
	}
	r.entries[name] = e
	return nil
}

// MustRegister is Register for static tables.
func (r *Registry) MustRegister(entries ...Entry) {
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
}

// Lookup finds an entry by name, falling back to a case-insensitive match.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(name)
}

func (r *Registry) lookup(name string) (Entry, bool) {
	if e, ok := r.entries[name]; ok {
		return e, true
	}
	for k, e := range r.entries {
		if strings.EqualFold(k, name) {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns the registered entries sorted by name. Disabled
// scrapers are left out unless includeDisabled is set.
func (r *Registry) Entries(includeDisabled bool) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Site.Disabled && !includeDisabled {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Create builds the scraper for name. It fails with ErrAlreadyRunning while
// an earlier instance is still live, that is neither destroyed nor
// garbage collected.
func (r *Registry) Create(name string, opts scrape.Options) (*scrape.Scraper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScraper, name)
	}
	name = e.Name()
	if live := r.slots[name].Value(); live != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}

	s, err := scrape.New(e.Site, e.NewSource(), opts)
	if err != nil {
		return nil, err
	}
	r.slots[name] = weak.Make(s)
	return s, nil
}

// Instance returns the live scraper for name, or nil.
func (r *Registry) Instance(name string) *scrape.Scraper {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.lookup(name); ok {
		return r.slots[e.Name()].Value()
	}
	return nil
}

// Destroy forgets the live scraper for name so another can be created. The
// caller remains responsible for closing the instance it holds.
func (r *Registry) Destroy(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.lookup(name); ok {
		delete(r.slots, e.Name())
	}
}
