package scrape

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/law-makers/planscrape/internal/extract"
	"github.com/law-makers/planscrape/internal/httpsession"
	"github.com/law-makers/planscrape/pkg/models"
)

// Defaults applied to a Site whose fields are left zero.
const (
	DefaultDateBatch       = 14
	DefaultListBatch       = 50
	DefaultMinIDGoal       = 600
	DefaultDateSpan        = 28
	DefaultListSpan        = 200
	DefaultDataStartTarget = "2000-01-05"
	DefaultMaxIndex        = 10000
	DefaultUIDFormat       = "%d/%04d"
	DefaultMaxWindows      = 1000
	DefaultFirstYear       = 2000
)

// ErrNoAuthority is returned when a Site has no authority name.
var ErrNoAuthority = errors.New("site has no authority name")

// Site holds the constants that distinguish one authority's portal from
// another. A Scraper reads it and never changes it.
type Site struct {
	AuthorityName  string
	ScraperType    string
	BaseType       models.BaseType
	Disabled       bool
	Comment        string
	UIDOnly        bool
	UIDNumSequence bool

	// URLFirst tries the application url before the uid when fetching.
	URLFirst  bool
	SearchURL string
	Timeout   time.Duration

	// DataStartTarget is the earliest sequence: an ISO date for date and
	// period sites, an integer for list sites.
	DataStartTarget string
	BatchSize       int
	CurrentSpan     int
	MinIDGoal       int
	MaxWindows      int

	// PeriodType is a weekday ("Saturday"), a negated weekday ("-Monday"),
	// "Month", "N" or "-N".
	PeriodType string

	// Annual list sites number applications YYYY/NNNN. The sequence n maps
	// to year n/MaxIndex and index n%MaxIndex.
	Annual    bool
	MaxIndex  int
	UIDFormat string
	// FailMissing makes a probe that finds no record fail the window
	// instead of being skipped.
	FailMissing bool

	RequestDateLayout  string
	ResponseDateLayout string

	// Insecure disables TLS verification for this site's session only.
	Insecure bool
	Proxies  []string
	Headers  []string
	Cookies  []*http.Cookie
	// RateLimit overrides the per-host request rate when positive.
	RateLimit float64

	Detail     *extract.Config
	DetailJSON *extract.JSONConfig
}

func (s Site) withDefaults() Site {
	if s.BaseType == "" {
		s.BaseType = models.BaseDate
	}
	if s.Timeout <= 0 {
		s.Timeout = httpsession.DefaultTimeout
	}
	if s.MinIDGoal <= 0 {
		s.MinIDGoal = DefaultMinIDGoal
	}
	if s.MaxWindows <= 0 {
		s.MaxWindows = DefaultMaxWindows
	}
	switch s.BaseType {
	case models.BaseList:
		if s.BatchSize <= 0 {
			s.BatchSize = DefaultListBatch
		}
		if s.CurrentSpan <= 0 {
			s.CurrentSpan = DefaultListSpan
		}
		if s.Annual {
			if s.MaxIndex <= 0 {
				s.MaxIndex = DefaultMaxIndex
			}
			if s.UIDFormat == "" {
				s.UIDFormat = DefaultUIDFormat
			}
			if s.DataStartTarget == "" {
				s.DataStartTarget = fmt.Sprint(DefaultFirstYear*s.MaxIndex + 1)
			}
		}
		if s.DataStartTarget == "" {
			s.DataStartTarget = "1"
		}
	default:
		if s.BatchSize <= 0 {
			s.BatchSize = DefaultDateBatch
		}
		if s.CurrentSpan <= 0 {
			s.CurrentSpan = DefaultDateSpan
		}
		if s.DataStartTarget == "" {
			s.DataStartTarget = DefaultDataStartTarget
		}
	}
	return s
}

func (s Site) validate() error {
	if s.AuthorityName == "" {
		return ErrNoAuthority
	}
	switch s.BaseType {
	case models.BaseDate, models.BaseList, models.BaseBase:
	case models.BasePeriod:
		if _, err := parsePeriodType(s.PeriodType); err != nil {
			return fmt.Errorf("%s: %w", s.AuthorityName, err)
		}
	default:
		return fmt.Errorf("%s: unsupported base type %q", s.AuthorityName, s.BaseType)
	}
	if _, err := models.ParseSeq(s.seqKind(), s.DataStartTarget); err != nil {
		return fmt.Errorf("%s: data start target: %w", s.AuthorityName, err)
	}
	return nil
}

func (s Site) seqKind() models.SeqKind {
	if s.BaseType == models.BaseList {
		return models.SeqNum
	}
	return models.SeqDate
}

// Descriptor returns the read-only metadata published for the site.
func (s Site) Descriptor() models.Descriptor {
	s = s.withDefaults()
	return models.Descriptor{
		AuthorityName:   s.AuthorityName,
		ScraperType:     s.ScraperType,
		BaseType:        s.BaseType,
		Disabled:        s.Disabled,
		Comment:         s.Comment,
		UIDOnly:         s.UIDOnly,
		UIDNumSequence:  s.UIDNumSequence,
		SearchURL:       s.SearchURL,
		Timeout:         models.Seconds(s.Timeout),
		DataStartTarget: s.DataStartTarget,
	}
}
