package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ISODate is the layout of every date field in a returned record.
const ISODate = "2006-01-02"

// Record is a planning application (or a raw extracted fragment of one)
// keyed by field name. JSON encoding sorts keys, so output is stable.
type Record map[string]string

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies every key of other over r.
func (r Record) Merge(other Record) {
	for k, v := range other {
		r[k] = v
	}
}

// RequiredKeys must be present in every record returned by a fetch.
var RequiredKeys = []string{"uid", "reference", "address", "description", "authority", "source_url", "date_scraped"}

// Missing returns the required keys absent from r.
func (r Record) Missing() []string {
	var missing []string
	for _, k := range RequiredKeys {
		if r[k] == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// IDRecord is one entry of a gather result. Extra carries raw hints such as
// url, reference or dates found on a search listing.
type IDRecord struct {
	UID       string
	Authority string
	Extra     map[string]string
}

// MarshalJSON flattens the record so it encodes like the detail records.
func (r IDRecord) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, len(r.Extra)+2)
	for k, v := range r.Extra {
		flat[k] = v
	}
	flat["uid"] = r.UID
	flat["authority"] = r.Authority
	return json.Marshal(flat)
}

// Get returns a hint carried on the record.
func (r IDRecord) Get(key string) string {
	if r.Extra == nil {
		return ""
	}
	return r.Extra[key]
}

// SeqKind tells which sequence space a strategy iterates over.
type SeqKind int

const (
	SeqDate SeqKind = iota
	SeqNum
)

// Seq is a position in a scraper's sequence space: a calendar date for the
// date and period strategies or a non-negative integer for list strategies.
type Seq struct {
	kind SeqKind
	date time.Time
	num  int
}

// DateSeq returns a date position truncated to the day.
func DateSeq(t time.Time) Seq {
	y, m, d := t.Date()
	return Seq{kind: SeqDate, date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// NumSeq returns an integer position.
func NumSeq(n int) Seq {
	return Seq{kind: SeqNum, num: n}
}

// ParseSeq parses s in the given sequence space.
func ParseSeq(kind SeqKind, s string) (Seq, error) {
	switch kind {
	case SeqDate:
		t, err := time.Parse(ISODate, s)
		if err != nil {
			return Seq{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
		}
		return DateSeq(t), nil
	default:
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return Seq{}, fmt.Errorf("invalid sequence number %q", s)
		}
		return NumSeq(n), nil
	}
}

func (s Seq) Kind() SeqKind   { return s.kind }
func (s Seq) Date() time.Time { return s.date }
func (s Seq) Num() int        { return s.num }

// Add moves the position n steps (days or integers).
func (s Seq) Add(n int) Seq {
	if s.kind == SeqDate {
		return Seq{kind: SeqDate, date: s.date.AddDate(0, 0, n)}
	}
	return Seq{kind: SeqNum, num: s.num + n}
}

// Compare returns -1, 0 or +1. Both positions must share a kind.
func (s Seq) Compare(o Seq) int {
	if s.kind == SeqDate {
		return s.date.Compare(o.date)
	}
	switch {
	case s.num < o.num:
		return -1
	case s.num > o.num:
		return 1
	}
	return 0
}

func (s Seq) Before(o Seq) bool { return s.Compare(o) < 0 }
func (s Seq) After(o Seq) bool  { return s.Compare(o) > 0 }

// MinSeq and MaxSeq pick the lower or higher of two positions.
func MinSeq(a, b Seq) Seq {
	if a.After(b) {
		return b
	}
	return a
}

func MaxSeq(a, b Seq) Seq {
	if a.Before(b) {
		return b
	}
	return a
}

func (s Seq) String() string {
	if s.kind == SeqDate {
		return s.date.Format(ISODate)
	}
	return strconv.Itoa(s.num)
}

// MarshalJSON encodes dates as ISO strings and numbers as JSON numbers.
func (s Seq) MarshalJSON() ([]byte, error) {
	if s.kind == SeqDate {
		return json.Marshal(s.String())
	}
	return json.Marshal(s.num)
}

// Batch is the envelope returned by GatherIDs. When ScrapeError is set the
// result is empty and From/To are nil.
type Batch struct {
	From        *Seq       `json:"from"`
	To          *Seq       `json:"to"`
	Result      []IDRecord `json:"result"`
	ScrapeError string     `json:"scrape_error,omitempty"`
}

// FailedBatch builds the error form of the envelope.
func FailedBatch(msg string) Batch {
	return Batch{Result: []IDRecord{}, ScrapeError: msg}
}

// FetchResult is the envelope returned by FetchApplication and UpdateApplication.
type FetchResult struct {
	Record      Record `json:"record,omitempty"`
	ScrapeError string `json:"scrape_error,omitempty"`
}

// ShowResult is the envelope returned by ShowApplication.
type ShowResult struct {
	HTML        string `json:"html,omitempty"`
	URL         string `json:"url,omitempty"`
	ScrapeError string `json:"scrape_error,omitempty"`
}

// SequenceResult is the envelope returned for get_max_sequence and
// get_min_sequence.
type SequenceResult struct {
	Sequence    *Seq   `json:"sequence,omitempty"`
	ScrapeError string `json:"scrape_error,omitempty"`
}

// BaseType names the iteration strategy a scraper is built on.
type BaseType string

const (
	BaseDate   BaseType = "Date"
	BasePeriod BaseType = "Period"
	BaseList   BaseType = "List"
	BaseBase   BaseType = "Base"
)

// Seconds is a duration that encodes as a JSON number of seconds.
type Seconds time.Duration

// Duration returns s as a time.Duration.
func (s Seconds) Duration() time.Duration { return time.Duration(s) }

func (s Seconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(s).Seconds())
}

func (s *Seconds) UnmarshalJSON(data []byte) error {
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("seconds: %w", err)
	}
	*s = Seconds(secs * float64(time.Second))
	return nil
}

// Descriptor is the read-only metadata of a registered scraper.
type Descriptor struct {
	AuthorityName   string   `json:"authority_name"`
	ScraperType     string   `json:"scraper_type"`
	BaseType        BaseType `json:"base_type"`
	Disabled        bool     `json:"disabled"`
	Comment         string   `json:"comment,omitempty"`
	UIDOnly         bool     `json:"uid_only"`
	UIDNumSequence  bool     `json:"uid_num_sequence"`
	SearchURL       string   `json:"search_url,omitempty"`
	Timeout         Seconds  `json:"timeout"`
	DataStartTarget string   `json:"data_start_target"`
}
