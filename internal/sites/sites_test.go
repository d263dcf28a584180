package sites

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/law-makers/planscrape/internal/registry"
	"github.com/law-makers/planscrape/internal/retry"
	"github.com/law-makers/planscrape/internal/scrape"
	"github.com/law-makers/planscrape/pkg/models"
)

func newScraper(t *testing.T, e registry.Entry, today string) *scrape.Scraper {
	t.Helper()
	nop := zerolog.Nop()
	now, err := time.Parse(models.ISODate, today)
	require.NoError(t, err)
	s, err := scrape.New(e.Site, e.NewSource(), scrape.Options{
		Logger: &nop,
		Retry:  &retry.Config{MaxAttempts: 1},
		Now:    func() time.Time { return now.Add(12 * time.Hour) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func uids(b models.Batch) []string {
	out := make([]string, len(b.Result))
	for i, r := range b.Result {
		out[i] = r.UID
	}
	return out
}

const searchPage = `<html><body>
<form id="advancedSearchForm" action="/results" method="post">
<input type="hidden" name="csrf" value="tok">
<input type="text" name="date(applicationReceivedStart)">
<input type="text" name="date(applicationReceivedEnd)">
<input type="submit" name="go" value="Search">
</form></body></html>`

const resultsPage1 = `<html><body><div id="searchresults"><ul>
<li class="searchresult"><a href="/applicationDetails.do;jsessionid=ABC123?keyVal=A1">Erection of a garage</a>
<p class="metaInfo">Ref. No: 24/00001/FUL <span>|</span> Received: Fri 01 Mar 2024 <span>|</span> Validated: Mon 04 Mar 2024</p></li>
<li class="searchresult"><a href="/applicationDetails.do?keyVal=A2">Loft conversion</a>
<p class="metaInfo">Ref. No: 24/00002/HOU <span>|</span> Received: Mon 04 Mar 2024</p></li>
</ul></div><p><a href="/results/2">Next</a></p></body></html>`

const resultsPage2 = `<html><body><div id="searchresults"><ul>
<li class="searchresult"><a href="/applicationDetails.do?keyVal=A3">New dwelling</a>
<p class="metaInfo">Ref. No: 24/00003/FUL <span>|</span> Received: Fri 08 Mar 2024</p></li>
</ul></div></body></html>`

const detailPage = `<html><body><table id="simpleDetailsTable">
<tr><th>Reference</th><td>24/00001/FUL</td></tr>
<tr><th>Address</th><td>1 High Street<br>Fleet GU51 3AA</td></tr>
<tr><th>Proposal</th><td>Erection of a  garage</td></tr>
<tr><th>Application Received</th><td>Fri 01 Mar 2024</td></tr>
<tr><th>Status</th><td>Pending Consideration</td></tr>
</table></body></html>`

func formServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/search.do", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.FormValue("csrf") != "tok" || r.FormValue("searchType") != "Application" {
			http.Error(w, "bad search", http.StatusBadRequest)
			return
		}
		if r.FormValue("date(applicationReceivedStart)") != "01/03/2024" {
			fmt.Fprint(w, `<html><body><p>No results found.</p></body></html>`)
			return
		}
		fmt.Fprint(w, resultsPage1)
	})
	mux.HandleFunc("/results/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resultsPage2)
	})
	mux.HandleFunc("/applicationDetails.do", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("keyVal") != "24/00001/FUL" {
			fmt.Fprint(w, `<html><body><p>This application could not be found.</p></body></html>`)
			return
		}
		fmt.Fprint(w, detailPage)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func formEntry(base string) registry.Entry {
	return Entry(scrape.Site{
		AuthorityName:      "FormTown",
		BaseType:           models.BaseDate,
		SearchURL:          base + "/search.do",
		ResponseDateLayout: "Mon 02 Jan 2006",
		Detail:             searchFormDetail,
	}, searchForm(base))
}

func TestSearchFormGathersAllPages(t *testing.T) {
	srv := formServer(t)
	s := newScraper(t, formEntry(srv.URL), "2024-04-01")

	b, err := s.GatherIDs(context.Background(), "2024-03-01", "2024-03-10")
	require.NoError(t, err)
	require.Empty(t, b.ScrapeError)
	assert.Equal(t, []string{"24/00001/FUL", "24/00002/HOU", "24/00003/FUL"}, uids(b))
	assert.Equal(t, "2024-03-01", b.From.String())
	assert.Equal(t, "2024-03-10", b.To.String())

	first := b.Result[0]
	assert.Equal(t, "FormTown", first.Authority)
	assert.Equal(t, "2024-03-01", first.Extra["date_received"])
	assert.Equal(t, "2024-03-04", first.Extra["date_validated"])
	assert.Equal(t, srv.URL+"/applicationDetails.do?keyVal=A1", first.Extra["url"])
}

func TestSearchFormEmptyWindow(t *testing.T) {
	srv := formServer(t)
	s := newScraper(t, formEntry(srv.URL), "2024-04-01")

	b, err := s.GatherIDs(context.Background(), "2024-02-01", "2024-02-10")
	require.NoError(t, err)
	assert.Empty(t, b.ScrapeError)
	assert.Empty(t, b.Result)
}

func TestSearchFormFetch(t *testing.T) {
	srv := formServer(t)
	s := newScraper(t, formEntry(srv.URL), "2024-04-01")

	res := s.FetchApplication(context.Background(), "24/00001/FUL", "")
	require.Empty(t, res.ScrapeError)
	rec := res.Record
	assert.Equal(t, "24/00001/FUL", rec["uid"])
	assert.Equal(t, "24/00001/FUL", rec["reference"])
	assert.Equal(t, "1 High Street Fleet GU51 3AA", rec["address"])
	assert.Equal(t, "Erection of a garage", rec["description"])
	assert.Equal(t, "2024-03-01", rec["date_received"])
	assert.Equal(t, "GU51 3AA", rec["postcode"])
	assert.Equal(t, "FormTown", rec["authority"])
	assert.Equal(t, "2024-04-01", rec["date_scraped"])

	missing := s.FetchApplication(context.Background(), "24/09999/FUL", "")
	assert.NotEmpty(t, missing.ScrapeError)
	assert.Nil(t, missing.Record)
}

func weeklyServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("week_ending") {
		case "08/03/2024":
			fmt.Fprint(w, `<html><body><table class="weekly-list"><thead><tr><th>Ref</th><th>Site</th><th>Valid</th></tr></thead><tbody>
<tr><td><a href="/app?ref=W1">24/0101</a></td><td>Mill Lane</td><td>04/03/2024</td></tr>
<tr><td><a href="/app?ref=W2">24/0102</a></td><td>Church Road</td><td>06/03/2024</td></tr>
</tbody></table></body></html>`)
		default:
			fmt.Fprint(w, `<html><body><p>No applications received this week.</p></body></html>`)
		}
	})
	mux.HandleFunc("/app", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><div id="application-details"><dl>
<dt>Application Number</dt><dd>%s</dd>
<dt>Site Address</dt><dd>Mill Lane, Hexham</dd>
<dt>Proposal</dt><dd>Agricultural building</dd>
<dt>Date Valid</dt><dd>04/03/2024</dd>
<dt>Easting</dt><dd>400000</dd>
<dt>Northing</dt><dd>300000</dd>
</dl></div></body></html>`, r.URL.Query().Get("ref"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func weeklyEntry(base string) registry.Entry {
	return Entry(scrape.Site{
		AuthorityName:      "WeekTown",
		BaseType:           models.BasePeriod,
		PeriodType:         "Friday",
		SearchURL:          base + "/list",
		RequestDateLayout:  "02/01/2006",
		ResponseDateLayout: "02/01/2006",
		Detail:             weeklyDetail,
	}, &WeeklyList{
		Detail:  Detail{URL: base + "/app?ref=%s"},
		Listing: weeklyListing,
		ListURL: base + "/list?week_ending=%s",
	})
}

func TestWeeklyListPeriods(t *testing.T) {
	srv := weeklyServer(t)
	s := newScraper(t, weeklyEntry(srv.URL), "2024-04-01")

	b, err := s.GatherIDs(context.Background(), "2024-03-02", "2024-03-08")
	require.NoError(t, err)
	require.Empty(t, b.ScrapeError)
	assert.Equal(t, []string{"24/0101", "24/0102"}, uids(b))
	assert.Equal(t, "2024-03-02", b.From.String())
	assert.Equal(t, "2024-03-08", b.To.String())
	assert.Equal(t, "2024-03-04", b.Result[0].Extra["date_validated"])

	// an earlier week with nothing published is an empty, valid period
	b, err = s.GatherIDs(context.Background(), "2024-02-24", "2024-03-01")
	require.NoError(t, err)
	assert.Empty(t, b.ScrapeError)
	assert.Empty(t, b.Result)
	assert.Equal(t, "2024-02-24", b.From.String())
}

func TestWeeklyDetailIsGeocoded(t *testing.T) {
	srv := weeklyServer(t)
	s := newScraper(t, weeklyEntry(srv.URL), "2024-04-01")

	res := s.FetchApplication(context.Background(), "24/0101", "")
	require.Empty(t, res.ScrapeError)
	assert.Equal(t, "24/0101", res.Record["uid"])
	assert.Equal(t, "2024-03-04", res.Record["date_validated"])
	require.NotEmpty(t, res.Record["lat"])
	lat, err := strconv.ParseFloat(res.Record["lat"], 64)
	require.NoError(t, err)
	assert.InDelta(t, 52.6, lat, 0.5)
}

func jsonServer(t *testing.T, latest int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"application":{"id":%d}}`, latest)
	})
	mux.HandleFunc("/stale", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"application":{"id":%d}}`, latest-5)
	})
	mux.HandleFunc("/range", func(w http.ResponseWriter, r *http.Request) {
		from, _ := strconv.Atoi(r.URL.Query().Get("from_id"))
		to, _ := strconv.Atoi(r.URL.Query().Get("to_id"))
		var items []string
		for id := from; id <= to && id <= latest; id++ {
			if id%2 == 0 {
				continue
			}
			items = append(items, fmt.Sprintf(`{"id":%d,"reference":"2024/%d","received":"2024-01-%02d"}`, id, id, id%28+1))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"results":[%s]}`, strings.Join(items, ","))
	})
	mux.HandleFunc("/detail", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"application":{"id":7,"reference":%q,"proposal":"Change of use","site":{"address":"12 Camden Road","postcode":"NW1 9DP","latitude":51.5412,"longitude":-0.1387},"received":"2024-01-08"}}`, r.URL.Query().Get("ref"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func jsonEntry(base string) registry.Entry {
	return Entry(scrape.Site{
		AuthorityName: "JSONTown",
		BaseType:      models.BaseList,
		SearchURL:     base + "/range",
		BatchSize:     10,
		DetailJSON:    jsonAPIDetail,
	}, &JSONAPI{
		Detail:     Detail{URL: base + "/detail?ref=%s"},
		RangeURL:   base + "/range?from_id=%d&to_id=%d",
		Results:    jsonAPIResults,
		LatestURL:  base + "/latest",
		LatestPath: []string{"application", "id"},
	})
}

func TestJSONAPIForward(t *testing.T) {
	srv := jsonServer(t, 25)
	s := newScraper(t, jsonEntry(srv.URL), "2024-04-01")

	max, err := s.MaxSequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "25", max.String())

	b, err := s.GatherIDs(context.Background(), "14")
	require.NoError(t, err)
	require.Empty(t, b.ScrapeError)
	assert.Equal(t, []string{"2024/15", "2024/17", "2024/19", "2024/21", "2024/23", "2024/25"}, uids(b))
	assert.Equal(t, "15", b.From.String())
	assert.Equal(t, "25", b.To.String())
	assert.Equal(t, srv.URL+"/planning/applications/15", b.Result[0].Extra["url"])
}

func TestJSONAPIStaleLatestCoversOnlyListedRecords(t *testing.T) {
	srv := jsonServer(t, 25)
	e := jsonEntry(srv.URL)
	src := e.NewSource().(*JSONAPI)
	src.LatestURL = srv.URL + "/stale"
	e.NewSource = func() scrape.Source { return src }
	s := newScraper(t, e, "2024-04-01")

	b, err := s.GatherIDs(context.Background(), "20")
	require.NoError(t, err)
	require.Empty(t, b.ScrapeError)
	assert.Equal(t, []string{"2024/21", "2024/23", "2024/25"}, uids(b))
	assert.Equal(t, "21", b.From.String())
	assert.Equal(t, "25", b.To.String())
}

func TestJSONAPIDetail(t *testing.T) {
	srv := jsonServer(t, 25)
	s := newScraper(t, jsonEntry(srv.URL), "2024-04-01")

	res := s.FetchApplication(context.Background(), "2024/7", "")
	require.Empty(t, res.ScrapeError)
	assert.Equal(t, "2024/7", res.Record["uid"])
	assert.Equal(t, "12 Camden Road", res.Record["address"])
	assert.Equal(t, "NW1 9DP", res.Record["postcode"])
	assert.Equal(t, "51.541200", res.Record["lat"])
	assert.Equal(t, "2024-01-08", res.Record["date_received"])
}

func annualServer(t *testing.T, existing map[string]bool) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/recent", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul><li>2023/0150 Barn</li><li>2024/0003 Porch</li><li>2024/0001 Shed</li></ul></body></html>`)
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		ref := r.URL.Query().Get("ref")
		if !existing[ref] {
			fmt.Fprint(w, `<html><body><p class="notice">No case matches that reference.</p></body></html>`)
			return
		}
		fmt.Fprintf(w, `<html><body><table class="case-details">
<tr><th>Case Reference</th><td>%s</td></tr>
<tr><th>Location</th><td>Porlock Hill</td></tr>
<tr><th>Description</th><td>Replacement porch</td></tr>
</table></body></html>`, ref)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func annualEntry(base string) registry.Entry {
	return Entry(scrape.Site{
		AuthorityName: "AnnualTown",
		BaseType:      models.BaseList,
		Annual:        true,
		UIDOnly:       true,
		SearchURL:     base + "/recent",
		BatchSize:     5,
		Detail:        annualDetail,
	}, &AnnualUID{
		Detail:    Detail{URL: base + "/view?ref=%s"},
		LatestURL: base + "/recent",
	})
}

func TestAnnualUIDSkipsMissingNumbers(t *testing.T) {
	srv := annualServer(t, map[string]bool{"2024/0001": true, "2024/0003": true})
	s := newScraper(t, annualEntry(srv.URL), "2024-04-01")

	max, err := s.MaxSequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20240003", max.String())

	b, err := s.GatherIDs(context.Background(), "20240000")
	require.NoError(t, err)
	require.Empty(t, b.ScrapeError)
	assert.Equal(t, []string{"2024/0001", "2024/0003"}, uids(b))
	assert.Equal(t, "AnnualTown", b.Result[1].Authority)
}

func TestAnnualUIDNoListing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/recent", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>Nothing yet</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := newScraper(t, annualEntry(srv.URL), "2024-04-01")
	_, err := s.MaxSequence(context.Background())
	assert.Error(t, err)

	b, err := s.GatherIDs(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, b.ScrapeError)
}

func TestAuthorityTable(t *testing.T) {
	r := registry.New()
	Register(r)

	all := r.Entries(true)
	enabled := r.Entries(false)
	assert.Len(t, all, len(Authorities()))
	assert.Less(t, len(enabled), len(all))

	modules := map[string]bool{}
	for _, e := range all {
		modules[e.Module] = true
		assert.Equal(t, e.Module, e.Site.ScraperType, e.Name())

		s, err := r.Create(e.Name(), quietOptions())
		require.NoError(t, err, e.Name())
		require.NoError(t, s.Close())
		r.Destroy(e.Name())
	}
	assert.Equal(t, map[string]bool{"SearchForm": true, "WeeklyList": true, "JSONAPI": true, "AnnualUID": true}, modules)

	e, ok := r.Lookup("Waverley")
	require.True(t, ok)
	assert.True(t, e.Site.Disabled)
	assert.NotEmpty(t, e.Site.Comment)
}

func quietOptions() scrape.Options {
	nop := zerolog.Nop()
	return scrape.Options{Logger: &nop}
}
