package extract

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/law-makers/planscrape/internal/scrapeerr"
	"github.com/law-makers/planscrape/pkg/models"
)

const detailPage = `<html><body>
<div id="header">Planning</div>
<table id="details">
  <tr><th>Reference:</th><td>12/0345/FUL</td></tr>
  <tr><th>Site Address</th><td>1 High Street<br>Anytown AB1 2CD</td></tr>
  <tr><th>Proposal</th><td>Erection of a shed &amp; fence</td></tr>
  <tr><th>Received</th><td>13/09/2012</td></tr>
  <tr><th>Case Officer</th><td><a href="/officers/7">Jo Bloggs</a></td></tr>
</table>
<p class="notice">Application status</p>
</body></html>`

func detailConfig() *Config {
	return &Config{
		AdjustHTML: []Substitution{Sub(`<br\s*/?>`, " ")},
		DataBlock:  &Selector{Scope: "table#details"},
		MinData: &Selector{Fields: []Field{
			{Key: "reference", Label: "Reference"},
			{Key: "address", Label: "Site Address"},
			{Key: "description", Label: "Proposal"},
		}},
		OptionalData: []Template{
			&Selector{Fields: []Field{{Key: "date_received", Label: "Received"}}},
			&Selector{Fields: []Field{{Key: "case_officer", Label: "Case Officer"}}},
			&Selector{Fields: []Field{{Key: "officer_url", Label: "Case Officer", Selector: "a", Attr: "href"}}},
			&Selector{Fields: []Field{{Key: "decision", Label: "Decision"}}},
		},
		InvalidFormat: NewRegex(`(?i)application not found`),
	}
}

func TestConfig_ExtractHTML(t *testing.T) {
	rec, err := detailConfig().Extract(detailPage, "https://council.example/apps/detail?id=1")
	require.NoError(t, err)

	want := models.Record{
		"reference":     "12/0345/FUL",
		"address":       "1 High Street Anytown AB1 2CD",
		"description":   "Erection of a shed & fence",
		"date_received": "13/09/2012",
		"case_officer":  "Jo Bloggs",
	}
	for k, v := range want {
		assert.Equal(t, v, strings.TrimSpace(rec[k]), k)
	}
	assert.Equal(t, "https://council.example/officers/7", rec["officer_url"])
	assert.NotContains(t, rec, "decision")
}

func TestConfig_ExtractOutcomes(t *testing.T) {
	cfg := detailConfig()

	_, err := cfg.Extract(`<html><body><p>Search again</p></body></html>`, "")
	assert.ErrorIs(t, err, scrapeerr.ErrNoData)

	_, err = cfg.Extract(`<table id="details"><tr><td>Application not found</td></tr></table>`, "")
	assert.ErrorIs(t, err, scrapeerr.ErrInvalidFormat)

	_, err = cfg.Extract(`<table id="details"><tr><th>Reference</th><td>X</td></tr></table>`, "")
	assert.ErrorIs(t, err, scrapeerr.ErrNoDetail)
}

func TestConfig_WholeDocumentWithoutDataBlock(t *testing.T) {
	cfg := &Config{
		MinData: NewRegex(`Ref: (?P<reference>[^<\s]+)`),
	}
	rec, err := cfg.Extract("<p>Ref: A/1</p>", "")
	require.NoError(t, err)
	assert.Equal(t, "A/1", rec["reference"])
}

func TestConfig_AdjustDataBlock(t *testing.T) {
	cfg := &Config{
		DataBlock:       NewRegex(`(?s)<pre>(.*?)</pre>`),
		AdjustDataBlock: []Substitution{Sub(`\|`, "\n")},
		MinData:         NewRegex(`(?m)^uid=(?P<uid>\S+)$`),
	}
	rec, err := cfg.Extract("<pre>x=1|uid=B/2|y=3</pre>", "")
	require.NoError(t, err)
	assert.Equal(t, "B/2", rec["uid"])
}

const resultsPage = `<html><body>
<ul id="searchresults">
  <li class="result"><a href="applicationDetails.do?keyVal=AAA">View</a><span class="ref">12/0001</span></li>
  <li class="result"><a href="applicationDetails.do?keyVal=BBB">View</a><span class="ref">12/0002</span></li>
  <li class="result"><span class="ref">12/0003</span></li>
</ul>
</body></html>`

func TestConfig_ExtractAllRows(t *testing.T) {
	cfg := &Config{DataBlock: &Selector{Scope: "#searchresults"}}
	rows := &Selector{Rows: "li.result", Fields: []Field{
		{Key: "uid", Selector: "span.ref"},
		{Key: "url", Selector: "a", Attr: "href"},
	}}

	recs, err := cfg.ExtractAll(resultsPage, "https://council.example/online-applications/search.do", rows)
	require.NoError(t, err)

	want := []models.Record{
		{"uid": "12/0001", "url": "https://council.example/online-applications/applicationDetails.do?keyVal=AAA"},
		{"uid": "12/0002", "url": "https://council.example/online-applications/applicationDetails.do?keyVal=BBB"},
	}
	if diff := cmp.Diff(want, recs); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	_, err = cfg.ExtractAll("<p>no results</p>", "", rows)
	assert.ErrorIs(t, err, scrapeerr.ErrNoData)
}

func TestRegex_MatchAll(t *testing.T) {
	r := &Regex{Pattern: regexp.MustCompile(`<a href="(?P<url>[^"]+)">(?P<uid>[^<]+)</a>`)}
	recs := r.MatchAll(`<a href="/a/1">A/1</a> <a href="/a/2">A/2</a>`, "http://council.example/list")
	require.Len(t, recs, 2)
	assert.Equal(t, "http://council.example/a/2", recs[1]["url"])
	assert.Equal(t, "A/2", recs[1]["uid"])
}

func TestField_Pattern(t *testing.T) {
	s := &Selector{Fields: []Field{{Key: "uid", Selector: "h1", Pattern: regexp.MustCompile(`Application (\S+)`)}}}
	rec, ok := s.Match("<h1>Application 2012/0042 details</h1>", "")
	require.True(t, ok)
	assert.Equal(t, "2012/0042", rec["uid"])

	_, ok = s.Match("<h1>Search</h1>", "")
	assert.False(t, ok)
}

func decode(t *testing.T, s string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func TestJSONConfig_Extract(t *testing.T) {
	doc := decode(t, `{"data": {"application": {
		"id": 98765,
		"ref": "22/01234/HOU",
		"site": {"address": "2 Low Road"},
		"proposal": "Loft conversion",
		"received": "2022-03-01",
		"decision": null
	}}}`)

	cfg := &JSONConfig{
		DataBlock: []string{"data", "application"},
		MinData: []JSONField{
			{Key: "uid", Path: []string{"id"}},
			{Key: "reference", Path: []string{"ref"}},
			{Key: "address", Path: []string{"site", "address"}},
			{Key: "description", Path: []string{"proposal"}},
		},
		OptionalData: []JSONField{
			{Key: "date_received", Path: []string{"received"}},
			{Key: "decision", Path: []string{"decision"}},
			{Key: "url", Path: []string{"id"}, Template: "/applications/{{value}}"},
		},
	}

	rec, err := cfg.Extract(doc, "https://api.council.example/v1/")
	require.NoError(t, err)

	want := models.Record{
		"uid":           "98765",
		"reference":     "22/01234/HOU",
		"address":       "2 Low Road",
		"description":   "Loft conversion",
		"date_received": "2022-03-01",
		"url":           "https://api.council.example/applications/98765",
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONConfig_Outcomes(t *testing.T) {
	cfg := &JSONConfig{
		DataBlock:     []string{"results"},
		MinData:       []JSONField{{Key: "uid", Path: []string{"id"}}},
		InvalidFormat: []JSONField{{Key: "error", Path: []string{"error"}}},
	}

	_, err := cfg.Extract(decode(t, `{"other": 1}`), "")
	assert.ErrorIs(t, err, scrapeerr.ErrNoData)

	_, err = cfg.Extract(decode(t, `{"results": {"error": "withdrawn"}}`), "")
	assert.ErrorIs(t, err, scrapeerr.ErrInvalidFormat)

	_, err = cfg.Extract(decode(t, `{"results": {"name": "x"}}`), "")
	assert.ErrorIs(t, err, scrapeerr.ErrNoDetail)

	recs, err := cfg.ExtractAll(decode(t, `{"results": [{"id": 1}, {"name": "skip"}, {"id": "3"}]}`), "")
	require.NoError(t, err)
	assert.Equal(t, []models.Record{{"uid": "1"}, {"uid": "3"}}, recs)
}

func TestLookup(t *testing.T) {
	v := decode(t, `{"a": [{"b": "x"}, {"b": "y"}]}`)
	got, ok := Lookup(v, []string{"a", "1", "b"})
	require.True(t, ok)
	assert.Equal(t, "y", got)

	_, ok = Lookup(v, []string{"a", "5"})
	assert.False(t, ok)
	_, ok = Lookup(v, []string{"a", "x"})
	assert.False(t, ok)
}
