package sites

import (
	"regexp"
	"time"

	"github.com/law-makers/planscrape/internal/extract"
	"github.com/law-makers/planscrape/internal/registry"
	"github.com/law-makers/planscrape/internal/scrape"
	"github.com/law-makers/planscrape/pkg/models"
)

// Family is implemented by every portal family. Name is the module an
// authority is listed under.
type Family interface {
	scrape.Source
	Name() string
}

// Entry pairs a site with the family that serves it.
func Entry(site scrape.Site, fam Family) registry.Entry {
	site.ScraperType = fam.Name()
	return registry.Entry{
		Site:      site,
		Module:    fam.Name(),
		NewSource: func() scrape.Source { return fam },
	}
}

// Register adds every known authority to r.
func Register(r *registry.Registry) {
	for _, e := range Authorities() {
		r.MustRegister(e)
	}
}

func re(pattern string) *regexp.Regexp { return regexp.MustCompile(pattern) }

// Detail page of the common search-form portal: a two column summary table.
var searchFormDetail = &extract.Config{
	AdjustHTML: []extract.Substitution{extract.Sub(`(?i)<br\s*/?>`, " ")},
	DataBlock:  &extract.Selector{Scope: "#simpleDetailsTable"},
	MinData: &extract.Selector{Fields: []extract.Field{
		{Key: "reference", Label: "Reference"},
		{Key: "address", Label: "Address"},
		{Key: "description", Label: "Proposal"},
	}},
	OptionalData: []extract.Template{
		&extract.Selector{Fields: []extract.Field{
			{Key: "date_received", Label: "Application Received", Optional: true},
			{Key: "date_validated", Label: "Application Validated", Optional: true},
			{Key: "status", Label: "Status", Optional: true},
			{Key: "decision", Label: "Decision", Optional: true},
			{Key: "decision_issued_date", Label: "Decision Issued Date", Optional: true},
			{Key: "appeal_result", Label: "Appeal Decision", Optional: true},
		}},
	},
	InvalidFormat: extract.NewRegex(`(?i)application (?:could not be found|is not available)`),
}

var searchFormListing = Listing{
	Results: extract.Config{DataBlock: &extract.Selector{Scope: "#searchresults"}},
	Rows: &extract.Selector{Rows: "li.searchresult", Fields: []extract.Field{
		{Key: "url", Selector: "a", Attr: "href"},
		{Key: "uid", Selector: "p.metaInfo", Pattern: re(`Ref\. No:\s*([^|]+?)\s*(?:\||$)`)},
		{Key: "date_received", Selector: "p.metaInfo", Pattern: re(`Received:\s*([^|]+?)\s*(?:\||$)`), Optional: true},
		{Key: "date_validated", Selector: "p.metaInfo", Pattern: re(`Validated:\s*([^|]+?)\s*(?:\||$)`), Optional: true},
	}},
	NoResults: re(`(?i)no results found`),
	NextLink:  "Next",
}

func searchForm(base string) *SearchForm {
	return &SearchForm{
		Detail:    Detail{URL: base + "/applicationDetails.do?activeTab=summary&keyVal=%s"},
		Listing:   searchFormListing,
		Form:      "#advancedSearchForm",
		FromField: "date(applicationReceivedStart)",
		ToField:   "date(applicationReceivedEnd)",
		Fixed:     map[string]string{"searchType": "Application"},
	}
}

// Detail page of the weekly-list portal: a definition list.
var weeklyDetail = &extract.Config{
	DataBlock: &extract.Selector{Scope: "#application-details"},
	MinData: &extract.Selector{Fields: []extract.Field{
		{Key: "uid", Label: "Application Number"},
		{Key: "address", Label: "Site Address"},
		{Key: "description", Label: "Proposal"},
	}},
	OptionalData: []extract.Template{
		&extract.Selector{Fields: []extract.Field{
			{Key: "date_validated", Label: "Date Valid", Optional: true},
			{Key: "application_type", Label: "Application Type", Optional: true},
			{Key: "case_officer", Label: "Case Officer", Optional: true},
			{Key: "ward_name", Label: "Ward", Optional: true},
			{Key: "parish", Label: "Parish", Optional: true},
			{Key: "easting", Label: "Easting", Optional: true},
			{Key: "northing", Label: "Northing", Optional: true},
		}},
	},
}

var weeklyListing = Listing{
	Results: extract.Config{DataBlock: &extract.Selector{Scope: "table.weekly-list"}},
	Rows: &extract.Selector{Rows: "tbody tr", Fields: []extract.Field{
		{Key: "uid", Selector: "td:nth-child(1)"},
		{Key: "url", Selector: "td:nth-child(1) a", Attr: "href", Optional: true},
		{Key: "date_validated", Selector: "td:nth-child(3)", Optional: true},
	}},
	NoResults: re(`(?i)no applications (?:were )?(?:received|validated)`),
	NextLink:  "Next page",
}

// Detail document of the JSON API family.
var jsonAPIDetail = &extract.JSONConfig{
	DataBlock: []string{"application"},
	MinData: []extract.JSONField{
		{Key: "uid", Path: []string{"reference"}},
		{Key: "address", Path: []string{"site", "address"}},
		{Key: "description", Path: []string{"proposal"}},
	},
	OptionalData: []extract.JSONField{
		{Key: "url", Path: []string{"id"}, Template: "/planning/applications/{{value}}"},
		{Key: "postcode", Path: []string{"site", "postcode"}},
		{Key: "lat", Path: []string{"site", "latitude"}},
		{Key: "lng", Path: []string{"site", "longitude"}},
		{Key: "date_received", Path: []string{"received"}},
		{Key: "date_validated", Path: []string{"validated"}},
		{Key: "status", Path: []string{"status"}},
		{Key: "decision", Path: []string{"decision", "outcome"}},
		{Key: "decision_date", Path: []string{"decision", "date"}},
		{Key: "uprn", Path: []string{"site", "uprn"}},
	},
}

var jsonAPIResults = extract.JSONConfig{
	DataBlock: []string{"results"},
	MinData:   []extract.JSONField{{Key: "uid", Path: []string{"reference"}}},
	OptionalData: []extract.JSONField{
		{Key: "url", Path: []string{"id"}, Template: "/planning/applications/{{value}}"},
		{Key: "date_received", Path: []string{"received"}},
	},
}

// Detail page of the annual-uid portal. A missing record shows a notice
// instead of the case table.
var annualDetail = &extract.Config{
	DataBlock: &extract.Selector{Scope: "table.case-details"},
	MinData: &extract.Selector{Fields: []extract.Field{
		{Key: "uid", Label: "Case Reference"},
		{Key: "address", Label: "Location"},
		{Key: "description", Label: "Description"},
	}},
	OptionalData: []extract.Template{
		&extract.Selector{Fields: []extract.Field{
			{Key: "date_received", Label: "Date Received", Optional: true},
			{Key: "decision", Label: "Decision", Optional: true},
			{Key: "decision_date", Label: "Decision Date", Optional: true},
			{Key: "os_grid_ref", Label: "Grid Reference", Optional: true},
		}},
	},
}

// Authorities returns the registered authority table, disabled entries
// included.
func Authorities() []registry.Entry {
	return []registry.Entry{
		Entry(scrape.Site{
			AuthorityName:      "Hart",
			BaseType:           models.BaseDate,
			SearchURL:          "https://publicaccess.hart.gov.uk/online-applications/search.do?action=advanced",
			DataStartTarget:    "2002-01-08",
			ResponseDateLayout: "Mon 02 Jan 2006",
			Detail:             searchFormDetail,
		}, searchForm("https://publicaccess.hart.gov.uk/online-applications")),

		Entry(scrape.Site{
			AuthorityName:      "Rushmoor",
			BaseType:           models.BaseDate,
			SearchURL:          "https://publicaccess.rushmoor.gov.uk/online-applications/search.do?action=advanced",
			DataStartTarget:    "2004-03-01",
			ResponseDateLayout: "Mon 02 Jan 2006",
			RateLimit:          1,
			Detail:             searchFormDetail,
		}, searchForm("https://publicaccess.rushmoor.gov.uk/online-applications")),

		Entry(scrape.Site{
			AuthorityName:      "Waverley",
			BaseType:           models.BaseDate,
			Disabled:           true,
			Comment:            "Search form now requires a browser challenge",
			SearchURL:          "https://planning360.waverley.gov.uk/online-applications/search.do?action=advanced",
			ResponseDateLayout: "Mon 02 Jan 2006",
			Detail:             searchFormDetail,
		}, searchForm("https://planning360.waverley.gov.uk/online-applications")),

		Entry(scrape.Site{
			AuthorityName:      "Northumberland",
			BaseType:           models.BasePeriod,
			PeriodType:         "Friday",
			SearchURL:          "https://publicaccess.northumberland.gov.uk/weekly",
			DataStartTarget:    "2009-04-03",
			RequestDateLayout:  "02/01/2006",
			ResponseDateLayout: "02/01/2006",
			Detail:             weeklyDetail,
		}, &WeeklyList{
			Detail:  Detail{URL: "https://publicaccess.northumberland.gov.uk/weekly/application?ref=%s"},
			Listing: weeklyListing,
			ListURL: "https://publicaccess.northumberland.gov.uk/weekly/list?week_ending=%s",
		}),

		Entry(scrape.Site{
			AuthorityName:      "BelfastCity",
			BaseType:           models.BasePeriod,
			PeriodType:         "-Monday",
			SearchURL:          "https://epicpublic.planningni.gov.uk/weekly",
			DataStartTarget:    "2015-04-06",
			RequestDateLayout:  "2006-01-02",
			ResponseDateLayout: "02/01/2006",
			Insecure:           true,
			Timeout:            40 * time.Second,
			Detail:             weeklyDetail,
		}, &WeeklyList{
			Detail:  Detail{URL: "https://epicpublic.planningni.gov.uk/weekly/application?ref=%s"},
			Listing: weeklyListing,
			ListURL: "https://epicpublic.planningni.gov.uk/weekly/list?council=belfast&week_starting=%s",
			ByStart: true,
		}),

		Entry(scrape.Site{
			AuthorityName:   "Camden",
			BaseType:        models.BaseList,
			UIDNumSequence:  true,
			URLFirst:        true,
			SearchURL:       "https://planningapi.camden.gov.uk/planning/applications",
			DataStartTarget: "1",
			BatchSize:       100,
			DetailJSON:      jsonAPIDetail,
		}, &JSONAPI{
			Detail:     Detail{URL: "https://planningapi.camden.gov.uk/planning/applications/by-reference/%s"},
			RangeURL:   "https://planningapi.camden.gov.uk/planning/applications?from_id=%d&to_id=%d",
			Results:    jsonAPIResults,
			LatestURL:  "https://planningapi.camden.gov.uk/planning/applications/latest",
			LatestPath: []string{"application", "id"},
		}),

		Entry(scrape.Site{
			AuthorityName: "Exmoor",
			BaseType:      models.BaseList,
			Annual:        true,
			UIDOnly:       true,
			SearchURL:     "https://planning.exmoor-nationalpark.gov.uk/cases",
			BatchSize:     20,
			CurrentSpan:   60,
			Detail:        annualDetail,
		}, &AnnualUID{
			Detail:    Detail{URL: "https://planning.exmoor-nationalpark.gov.uk/cases/view?ref=%s"},
			LatestURL: "https://planning.exmoor-nationalpark.gov.uk/cases/recent",
		}),
	}
}
