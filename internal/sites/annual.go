package sites

import (
	"context"
	"regexp"
	"strconv"

	"github.com/law-makers/planscrape/internal/scrape"
	"github.com/law-makers/planscrape/internal/scrapeerr"
)

var defaultAnnualUID = regexp.MustCompile(`\b((?:19|20)\d\d)/(\d{1,5})\b`)

// AnnualUID is the family of portals numbering applications YYYY/NNNN with
// no listing by number. Candidates are probed one by one through Detail, so
// the site's Detail or DetailJSON templates must recognise a missing record.
type AnnualUID struct {
	Detail

	// LatestURL lists recent applications. The highest uid on it bounds
	// iteration.
	LatestURL string
	// UIDPattern captures year and index. It defaults to YYYY/N.
	UIDPattern *regexp.Regexp
}

// Name returns the family name.
func (a *AnnualUID) Name() string { return "AnnualUID" }

// MaxSequence implements scrape.MaxSequencer.
func (a *AnnualUID) MaxSequence(ctx context.Context, s *scrape.Scraper) (int, error) {
	page, err := s.Session().OpenFresh(ctx, a.LatestURL)
	if err != nil {
		return 0, err
	}
	re := a.UIDPattern
	if re == nil {
		re = defaultAnnualUID
	}

	site := s.Site()
	best := 0
	for _, m := range re.FindAllStringSubmatch(page.Decoded(), -1) {
		if len(m) < 3 {
			continue
		}
		year, err1 := strconv.Atoi(m[1])
		index, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil || index <= 0 || index >= site.MaxIndex {
			continue
		}
		if n := site.AnnualSeq(year, index); n > best {
			best = n
		}
	}
	if best == 0 {
		return 0, scrapeerr.Newf(scrapeerr.NoData, "no uids listed on %s", page.URL)
	}
	return best, nil
}
