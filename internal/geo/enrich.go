package geo

import (
	"strconv"
	"strings"

	"github.com/law-makers/planscrape/pkg/models"
)

// Bounding box of the UK and Ireland in WGS84 degrees. Bounds are exclusive.
const (
	MinLng = -11.0
	MaxLng = 4.0
	MinLat = 48.0
	MaxLat = 62.0
)

type gridLimits struct {
	maxE, maxN       float64
	cornerE, cornerN float64
}

var limits = map[Grid]gridLimits{
	GB: {maxE: 800000, maxN: 1300000, cornerE: 10000, cornerN: 100000},
	IE: {maxE: 400000, maxN: 500000, cornerE: 1000, cornerN: 1000},
}

// InBox reports whether a WGS84 position lies inside the UK/Ireland box.
func InBox(lat, lng float64) bool {
	return lng > MinLng && lng < MaxLng && lat > MinLat && lat < MaxLat
}

// ValidGridPoint rejects coordinates outside the grid rectangle and the
// empty south west corner, where zeroes and truncated values land.
func ValidGridPoint(grid Grid, e, n float64) bool {
	l, ok := limits[grid]
	if !ok {
		return false
	}
	if e < 0 || n < 0 || e >= l.maxE || n >= l.maxN {
		return false
	}
	return !(e <= l.cornerE && n <= l.cornerN)
}

// GridFor picks the Irish grid for Northern Ireland applications and the
// British grid otherwise.
func GridFor(postcode, url string) Grid {
	if strings.HasPrefix(strings.ToUpper(postcode), "BT") || strings.Contains(url, "planningni.gov.uk/") {
		return IE
	}
	return GB
}

// Enrich sets postcode, lat and lng on rec from whatever location fields it
// carries. A record whose location cannot be resolved loses any lat/lng it
// had so that no unchecked coordinates are returned.
func Enrich(rec models.Record) {
	if pc, ok := findPostcode(rec); ok {
		rec["postcode"] = pc
	}
	grid := GridFor(rec["postcode"], rec["url"])

	lat, lng, ok := resolve(rec, grid)
	latS, lngS := formatCoord(lat), formatCoord(lng)
	if ok {
		// rounding can push a point sitting on the edge out of the box
		lat, lng, ok = parseLatLng(latS, lngS)
		ok = ok && InBox(lat, lng)
	}
	if !ok {
		delete(rec, "lat")
		delete(rec, "lng")
		return
	}
	rec["lat"] = latS
	rec["lng"] = lngS
}

func findPostcode(rec models.Record) (string, bool) {
	if pc, ok := ExtractPostcode(rec["postcode"]); ok {
		return pc, true
	}
	if pc, ok := ExtractPostcode(rec["address"]); ok {
		return pc, true
	}
	addr, applicant := strings.ToUpper(rec["address"]), strings.ToUpper(rec["applicant_address"])
	if addr != "" && strings.HasPrefix(applicant, addr) {
		return ExtractPostcode(applicant)
	}
	return "", false
}

func resolve(rec models.Record, grid Grid) (lat, lng float64, ok bool) {
	if lat, lng, ok := parseLatLng(rec["latitude"], rec["longitude"]); ok && InBox(lat, lng) {
		return lat, lng, true
	}

	e, n, found := eastingNorthing(rec)
	if !found {
		ref := rec["os_grid_ref"]
		if ref == "" {
			return 0, 0, false
		}
		var err error
		if e, n, err = ParseGridRef(grid, ref); err != nil {
			return 0, 0, false
		}
		rec["easting"] = formatMetres(e)
		rec["northing"] = formatMetres(n)
	}

	if !ValidGridPoint(grid, e, n) {
		return 0, 0, false
	}
	lat, lng, err := ToWGS84(grid, e, n)
	if err != nil || !InBox(lat, lng) {
		return 0, 0, false
	}
	return lat, lng, true
}

// eastingNorthing reads easting and northing. Some portals publish
// decimetres, which shows up as seven digit values of equal length.
func eastingNorthing(rec models.Record) (e, n float64, ok bool) {
	es, ns := strings.TrimSpace(rec["easting"]), strings.TrimSpace(rec["northing"])
	if es == "" || ns == "" {
		return 0, 0, false
	}
	e, errE := strconv.ParseFloat(es, 64)
	n, errN := strconv.ParseFloat(ns, 64)
	if errE != nil || errN != nil {
		return 0, 0, false
	}
	if len(es) == 7 && len(ns) == 7 && allDigits(es) && allDigits(ns) {
		e, n = e/10, n/10
	}
	return e, n, true
}

func parseLatLng(latS, lngS string) (lat, lng float64, ok bool) {
	if strings.TrimSpace(latS) == "" || strings.TrimSpace(lngS) == "" {
		return 0, 0, false
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latS), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(lngS), 64)
	return lat, lng, errLat == nil && errLng == nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatMetres(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
