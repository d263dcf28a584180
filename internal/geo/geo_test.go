package geo

import (
	"go/format"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/law-makers/planscrape/pkg/models"
)

func TestGridToLatLon_OSWorkedExample(t *testing.T) {
	// Ordnance Survey guide worked example, OSGB36 datum
	lat, lng, err := GridToLatLon(GB, 651409.903, 313177.270)
	require.NoError(t, err)
	assert.InDelta(t, 52.0+39.0/60+27.2531/3600, lat, 1e-6)
	assert.InDelta(t, 1.0+43.0/60+4.5177/3600, lng, 1e-6)
}

func TestToWGS84(t *testing.T) {
	lat, lng, err := ToWGS84(GB, 651409.903, 313177.270)
	require.NoError(t, err)
	assert.InDelta(t, 52.65798, lat, 1e-3)
	assert.InDelta(t, 1.71605, lng, 1e-3)

	// Dublin on the Irish grid
	lat, lng, err = ToWGS84(IE, 315904, 234671)
	require.NoError(t, err)
	assert.InDelta(t, 53.35, lat, 0.1)
	assert.InDelta(t, -6.26, lng, 0.1)

	_, _, err = ToWGS84(Grid("XX"), 1, 1)
	assert.ErrorIs(t, err, ErrUnknownGrid)

	lon, lat2, err := EastingNorthingToLonLat(GB, 651409.903, 313177.270)
	require.NoError(t, err)
	assert.InDelta(t, 1.71605, lon, 1e-3)
	assert.InDelta(t, 52.65798, lat2, 1e-3)
}

func TestExtractPostcode(t *testing.T) {
	cases := map[string]string{
		"1 High Street, Anytown AB1 2CD":   "AB1 2CD",
		"Flat 2, 10 Downing St, sw1a2aa":   "SW1A 2AA",
		"Unit 4 Harbour Estate BT1 1AA NI": "BT1 1AA",
		"Land at Rear of M1 Junction 4":    "",
	}
	for in, want := range cases {
		got, ok := ExtractPostcode(in)
		assert.Equal(t, want != "", ok, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseGridRef(t *testing.T) {
	e, n, err := ParseGridRef(GB, "TQ 30080 80190")
	require.NoError(t, err)
	assert.Equal(t, 530080.0, e)
	assert.Equal(t, 180190.0, n)

	e, n, err = ParseGridRef(GB, "nn1665071250")
	require.NoError(t, err)
	assert.Equal(t, 216650.0, e)
	assert.Equal(t, 771250.0, n)

	e, n, err = ParseGridRef(GB, "SU 3 1")
	require.NoError(t, err)
	assert.Equal(t, 430000.0, e)
	assert.Equal(t, 110000.0, n)

	e, n, err = ParseGridRef(IE, "O 15904 34671")
	require.NoError(t, err)
	assert.Equal(t, 315904.0, e)
	assert.Equal(t, 234671.0, n)

	for _, bad := range []string{"TQ 123 45", "T 12345 12345", "TQ 123", "Q9 1 1"} {
		_, _, err := ParseGridRef(GB, bad)
		assert.Error(t, err, bad)
	}
	_, _, err = ParseGridRef(IE, "TQ 1 1")
	assert.Error(t, err)
}

func TestEnrich_RejectsOrigin(t *testing.T) {
	rec := models.Record{"easting": "0", "northing": "0", "lat": "51.5", "lng": "-0.1"}
	Enrich(rec)
	assert.NotContains(t, rec, "lat")
	assert.NotContains(t, rec, "lng")
}

func TestEnrich_ConvertsBritishGrid(t *testing.T) {
	rec := models.Record{"easting": "400000", "northing": "300000", "address": "1 High St, Stafford ST16 2LD"}
	Enrich(rec)

	assert.Equal(t, "ST16 2LD", rec["postcode"])
	lat, err := strconv.ParseFloat(rec["lat"], 64)
	require.NoError(t, err)
	lng, err := strconv.ParseFloat(rec["lng"], 64)
	require.NoError(t, err)
	assert.True(t, InBox(lat, lng), "lat=%v lng=%v", lat, lng)
	assert.InDelta(t, 52.6, lat, 0.2)
	assert.InDelta(t, -2.0, lng, 0.2)
}

func TestEnrich_Sources(t *testing.T) {
	t.Run("lat/lng fields inside the box win", func(t *testing.T) {
		rec := models.Record{"latitude": "51.5014", "longitude": "-0.1419", "easting": "0", "northing": "0"}
		Enrich(rec)
		assert.Equal(t, "51.501400", rec["lat"])
		assert.Equal(t, "-0.141900", rec["lng"])
	})

	t.Run("lat/lng outside the box fall through to the grid", func(t *testing.T) {
		rec := models.Record{"latitude": "0", "longitude": "0", "easting": "530080", "northing": "180190"}
		Enrich(rec)
		assert.Contains(t, rec, "lat")
	})

	t.Run("decimetre values are scaled", func(t *testing.T) {
		rec := models.Record{"easting": "5300800", "northing": "1801900"}
		Enrich(rec)
		lat, _ := strconv.ParseFloat(rec["lat"], 64)
		assert.InDelta(t, 51.5, lat, 0.1)
	})

	t.Run("grid reference", func(t *testing.T) {
		rec := models.Record{"os_grid_ref": "TQ 30080 80190"}
		Enrich(rec)
		assert.Equal(t, "530080", rec["easting"])
		assert.Contains(t, rec, "lat")
	})

	t.Run("northern ireland uses the irish grid", func(t *testing.T) {
		rec := models.Record{"postcode": "bt1 1aa", "easting": "333500", "northing": "374500"}
		Enrich(rec)
		assert.Equal(t, "BT1 1AA", rec["postcode"])
		lat, _ := strconv.ParseFloat(rec["lat"], 64)
		lng, _ := strconv.ParseFloat(rec["lng"], 64)
		assert.InDelta(t, 54.6, lat, 0.1)
		assert.InDelta(t, -5.93, lng, 0.1)
	})

	t.Run("applicant address extends the site address", func(t *testing.T) {
		rec := models.Record{"address": "2 Low Road", "applicant_address": "2 Low Road, Anytown AB1 2CD"}
		Enrich(rec)
		assert.Equal(t, "AB1 2CD", rec["postcode"])
	})
}

func TestGridFor(t *testing.T) {
	assert.Equal(t, IE, GridFor("BT7 1NN", ""))
	assert.Equal(t, IE, GridFor("", "https://epicpublic.planningni.gov.uk/publicaccess/"))
	assert.Equal(t, GB, GridFor("AB1 2CD", "https://council.example/"))
}

func TestEnrich_NeverEmitsCoordinatesOutsideBox(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rec := models.Record{
			"easting":  strconv.Itoa(rapid.IntRange(-100000, 2000000).Draw(t, "e")),
			"northing": strconv.Itoa(rapid.IntRange(-100000, 2000000).Draw(t, "n")),
		}
		if rapid.Bool().Draw(t, "irish") {
			rec["postcode"] = "BT1 1AA"
		}
		Enrich(rec)

		if _, ok := rec["lat"]; !ok {
			return
		}
		lat, err1 := strconv.ParseFloat(rec["lat"], 64)
		lng, err2 := strconv.ParseFloat(rec["lng"], 64)
		if err1 != nil || err2 != nil || !InBox(lat, lng) {
			t.Fatalf("invalid coordinates %q,%q for %v", rec["lat"], rec["lng"], rec)
		}
	})
}

func TestSourcesAreFormatted(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)
	for _, name := range files {
		src, err := os.ReadFile(name)
		require.NoError(t, err)
		formatted, err := format.Source(src)
		require.NoError(t, err, name)
		assert.Equal(t, string(formatted), string(src), "%s is not gofmt-clean", name)
	}
}
