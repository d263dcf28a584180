// Package geo converts national grid coordinates to WGS84 and extracts
// postcodes from addresses.
package geo

import (
	"errors"
	"math"
)

// Grid names a national grid.
type Grid string

const (
	GB Grid = "GB"
	IE Grid = "IE"
)

type ellipsoid struct {
	a, b float64
}

func (e ellipsoid) e2() float64 {
	return 1 - (e.b*e.b)/(e.a*e.a)
}

// projection is a Transverse Mercator grid definition.
type projection struct {
	ell        ellipsoid
	f0         float64
	lat0, lon0 float64
	e0, n0     float64
}

// helmert is a seven parameter datum shift to WGS84. Translations are in
// metres, scale in ppm and rotations in arc seconds.
type helmert struct {
	tx, ty, tz float64
	s          float64
	rx, ry, rz float64
}

var (
	airy1830     = ellipsoid{a: 6377563.396, b: 6356256.909}
	airyModified = ellipsoid{a: 6377340.189, b: 6356034.447}
	wgs84        = ellipsoid{a: 6378137.000, b: 6356752.314245}

	grids = map[Grid]struct {
		proj  projection
		shift helmert
	}{
		GB: {
			proj: projection{
				f0: 0.9996012717, ell: airy1830,
				e0: 400000, n0: -100000, lat0: rad(49), lon0: rad(-2),
			},
			shift: helmert{
				tx: 446.448, ty: -125.157, tz: 542.060, s: -20.4894,
				rx: 0.1502, ry: 0.2470, rz: 0.8421,
			},
		},
		IE: {
			proj: projection{
				f0: 1.000035, ell: airyModified,
				e0: 200000, n0: 250000, lat0: rad(53.5), lon0: rad(-8),
			},
			shift: helmert{
				tx: 482.530, ty: -130.596, tz: 564.557, s: 8.150,
				rx: -1.042, ry: -0.214, rz: -0.631,
			},
		},
	}
)

// ErrUnknownGrid is returned for a grid other than GB or IE.
var ErrUnknownGrid = errors.New("unknown grid")

// ToWGS84 converts an easting/northing on grid to WGS84 latitude and
// longitude in degrees.
func ToWGS84(grid Grid, easting, northing float64) (lat, lng float64, err error) {
	g, ok := grids[grid]
	if !ok {
		return 0, 0, ErrUnknownGrid
	}
	if math.IsNaN(easting) || math.IsNaN(northing) || math.IsInf(easting, 0) || math.IsInf(northing, 0) {
		return 0, 0, errors.New("coordinates are not finite")
	}

	phi, lambda := g.proj.inverse(easting, northing)
	x, y, z := toCartesian(g.proj.ell, phi, lambda)
	x, y, z = g.shift.apply(x, y, z)
	phi, lambda = fromCartesian(wgs84, x, y, z)
	return deg(phi), deg(lambda), nil
}

// EastingNorthingToLonLat is ToWGS84 with the result in longitude,
// latitude order.
func EastingNorthingToLonLat(grid Grid, easting, northing float64) (lng, lat float64, err error) {
	lat, lng, err = ToWGS84(grid, easting, northing)
	return lng, lat, err
}

// GridToLatLon returns latitude and longitude on the grid's own datum,
// before any datum shift.
func GridToLatLon(grid Grid, easting, northing float64) (lat, lng float64, err error) {
	g, ok := grids[grid]
	if !ok {
		return 0, 0, ErrUnknownGrid
	}
	phi, lambda := g.proj.inverse(easting, northing)
	return deg(phi), deg(lambda), nil
}

// inverse is the Ordnance Survey inverse Transverse Mercator projection.
func (p projection) inverse(e, n float64) (phi, lambda float64) {
	a, b, f0 := p.ell.a, p.ell.b, p.f0
	e2 := p.ell.e2()
	nn := (a - b) / (a + b)

	phi = p.lat0
	m := 0.0
	for range 100 {
		phi += (n - p.n0 - m) / (a * f0)
		m = p.meridional(phi, nn)
		if math.Abs(n-p.n0-m) < 0.00001 {
			break
		}
	}

	sinPhi := math.Sin(phi)
	nu := a * f0 / math.Sqrt(1-e2*sinPhi*sinPhi)
	rho := a * f0 * (1 - e2) / math.Pow(1-e2*sinPhi*sinPhi, 1.5)
	eta2 := nu/rho - 1

	tanPhi := math.Tan(phi)
	tan2 := tanPhi * tanPhi
	tan4 := tan2 * tan2
	tan6 := tan4 * tan2
	secPhi := 1 / math.Cos(phi)
	nu3 := nu * nu * nu
	nu5 := nu3 * nu * nu
	nu7 := nu5 * nu * nu

	vii := tanPhi / (2 * rho * nu)
	viii := tanPhi / (24 * rho * nu3) * (5 + 3*tan2 + eta2 - 9*tan2*eta2)
	ix := tanPhi / (720 * rho * nu5) * (61 + 90*tan2 + 45*tan4)
	x := secPhi / nu
	xi := secPhi / (6 * nu3) * (nu/rho + 2*tan2)
	xii := secPhi / (120 * nu5) * (5 + 28*tan2 + 24*tan4)
	xiia := secPhi / (5040 * nu7) * (61 + 662*tan2 + 1320*tan4 + 720*tan6)

	de := e - p.e0
	de2 := de * de
	de3 := de2 * de
	de4 := de3 * de
	de5 := de4 * de
	de6 := de5 * de
	de7 := de6 * de

	phi = phi - vii*de2 + viii*de4 - ix*de6
	lambda = p.lon0 + x*de - xi*de3 + xii*de5 - xiia*de7
	return phi, lambda
}

func (p projection) meridional(phi, n float64) float64 {
	n2, n3 := n*n, n*n*n
	dPhi, sPhi := phi-p.lat0, phi+p.lat0
	ma := (1 + n + 5.0/4*n2 + 5.0/4*n3) * dPhi
	mb := (3*n + 3*n2 + 21.0/8*n3) * math.Sin(dPhi) * math.Cos(sPhi)
	mc := (15.0/8*n2 + 15.0/8*n3) * math.Sin(2*dPhi) * math.Cos(2*sPhi)
	md := 35.0 / 24 * n3 * math.Sin(3*dPhi) * math.Cos(3*sPhi)
	return p.ell.b * p.f0 * (ma - mb + mc - md)
}

func toCartesian(ell ellipsoid, phi, lambda float64) (x, y, z float64) {
	e2 := ell.e2()
	sinPhi, cosPhi := math.Sincos(phi)
	sinL, cosL := math.Sincos(lambda)
	nu := ell.a / math.Sqrt(1-e2*sinPhi*sinPhi)
	return nu * cosPhi * cosL, nu * cosPhi * sinL, (1 - e2) * nu * sinPhi
}

func (h helmert) apply(x, y, z float64) (float64, float64, float64) {
	s1 := 1 + h.s/1e6
	rx, ry, rz := arcsec(h.rx), arcsec(h.ry), arcsec(h.rz)
	return h.tx + x*s1 - y*rz + z*ry,
		h.ty + x*rz + y*s1 - z*rx,
		h.tz - x*ry + y*rx + z*s1
}

// fromCartesian uses Bowring's method, accurate to well under a millimetre
// at the Earth's surface.
func fromCartesian(ell ellipsoid, x, y, z float64) (phi, lambda float64) {
	a, b := ell.a, ell.b
	e2 := ell.e2()
	ep2 := e2 / (1 - e2)
	p := math.Hypot(x, y)

	beta := math.Atan2(z*a, p*b)
	sinB, cosB := math.Sincos(beta)
	phi = math.Atan2(z+ep2*b*sinB*sinB*sinB, p-e2*a*cosB*cosB*cosB)
	lambda = math.Atan2(y, x)
	return phi, lambda
}

func rad(d float64) float64    { return d * math.Pi / 180 }
func deg(r float64) float64    { return r * 180 / math.Pi }
func arcsec(s float64) float64 { return rad(s / 3600) }
