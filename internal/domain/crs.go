package domain

import (
	"errors"
	"math"
)

// ErrUnsupportedGeometry is returned when a geometry kind or shape cannot be
// normalized. Callers treat it as a per-feature outcome, not a request failure.
var ErrUnsupportedGeometry = errors.New("unsupported geometry")

// FlagSuspectCoordinates marks geometry that normalized to a point outside
// the jurisdiction's bounding envelope.
const FlagSuspectCoordinates = "suspect_coordinates"

// GRS80 ellipsoid (NAD83 datum).
const (
	grs80A = 6378137.0
	grs80F = 1.0 / 298.257222101
)

// US survey foot in meters (exact ratio 1200/3937).
const usFootMeters = 1200.0 / 3937.0

// lambertZone holds the precomputed constants of one Lambert Conformal Conic
// (2SP) projection. Formulas follow Snyder, "Map Projections: A Working
// Manual", eq. 15-1 through 15-11.
type lambertZone struct {
	wkid    int
	e       float64 // ellipsoid eccentricity
	n       float64 // cone constant
	bigF    float64 // scale constant
	rho0    float64 // radius at latitude of origin, meters
	lambda0 float64 // central meridian, radians
	falseE  float64 // false easting, meters
	falseN  float64 // false northing, meters
	toUnit  float64 // meters -> projection linear unit
}

// texasSouthCentral is NAD83 / Texas South Central (ftUS), WKID 2278:
// standard parallels 28°23'N and 30°17'N, origin 27°50'N 99°00'W,
// false origin (600,000 m E, 4,000,000 m N), US survey feet.
var texasSouthCentral = newLambertZone(
	WKIDTexasSouthFt,
	dms(28, 23), dms(30, 17), // standard parallels
	dms(27, 50), -99.0, // latitude of origin, central meridian
	600000.0, 4000000.0, // false easting/northing, meters
	1.0/usFootMeters, // output in US survey feet
)

func dms(deg, min float64) float64 {
	return deg + min/60.0
}

func newLambertZone(wkid int, sp1, sp2, lat0, lon0, falseE, falseN, toUnit float64) *lambertZone {
	e2 := 2*grs80F - grs80F*grs80F
	e := math.Sqrt(e2)

	phi1 := sp1 * math.Pi / 180
	phi2 := sp2 * math.Pi / 180
	phi0 := lat0 * math.Pi / 180

	m1 := lambertM(phi1, e)
	m2 := lambertM(phi2, e)
	t0 := lambertT(phi0, e)
	t1 := lambertT(phi1, e)
	t2 := lambertT(phi2, e)

	n := (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	bigF := m1 / (n * math.Pow(t1, n))
	rho0 := grs80A * bigF * math.Pow(t0, n)

	return &lambertZone{
		wkid:    wkid,
		e:       e,
		n:       n,
		bigF:    bigF,
		rho0:    rho0,
		lambda0: lon0 * math.Pi / 180,
		falseE:  falseE,
		falseN:  falseN,
		toUnit:  toUnit,
	}
}

func lambertM(phi, e float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-e*e*s*s)
}

func lambertT(phi, e float64) float64 {
	s := math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-e*s)/(1+e*s), e/2)
}

// forward projects a geographic coordinate into the zone's planar space.
func (z *lambertZone) forward(g Geo) ProjectedPoint {
	phi := g.Lat * math.Pi / 180
	lambda := g.Lng * math.Pi / 180

	t := lambertT(phi, z.e)
	rho := grs80A * z.bigF * math.Pow(t, z.n)
	theta := z.n * (lambda - z.lambda0)

	x := z.falseE + rho*math.Sin(theta)
	y := z.falseN + z.rho0 - rho*math.Cos(theta)

	return ProjectedPoint{X: x * z.toUnit, Y: y * z.toUnit, WKID: z.wkid}
}

// inverse converts a planar coordinate back to geographic degrees. The
// latitude series converges in a handful of iterations; the loop is capped
// at 15.
func (z *lambertZone) inverse(p ProjectedPoint) Geo {
	x := p.X/z.toUnit - z.falseE
	y := z.rho0 - (p.Y/z.toUnit - z.falseN)

	rho := math.Sqrt(x*x + y*y)
	if z.n < 0 {
		rho = -rho
		x, y = -x, -y
	}
	theta := math.Atan2(x, y)
	lambda := theta/z.n + z.lambda0

	if rho == 0 {
		lat := 90.0
		if z.n < 0 {
			lat = -90.0
		}
		return Geo{Lat: lat, Lng: lambda * 180 / math.Pi}
	}

	t := math.Pow(rho/(grs80A*z.bigF), 1/z.n)
	phi := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 15; i++ {
		s := math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-z.e*s)/(1+z.e*s), z.e/2))
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}

	return Geo{Lat: phi * 180 / math.Pi, Lng: lambda * 180 / math.Pi}
}

// ProjectToTexasSouth converts a geographic coordinate to NAD83 Texas South
// Central (US survey feet).
func ProjectToTexasSouth(g Geo) ProjectedPoint {
	return texasSouthCentral.forward(g)
}

// GeographicFromProjected converts a projected point back to WGS84 degrees.
// Unknown WKIDs fall through to the Texas South Central zone, the only
// projected system the configured services use.
func GeographicFromProjected(p ProjectedPoint) Geo {
	return texasSouthCentral.inverse(p)
}

// DetectCRS classifies a raw coordinate pair by magnitude: a first ordinate
// beyond the degree-valid range cannot be geographic, so it is treated as
// projected. Services occasionally return geometry without a declared
// spatial reference, which makes this heuristic necessary.
func DetectCRS(x, y float64) int {
	if math.Abs(x) > 360 {
		return WKIDTexasSouthFt
	}
	return WKIDGeographic
}

// normalizePair converts one raw ordinate pair to geographic degrees,
// applying the detection heuristic. ArcGIS-style pairs are (x, y) which maps
// to (lng, lat) in the geographic case.
func normalizePair(x, y float64) Geo {
	if DetectCRS(x, y) == WKIDTexasSouthFt {
		return texasSouthCentral.inverse(ProjectedPoint{X: x, Y: y, WKID: WKIDTexasSouthFt})
	}
	return Geo{Lat: y, Lng: x}
}

// NormalizeGeometry converts a raw geometry (coordinate pairs in an unknown
// or projected system) to geographic degrees and checks every vertex against
// the jurisdiction envelope. Out-of-envelope coordinates never fail the
// call; they attach the suspect_coordinates flag instead. A shape with no
// coordinates or an unrecognized kind yields ErrUnsupportedGeometry.
func NormalizeGeometry(raw RawGeometry, region Envelope) (Geometry, []string, error) {
	var flags []string
	suspect := false
	check := func(g Geo) Geo {
		if !region.IsZero() && !region.Contains(g) {
			suspect = true
		}
		return g
	}

	var out Geometry
	switch {
	case raw.Point != nil:
		p := check(normalizePair(raw.Point[0], raw.Point[1]))
		out = Geometry{Kind: GeometryPoint, Point: &p}
	case len(raw.Paths) > 0:
		paths := make([][]Geo, 0, len(raw.Paths))
		for _, path := range raw.Paths {
			// A path without vertices would serialize distances as +Inf
			// downstream; reject it like any other malformed shape.
			if len(path) == 0 {
				return Geometry{}, nil, ErrUnsupportedGeometry
			}
			line := make([]Geo, 0, len(path))
			for _, pair := range path {
				if len(pair) < 2 {
					return Geometry{}, nil, ErrUnsupportedGeometry
				}
				line = append(line, check(normalizePair(pair[0], pair[1])))
			}
			paths = append(paths, line)
		}
		out = Geometry{Kind: GeometryPolyline, Paths: paths}
	case len(raw.Rings) > 0:
		rings := make([][]Geo, 0, len(raw.Rings))
		for _, ring := range raw.Rings {
			if len(ring) == 0 {
				return Geometry{}, nil, ErrUnsupportedGeometry
			}
			r := make([]Geo, 0, len(ring))
			for _, pair := range ring {
				if len(pair) < 2 {
					return Geometry{}, nil, ErrUnsupportedGeometry
				}
				r = append(r, check(normalizePair(pair[0], pair[1])))
			}
			rings = append(rings, r)
		}
		out = Geometry{Kind: GeometryPolygon, Rings: rings}
	default:
		return Geometry{}, nil, ErrUnsupportedGeometry
	}

	if suspect {
		flags = append(flags, FlagSuspectCoordinates)
	}
	return out, flags, nil
}

// RawGeometry is geometry as deserialized from a feature service, before
// coordinate-system normalization. Point is an (x, y) pair; Paths and Rings
// are lists of (x, y) vertex pairs.
type RawGeometry struct {
	Point *[2]float64
	Paths [][][]float64
	Rings [][][]float64
}
