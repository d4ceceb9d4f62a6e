package domain

import "math"

const (
	earthRadiusMeters = 6371000.0
	feetPerMeter      = 3.28084
	squareFeetPerAcre = 43560.0
)

// HaversineMeters returns the great-circle distance between two geographic
// coordinates in meters.
func HaversineMeters(a, b Geo) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// FeetFromMeters converts meters to feet.
func FeetFromMeters(m float64) float64 {
	return m * feetPerMeter
}

// PolylineDistanceFeet returns the distance in feet from a site to the
// nearest vertex of a polyline. Vertex sampling, not true perpendicular
// segment distance: within the small municipal search radii used here the
// two diverge by at most the vertex spacing.
//
// Returns +Inf for a polyline with no vertices.
func PolylineDistanceFeet(site Geo, paths [][]Geo) float64 {
	minDist := math.Inf(1)
	for _, path := range paths {
		for _, v := range path {
			if d := HaversineMeters(site, v); d < minDist {
				minDist = d
			}
		}
	}
	if math.IsInf(minDist, 1) {
		return minDist
	}
	return FeetFromMeters(minDist)
}

// PointDistanceFeet returns the distance in feet between a site and a point
// feature.
func PointDistanceFeet(site, point Geo) float64 {
	return FeetFromMeters(HaversineMeters(site, point))
}

// ShoelaceAreaSquareFeet computes the planar area of a ring whose vertices
// are already in a feet-based projected system. The result is non-negative
// regardless of winding direction. Rings with fewer than three vertices have
// zero area. Do not call this with geographic-degree coordinates; project
// the ring first.
func ShoelaceAreaSquareFeet(ring []ProjectedPoint) float64 {
	if len(ring) < 3 {
		return 0
	}
	sum := 0.0
	for i := range ring {
		j := (i + 1) % len(ring)
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return math.Abs(sum) / 2
}

// AcresFromSquareFeet converts square feet to acres.
func AcresFromSquareFeet(sqft float64) float64 {
	return sqft / squareFeetPerAcre
}

// ProjectRing projects a geographic ring into Texas South Central feet for
// planar area math.
func ProjectRing(ring []Geo) []ProjectedPoint {
	out := make([]ProjectedPoint, len(ring))
	for i, g := range ring {
		out[i] = ProjectToTexasSouth(g)
	}
	return out
}

// PolygonAreaAcres projects a geographic ring and returns its area in square
// feet and acres.
func PolygonAreaAcres(ring []Geo) (sqft, acres float64) {
	sqft = ShoelaceAreaSquareFeet(ProjectRing(ring))
	return sqft, AcresFromSquareFeet(sqft)
}

// RingCentroid computes the planar centroid of a geographic ring using the
// shoelace-weighted formula in projected space, inverted back to degrees.
// Degenerate rings (area ~ 0, e.g. collinear vertices) fall back to the
// arithmetic vertex mean.
func RingCentroid(ring []Geo) Geo {
	if len(ring) == 0 {
		return Geo{}
	}
	proj := ProjectRing(ring)

	// Shoelace-weighted centroid.
	var signed, cx, cy float64
	for i := range proj {
		j := (i + 1) % len(proj)
		cross := proj[i].X*proj[j].Y - proj[j].X*proj[i].Y
		signed += cross
		cx += (proj[i].X + proj[j].X) * cross
		cy += (proj[i].Y + proj[j].Y) * cross
	}
	signed /= 2

	if math.Abs(signed) < 1e-6 {
		// Fallback: arithmetic mean of the vertices.
		var sx, sy float64
		for _, p := range proj {
			sx += p.X
			sy += p.Y
		}
		n := float64(len(proj))
		return GeographicFromProjected(ProjectedPoint{X: sx / n, Y: sy / n, WKID: WKIDTexasSouthFt})
	}

	cx /= 6 * signed
	cy /= 6 * signed
	return GeographicFromProjected(ProjectedPoint{X: cx, Y: cy, WKID: WKIDTexasSouthFt})
}
