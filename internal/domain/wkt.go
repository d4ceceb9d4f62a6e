package domain

import (
	"fmt"
	"strings"
)

// GeometryWKT serializes a normalized geometry as well-known text for the
// canonical store. Coordinates are written lng lat (X Y order per the WKT
// convention). Empty geometry yields the empty string.
func GeometryWKT(g Geometry) string {
	switch g.Kind {
	case GeometryPoint:
		if g.Point == nil {
			return ""
		}
		return fmt.Sprintf("POINT (%s)", wktPair(*g.Point))
	case GeometryPolyline:
		if len(g.Paths) == 0 {
			return ""
		}
		if len(g.Paths) == 1 {
			return fmt.Sprintf("LINESTRING (%s)", wktCoords(g.Paths[0]))
		}
		parts := make([]string, len(g.Paths))
		for i, p := range g.Paths {
			parts[i] = "(" + wktCoords(p) + ")"
		}
		return fmt.Sprintf("MULTILINESTRING (%s)", strings.Join(parts, ", "))
	case GeometryPolygon:
		if len(g.Rings) == 0 {
			return ""
		}
		parts := make([]string, len(g.Rings))
		for i, r := range g.Rings {
			parts[i] = "(" + wktCoords(closeRing(r)) + ")"
		}
		return fmt.Sprintf("POLYGON (%s)", strings.Join(parts, ", "))
	default:
		return ""
	}
}

func wktPair(g Geo) string {
	return fmt.Sprintf("%.7f %.7f", g.Lng, g.Lat)
}

func wktCoords(pts []Geo) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = wktPair(p)
	}
	return strings.Join(parts, ", ")
}

// closeRing appends the first vertex when a ring is not explicitly closed;
// WKT requires closed rings while feature services often omit the repeat.
func closeRing(ring []Geo) []Geo {
	if len(ring) < 3 {
		return ring
	}
	if ring[0] == ring[len(ring)-1] {
		return ring
	}
	closed := make([]Geo, len(ring)+1)
	copy(closed, ring)
	closed[len(ring)] = ring[0]
	return closed
}
