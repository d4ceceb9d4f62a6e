package arcgis

import "github.com/parcelworks/gis-enrichment-service/internal/domain"

// Wire types for ArcGIS-style feature service query responses.
//
// Note the service convention: structural errors frequently arrive inside a
// 200 response as an embedded error object, so decoding must check for it
// before trusting the feature list.

type queryResponse struct {
	Error    *apiError     `json:"error"`
	Features []wireFeature `json:"features"`
}

type apiError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

type wireFeature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *wireGeometry  `json:"geometry"`
}

type wireGeometry struct {
	X     *float64      `json:"x"`
	Y     *float64      `json:"y"`
	Paths [][][]float64 `json:"paths"`
	Rings [][][]float64 `json:"rings"`
}

// raw converts a wire geometry to the domain's pre-normalization form.
func (g *wireGeometry) raw() domain.RawGeometry {
	if g == nil {
		return domain.RawGeometry{}
	}
	out := domain.RawGeometry{Paths: g.Paths, Rings: g.Rings}
	if g.X != nil && g.Y != nil {
		out.Point = &[2]float64{*g.X, *g.Y}
	}
	return out
}
