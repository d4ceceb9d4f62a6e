package arcgis

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
)

// FetchPage retrieves one fixed-size page of features for a bulk ingestion
// layer. The request always carries an explicit orderByFields on the layer's
// order field: count-based resume only works when repeated queries with the
// same offset return features in stable order, and the source's default
// ordering is not guaranteed.
func (c *Client) FetchPage(ctx context.Context, layer domain.LayerConfig, offset, pageSize int) ([]domain.SourceFeature, error) {
	params := url.Values{
		"f":                 {"json"},
		"where":             {"1=1"},
		"outFields":         {"*"},
		"returnGeometry":    {"true"},
		"outSR":             {strconv.Itoa(domain.WKIDGeographic)},
		"resultOffset":      {strconv.Itoa(offset)},
		"resultRecordCount": {strconv.Itoa(pageSize)},
	}
	if layer.OrderField != "" {
		params.Set("orderByFields", layer.OrderField)
	}
	if !layer.BoundingBox.IsZero() {
		b := layer.BoundingBox
		params.Set("geometry", fmt.Sprintf("%.7f,%.7f,%.7f,%.7f", b.MinLng, b.MinLat, b.MaxLng, b.MaxLat))
		params.Set("geometryType", "esriGeometryEnvelope")
		params.Set("inSR", strconv.Itoa(domain.WKIDGeographic))
		params.Set("spatialRel", "esriSpatialRelIntersects")
	}

	fullURL := layer.Endpoint + "/query?" + params.Encode()

	start := time.Now()
	features, aerr := c.execute(ctx, fullURL)
	elapsed := time.Since(start)

	if aerr != nil {
		c.sink.Record(ctx, domain.NewCallRecord(callSource, layer.Endpoint, elapsed, false, aerr.err.Error()))
		return nil, &QueryError{Class: aerr.class, Err: aerr.err}
	}
	c.sink.Record(ctx, domain.NewCallRecord(callSource, layer.Endpoint, elapsed, true, ""))

	out := make([]domain.SourceFeature, 0, len(features))
	for _, f := range features {
		out = append(out, domain.SourceFeature{
			Attributes: f.Attributes,
			Geometry:   f.Geometry.raw(),
		})
	}
	return out, nil
}
