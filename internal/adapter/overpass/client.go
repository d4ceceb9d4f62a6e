// Package overpass implements the lower-precision secondary data source:
// crowd-sourced OpenStreetMap features fetched through an Overpass API
// endpoint. Used only when every primary category succeeds with zero
// features, and always tagged with a distinct provenance flag.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
)

const callSource = "overpass"

// Client queries an Overpass API endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	sink       domain.CallSink
	logger     *slog.Logger
}

// NewClient creates an Overpass client.
func NewClient(endpoint string, timeout time.Duration, sink domain.CallSink, logger *slog.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		sink:       sink,
		logger:     logger,
	}
}

// Fetch runs the category's configured Overpass filter around the site and
// converts any hits to utility features carrying the secondary-source
// provenance flag. Best effort: errors are returned for logging but the
// caller never escalates them into the enrichment status.
func (c *Client) Fetch(ctx context.Context, svc domain.CategoryService, site domain.Geo) ([]domain.UtilityFeature, error) {
	if svc.OverpassFilter == "" {
		return nil, nil
	}

	radius := svc.RadiusFeet
	if radius == 0 {
		radius = 500
	}
	radiusMeters := radius / domain.FeetFromMeters(1)

	query := fmt.Sprintf("[out:json][timeout:10];(%s(around:%.0f,%.7f,%.7f););out body geom;",
		svc.OverpassFilter, radiusMeters, site.Lat, site.Lng)

	start := time.Now()
	elements, err := c.execute(ctx, query)
	elapsed := time.Since(start)

	if err != nil {
		c.sink.Record(ctx, domain.NewCallRecord(callSource, c.endpoint, elapsed, false, err.Error()))
		return nil, err
	}
	c.sink.Record(ctx, domain.NewCallRecord(callSource, c.endpoint, elapsed, true, ""))

	out := make([]domain.UtilityFeature, 0, len(elements))
	for _, el := range elements {
		uf, ok := el.toFeature(svc.Key, site)
		if !ok {
			continue
		}
		out = append(out, uf)
	}
	return out, nil
}

func (c *Client) execute(ctx context.Context, query string) ([]element, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("overpass status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode overpass response: %w", err)
	}
	return decoded.Elements, nil
}

// Overpass API response types.

type response struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type     string            `json:"type"` // "node" or "way"
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Geometry []latLon          `json:"geometry"` // way vertex list
	Tags     map[string]string `json:"tags"`
}

type latLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// toFeature converts an Overpass element to a utility feature with computed
// distance. Elements without usable geometry are skipped.
func (el element) toFeature(category string, site domain.Geo) (domain.UtilityFeature, bool) {
	attrs := make(map[string]any, len(el.Tags))
	for k, v := range el.Tags {
		attrs[k] = v
	}

	uf := domain.UtilityFeature{
		Category:   category,
		Attributes: attrs,
		Flags:      []string{domain.FlagSecondarySource},
	}

	switch el.Type {
	case "node":
		p := domain.Geo{Lat: el.Lat, Lng: el.Lon}
		d := domain.PointDistanceFeet(site, p)
		uf.Geometry = domain.Geometry{Kind: domain.GeometryPoint, Point: &p}
		uf.DistanceFeet = &d
	case "way":
		if len(el.Geometry) == 0 {
			return domain.UtilityFeature{}, false
		}
		path := make([]domain.Geo, len(el.Geometry))
		for i, v := range el.Geometry {
			path[i] = domain.Geo{Lat: v.Lat, Lng: v.Lon}
		}
		d := domain.PolylineDistanceFeet(site, [][]domain.Geo{path})
		uf.Geometry = domain.Geometry{Kind: domain.GeometryPolyline, Paths: [][]domain.Geo{path}}
		uf.DistanceFeet = &d
	default:
		return domain.UtilityFeature{}, false
	}
	return uf, true
}
