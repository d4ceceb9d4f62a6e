package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
)

const callSource = "arcgis"

// QueryError is the typed failure returned when all query strategies are
// exhausted or the service is unreachable.
type QueryError struct {
	Class domain.FailureClass
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("arcgis query %s: %v", e.Class, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// FailureClass exposes the classification to the orchestrator without an
// import of this package's concrete type.
func (e *QueryError) FailureClass() domain.FailureClass { return e.Class }

// Client issues parameterized spatial queries against ArcGIS-style feature
// services, handling retry, coordinate-system fallback, and failure
// classification. Safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	sink        domain.CallSink
	logger      *slog.Logger
	retryDelays []time.Duration
	attempts    int
}

// NewClient creates a spatial query client. retryDelays are the
// inter-attempt waits (the last entry repeats if attempts exceed it).
func NewClient(timeout time.Duration, attempts int, retryDelays []time.Duration, sink domain.CallSink, logger *slog.Logger) *Client {
	if attempts < 1 {
		attempts = 1
	}
	if len(retryDelays) == 0 {
		retryDelays = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		sink:        sink,
		logger:      logger,
		retryDelays: retryDelays,
		attempts:    attempts,
	}
}

// attempt-level error classes, distinct from the terminal taxonomy: a
// rejected attempt may still succeed on the fallback strategy.
type attemptError struct {
	class      domain.FailureClass
	structural bool // HTTP 400 or embedded code 400: wrong request shape
	err        error
}

func (e *attemptError) Error() string { return e.err.Error() }

// QuerySite queries one category service around a site and returns
// normalized, distance/area-enriched features.
//
// Strategy order: the primary coordinate system first, then the configured
// fallback. Within a strategy, attempts retry with increasing delays. A
// structural rejection (HTTP 400) abandons the remaining retries of the
// active strategy when another strategy is untried; an unreachable
// classification abandons everything, since no coordinate system fixes a
// dead network path.
func (c *Client) QuerySite(ctx context.Context, svc domain.CategoryService, site domain.Geo, region domain.Envelope) ([]domain.UtilityFeature, []string, error) {
	strategies := []int{svc.PrimaryWKID}
	if svc.FallbackWKID != 0 && svc.FallbackWKID != svc.PrimaryWKID {
		strategies = append(strategies, svc.FallbackWKID)
	}

	state := tryingPrimary
	var lastErr *attemptError

	for si, wkid := range strategies {
		features, aerr := c.runStrategy(ctx, svc, site, wkid, si < len(strategies)-1)
		if aerr == nil {
			flags := []string{}
			if state == tryingFallback {
				flags = append(flags, domain.FlagFoundViaFallbackCRS)
			}
			out, extraFlags := c.postProcess(svc, site, region, features)
			return out, append(flags, extraFlags...), nil
		}
		if aerr.class == domain.FailureUnreachable {
			return nil, nil, &QueryError{Class: domain.FailureUnreachable, Err: aerr.err}
		}
		lastErr = aerr
		state = state.next()
	}

	c.logger.Debug("query strategies exhausted", "category", svc.Key, "state", state.String())
	return nil, nil, &QueryError{Class: domain.FailureRequestRejected, Err: lastErr.err}
}

// runStrategy runs the retry loop for one coordinate system. fallbackRemains
// controls the structural-rejection early exit.
func (c *Client) runStrategy(ctx context.Context, svc domain.CategoryService, site domain.Geo, wkid int, fallbackRemains bool) ([]wireFeature, *attemptError) {
	var lastErr *attemptError

	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			if !sleepWithContext(ctx, c.delay(attempt-1)) {
				return nil, &attemptError{class: domain.FailureUnreachable, err: ctx.Err()}
			}
		}

		features, aerr := c.doQuery(ctx, svc, site, wkid)
		if aerr == nil {
			return features, nil
		}
		lastErr = aerr

		if aerr.class == domain.FailureUnreachable {
			return nil, aerr
		}
		if aerr.structural && fallbackRemains {
			// Retrying a structurally wrong request wastes the budget;
			// hand control to the next strategy immediately.
			c.logger.Debug("structural rejection, switching strategy",
				"category", svc.Key, "wkid", wkid, "error", aerr.err)
			return nil, aerr
		}
	}
	return nil, lastErr
}

// doQuery issues a single query attempt and reports it to the call sink,
// success or not. Early-abort paths must still log: the sink feeds cost and
// health monitoring.
func (c *Client) doQuery(ctx context.Context, svc domain.CategoryService, site domain.Geo, wkid int) ([]wireFeature, *attemptError) {
	fullURL := svc.Endpoint + "/query?" + c.siteParams(svc, site, wkid).Encode()

	start := time.Now()
	features, aerr := c.execute(ctx, fullURL)
	elapsed := time.Since(start)

	if aerr != nil {
		c.sink.Record(ctx, domain.NewCallRecord(callSource, svc.Endpoint, elapsed, false, aerr.err.Error()))
		return nil, aerr
	}
	c.sink.Record(ctx, domain.NewCallRecord(callSource, svc.Endpoint, elapsed, true, ""))
	return features, nil
}

// siteParams builds the query string for a point-radius (or point-intersect)
// query in the given coordinate system.
func (c *Client) siteParams(svc domain.CategoryService, site domain.Geo, wkid int) url.Values {
	var geom string
	if wkid == domain.WKIDTexasSouthFt {
		p := domain.ProjectToTexasSouth(site)
		geom = fmt.Sprintf("%.3f,%.3f", p.X, p.Y)
	} else {
		geom = fmt.Sprintf("%.7f,%.7f", site.Lng, site.Lat)
	}

	outFields := "*"
	if len(svc.OutFields) > 0 {
		outFields = strings.Join(svc.OutFields, ",")
	}

	params := url.Values{
		"f":              {"json"},
		"geometry":       {geom},
		"geometryType":   {"esriGeometryPoint"},
		"inSR":           {strconv.Itoa(wkid)},
		"outSR":          {strconv.Itoa(domain.WKIDGeographic)},
		"spatialRel":     {"esriSpatialRelIntersects"},
		"outFields":      {outFields},
		"returnGeometry": {"true"},
	}
	if svc.RadiusFeet > 0 {
		params.Set("distance", strconv.FormatFloat(svc.RadiusFeet, 'f', 0, 64))
		params.Set("units", "esriSRUnit_Foot")
	}
	return params
}

// execute performs the HTTP round trip and classifies every failure mode.
func (c *Client) execute(ctx context.Context, fullURL string) ([]wireFeature, *attemptError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &attemptError{class: domain.FailureRequestRejected, structural: true, err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// DNS, connection refused, client timeout, cancelled context:
		// nothing a different coordinate system can fix.
		return nil, &attemptError{class: domain.FailureUnreachable, err: fmt.Errorf("service unreachable: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &attemptError{class: domain.FailureUnreachable, err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		msg := embeddedErrorMessage(body)
		err := fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		return nil, &attemptError{
			class:      domain.FailureRequestRejected,
			structural: resp.StatusCode == http.StatusBadRequest,
			err:        err,
		}
	}

	var decoded queryResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &attemptError{class: domain.FailureRequestRejected, err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.Error != nil {
		err := fmt.Errorf("service error %d: %s", decoded.Error.Code, decoded.Error.Message)
		return nil, &attemptError{
			class:      domain.FailureRequestRejected,
			structural: decoded.Error.Code == http.StatusBadRequest,
			err:        err,
		}
	}
	return decoded.Features, nil
}

// postProcess normalizes geometry and computes distance/area for each
// feature. A feature whose geometry cannot be normalized is dropped rather
// than failing the category; the caller sees the remaining features plus a
// diagnostic flag.
func (c *Client) postProcess(svc domain.CategoryService, site domain.Geo, region domain.Envelope, features []wireFeature) ([]domain.UtilityFeature, []string) {
	out := make([]domain.UtilityFeature, 0, len(features))
	var flags []string
	dropped := 0

	for _, f := range features {
		geom, geomFlags, err := domain.NormalizeGeometry(f.Geometry.raw(), region)
		if err != nil {
			dropped++
			continue
		}

		uf := domain.UtilityFeature{
			Category:   svc.Key,
			Geometry:   geom,
			Attributes: f.Attributes,
			Flags:      geomFlags,
		}

		switch geom.Kind {
		case domain.GeometryPoint:
			d := domain.PointDistanceFeet(site, *geom.Point)
			uf.DistanceFeet = &d
		case domain.GeometryPolyline:
			d := domain.PolylineDistanceFeet(site, geom.Paths)
			uf.DistanceFeet = &d
		case domain.GeometryPolygon:
			if len(geom.Rings) > 0 {
				sqft, acres := domain.PolygonAreaAcres(geom.Rings[0])
				uf.AreaSquareFeet = &sqft
				uf.Acreage = &acres
			}
		}

		for _, fl := range geomFlags {
			if !containsFlag(flags, fl) {
				flags = append(flags, fl)
			}
		}
		out = append(out, uf)
	}

	if dropped > 0 {
		flags = append(flags, "unsupported_geometry_skipped")
		c.logger.Warn("dropped features with unsupported geometry",
			"category", svc.Key, "count", dropped)
	}
	return out, flags
}

func (c *Client) delay(i int) time.Duration {
	if i >= len(c.retryDelays) {
		return c.retryDelays[len(c.retryDelays)-1]
	}
	return c.retryDelays[i]
}

func containsFlag(flags []string, f string) bool {
	for _, x := range flags {
		if x == f {
			return true
		}
	}
	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func embeddedErrorMessage(body []byte) string {
	var decoded struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != nil {
		return decoded.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "no error payload"
	}
	return msg
}
