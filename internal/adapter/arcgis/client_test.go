package arcgis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
)

var testRegion = domain.Envelope{
	MinLat: 28.8, MaxLat: 30.8,
	MinLng: -96.2, MaxLng: -94.3,
}

var testSite = domain.Geo{Lat: 29.7604, Lng: -95.3698}

// captureSink records every reported call for assertions.
type captureSink struct {
	mu      sync.Mutex
	records []domain.CallRecord
}

func (s *captureSink) Record(_ context.Context, rec domain.CallRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *captureSink) successes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.Success {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(attempts int, sink domain.CallSink) *Client {
	return NewClient(2*time.Second, attempts, []time.Duration{time.Millisecond}, sink, discardLogger())
}

func testService(endpoint string) domain.CategoryService {
	return domain.CategoryService{
		Key:          "water",
		Endpoint:     endpoint,
		PrimaryWKID:  domain.WKIDTexasSouthFt,
		FallbackWKID: domain.WKIDGeographic,
		RadiusFeet:   500,
	}
}

const pointFeatureBody = `{"features":[{"attributes":{"DIAMETER":8},"geometry":{"x":-95.3700,"y":29.7610}}]}`

func TestQuerySite_PrimarySuccess(t *testing.T) {
	sink := &captureSink{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "2278", r.URL.Query().Get("inSR"))
		assert.Equal(t, "4326", r.URL.Query().Get("outSR"))
		assert.Equal(t, "500", r.URL.Query().Get("distance"))
		assert.Equal(t, "esriSRUnit_Foot", r.URL.Query().Get("units"))
		fmt.Fprint(w, pointFeatureBody)
	}))
	defer srv.Close()

	client := newTestClient(3, sink)
	features, flags, err := client.QuerySite(context.Background(), testService(srv.URL), testSite, testRegion)

	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Empty(t, flags)
	assert.Equal(t, "water", features[0].Category)
	require.NotNil(t, features[0].DistanceFeet)
	assert.Greater(t, *features[0].DistanceFeet, 0.0)
	assert.Less(t, *features[0].DistanceFeet, 1000.0)

	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 1, sink.successes())
}

func TestQuerySite_EmptyResultIsSuccess(t *testing.T) {
	sink := &captureSink{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"features":[]}`)
	}))
	defer srv.Close()

	client := newTestClient(3, sink)
	features, flags, err := client.QuerySite(context.Background(), testService(srv.URL), testSite, testRegion)

	require.NoError(t, err)
	assert.Empty(t, features)
	assert.Empty(t, flags)
	assert.Equal(t, 1, sink.count())
}

func TestQuerySite_StructuralRejectionSwitchesStrategy(t *testing.T) {
	sink := &captureSink{}
	var primaryCalls, fallbackCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("inSR") == "2278" {
			primaryCalls++
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"code":400,"message":"Invalid spatial reference"}}`)
			return
		}
		fallbackCalls++
		fmt.Fprint(w, pointFeatureBody)
	}))
	defer srv.Close()

	client := newTestClient(3, sink)
	features, flags, err := client.QuerySite(context.Background(), testService(srv.URL), testSite, testRegion)

	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Contains(t, flags, domain.FlagFoundViaFallbackCRS)

	// A structural rejection must not burn the retry budget on the broken
	// strategy when a fallback remains.
	assert.Equal(t, 1, primaryCalls)
	assert.Equal(t, 1, fallbackCalls)
	assert.Equal(t, 2, sink.count())
	assert.Equal(t, 1, sink.successes())
}

func TestQuerySite_EmbeddedErrorInOKResponse(t *testing.T) {
	sink := &captureSink{}
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("inSR") == "2278" {
			// Some services report structural errors inside a 200 body.
			fmt.Fprint(w, `{"error":{"code":400,"message":"Unable to complete operation"}}`)
			return
		}
		calls++
		fmt.Fprint(w, pointFeatureBody)
	}))
	defer srv.Close()

	client := newTestClient(3, sink)
	features, flags, err := client.QuerySite(context.Background(), testService(srv.URL), testSite, testRegion)

	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Contains(t, flags, domain.FlagFoundViaFallbackCRS)
	assert.Equal(t, 1, calls)
}

func TestQuerySite_TransientErrorsRetryThenSucceed(t *testing.T) {
	sink := &captureSink{}
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, pointFeatureBody)
	}))
	defer srv.Close()

	client := newTestClient(3, sink)
	features, _, err := client.QuerySite(context.Background(), testService(srv.URL), testSite, testRegion)

	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, 3, calls)
	// Every attempt reaches the sink, including the failed ones.
	assert.Equal(t, 3, sink.count())
	assert.Equal(t, 1, sink.successes())
}

func TestQuerySite_UnreachableShortCircuits(t *testing.T) {
	sink := &captureSink{}
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused from here on

	client := newTestClient(3, sink)
	_, _, err := client.QuerySite(context.Background(), testService(srv.URL), testSite, testRegion)

	require.Error(t, err)
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, domain.FailureUnreachable, qe.Class)
	// No retries and no fallback: nothing a different coordinate system
	// can fix.
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 0, sink.successes())
}

func TestQuerySite_AllStrategiesExhausted(t *testing.T) {
	sink := &captureSink{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"bad request"}}`)
	}))
	defer srv.Close()

	client := newTestClient(2, sink)
	_, _, err := client.QuerySite(context.Background(), testService(srv.URL), testSite, testRegion)

	require.Error(t, err)
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, domain.FailureRequestRejected, qe.Class)

	// One structural attempt on primary, then the fallback burns its full
	// retry budget.
	assert.Equal(t, 3, sink.count())
}

func TestQuerySite_DropsUnsupportedGeometry(t *testing.T) {
	sink := &captureSink{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"features":[
			{"attributes":{"DIAMETER":8},"geometry":{"x":-95.3700,"y":29.7610}},
			{"attributes":{"DIAMETER":12}}
		]}`)
	}))
	defer srv.Close()

	client := newTestClient(1, sink)
	features, flags, err := client.QuerySite(context.Background(), testService(srv.URL), testSite, testRegion)

	require.NoError(t, err)
	assert.Len(t, features, 1)
	assert.Contains(t, flags, "unsupported_geometry_skipped")
}

func TestQuerySite_SuspectCoordinatesFlagged(t *testing.T) {
	sink := &captureSink{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Dallas, outside the Houston envelope.
		fmt.Fprint(w, `{"features":[{"attributes":{},"geometry":{"x":-96.7970,"y":32.7767}}]}`)
	}))
	defer srv.Close()

	client := newTestClient(1, sink)
	features, flags, err := client.QuerySite(context.Background(), testService(srv.URL), testSite, testRegion)

	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Contains(t, flags, domain.FlagSuspectCoordinates)
	assert.Contains(t, features[0].Flags, domain.FlagSuspectCoordinates)
}

func TestQuerySite_PolylineDistance(t *testing.T) {
	sink := &captureSink{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"features":[{"attributes":{},"geometry":{"paths":[[[-95.3700,29.7610],[-95.3710,29.7620]]]}}]}`)
	}))
	defer srv.Close()

	client := newTestClient(1, sink)
	features, _, err := client.QuerySite(context.Background(), testService(srv.URL), testSite, testRegion)

	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, domain.GeometryPolyline, features[0].Geometry.Kind)
	require.NotNil(t, features[0].DistanceFeet)
	assert.Greater(t, *features[0].DistanceFeet, 0.0)
}

func TestFetchPage(t *testing.T) {
	sink := &captureSink{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "150", q.Get("resultOffset"))
		assert.Equal(t, "50", q.Get("resultRecordCount"))
		assert.Equal(t, "OBJECTID", q.Get("orderByFields"))
		assert.Equal(t, "1=1", q.Get("where"))
		fmt.Fprint(w, pointFeatureBody)
	}))
	defer srv.Close()

	client := newTestClient(1, sink)
	layer := domain.LayerConfig{
		Key:        "harris_parcels",
		Endpoint:   srv.URL,
		Table:      "parcels",
		OrderField: "OBJECTID",
	}

	features, err := client.FetchPage(context.Background(), layer, 150, 50)

	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, float64(8), features[0].Attributes["DIAMETER"])
	assert.Equal(t, 1, sink.count())
}

func TestFetchPage_ErrorCarriesClass(t *testing.T) {
	sink := &captureSink{}
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	client := newTestClient(1, sink)
	_, err := client.FetchPage(context.Background(), domain.LayerConfig{Key: "k", Endpoint: srv.URL, Table: "parcels"}, 0, 10)

	require.Error(t, err)
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, domain.FailureUnreachable, qe.Class)
	assert.Equal(t, 1, sink.count())
}
