package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/foodtruck-cli/internal/resilience"
)

const censusMatch = `{
	"result": {
		"addressMatches": [{
			"coordinates": {"x": -79.9311, "y": 32.7765},
			"matchedAddress": "40 CALHOUN ST, CHARLESTON, SC, 29401"
		}]
	}
}`

func newServers(t *testing.T, census, google http.HandlerFunc) (string, string) {
	t.Helper()
	censusSrv := httptest.NewServer(census)
	t.Cleanup(censusSrv.Close)
	googleSrv := httptest.NewServer(google)
	t.Cleanup(googleSrv.Close)
	return censusSrv.URL, googleSrv.URL
}

func TestGeocode_CensusSucceeds_NoGoogleCall(t *testing.T) {
	var googleCalled atomic.Int32
	var gotAddress string
	censusURL, googleURL := newServers(t,
		func(w http.ResponseWriter, r *http.Request) {
			gotAddress = r.URL.Query().Get("address")
			assert.Equal(t, censusBenchmark, r.URL.Query().Get("benchmark"))
			_, _ = io.WriteString(w, censusMatch)
		},
		func(w http.ResponseWriter, _ *http.Request) {
			googleCalled.Add(1)
			_, _ = io.WriteString(w, `{"status":"ZERO_RESULTS","results":[]}`)
		},
	)

	g := NewClient(WithGoogleAPIKey("test-key"), WithBaseURLs(censusURL, googleURL), WithRateLimit(100))
	result, err := g.Geocode(context.Background(), "  40 Calhoun St, Charleston, SC ")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "census", result.Source)
	assert.Equal(t, QualityRange, result.Quality)
	assert.Equal(t, "40 CALHOUN ST, CHARLESTON, SC, 29401", result.MatchedAddress)
	assert.InDelta(t, 32.7765, result.Latitude, 1e-6)
	assert.InDelta(t, -79.9311, result.Longitude, 1e-6)
	assert.Equal(t, "40 Calhoun St, Charleston, SC", gotAddress)
	assert.Equal(t, int32(0), googleCalled.Load())
}

func TestGeocode_GoogleFallback(t *testing.T) {
	censusURL, googleURL := newServers(t,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
		},
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))
			assert.Equal(t, "country:US", r.URL.Query().Get("components"))
			_, _ = io.WriteString(w, `{
				"status": "OK",
				"results": [{
					"formatted_address": "Main St, Columbia, SC, USA",
					"geometry": {"location": {"lat": 34.0007, "lng": -81.0348}, "location_type": "GEOMETRIC_CENTER"}
				}]
			}`)
		},
	)

	g := NewClient(WithGoogleAPIKey("test-key"), WithBaseURLs(censusURL, googleURL))
	result, err := g.Geocode(context.Background(), "Main St, Columbia, SC")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "google", result.Source)
	assert.Equal(t, QualityCentroid, result.Quality)
	assert.Equal(t, "Main St, Columbia, SC, USA", result.MatchedAddress)
}

func TestGeocode_IntersectionSkipsCensus(t *testing.T) {
	var gotAddress string
	censusURL, googleURL := newServers(t,
		func(w http.ResponseWriter, _ *http.Request) {
			t.Error("census cannot match intersections")
		},
		func(w http.ResponseWriter, r *http.Request) {
			gotAddress = r.URL.Query().Get("address")
			_, _ = io.WriteString(w, `{
				"status": "OK",
				"results": [{
					"types": ["intersection"],
					"geometry": {"location": {"lat": 32.7766, "lng": -79.9309}, "location_type": "GEOMETRIC_CENTER"}
				}]
			}`)
		},
	)

	g := NewClient(WithGoogleAPIKey("test-key"), WithBaseURLs(censusURL, googleURL))
	result, err := g.Geocode(context.Background(), "Parked at the corner of King St and Broad St, Charleston, SC")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, QualityIntersection, result.Quality)
	assert.Equal(t, "King St & Broad St, Charleston, SC", gotAddress)
}

func TestGeocode_IntersectionWithoutGoogle(t *testing.T) {
	censusURL, googleURL := newServers(t,
		func(w http.ResponseWriter, _ *http.Request) {
			t.Error("census cannot match intersections")
		},
		func(w http.ResponseWriter, _ *http.Request) {},
	)

	g := NewClient(WithBaseURLs(censusURL, googleURL))
	result, err := g.Geocode(context.Background(), "King St & Broad St, Charleston, SC")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocode_CensusErrorGoogleUnmatched(t *testing.T) {
	censusURL, googleURL := newServers(t,
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"status":"ZERO_RESULTS","results":[]}`)
		},
	)

	g := NewClient(WithGoogleAPIKey("test-key"), WithBaseURLs(censusURL, googleURL))
	result, err := g.Geocode(context.Background(), "40 Calhoun St, Charleston, SC")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocode_NoMatchIsNotAnError(t *testing.T) {
	censusURL, googleURL := newServers(t,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
		},
		func(w http.ResponseWriter, _ *http.Request) {
			t.Error("google should not be called without a key")
		},
	)

	g := NewClient(WithBaseURLs(censusURL, googleURL))
	result, err := g.Geocode(context.Background(), "nowhere in particular")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocode_CensusErrorWithoutFallback(t *testing.T) {
	censusURL, googleURL := newServers(t,
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		func(w http.ResponseWriter, _ *http.Request) {},
	)

	g := NewClient(WithBaseURLs(censusURL, googleURL))
	_, err := g.Geocode(context.Background(), "40 Calhoun St, Charleston, SC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocode: census: status 502")
	assert.True(t, resilience.IsTransient(err))
}

func TestGeocode_CachesMatches(t *testing.T) {
	var calls atomic.Int32
	censusURL, googleURL := newServers(t,
		func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			_, _ = io.WriteString(w, censusMatch)
		},
		func(w http.ResponseWriter, _ *http.Request) {},
	)

	g := NewClient(WithBaseURLs(censusURL, googleURL))
	for _, addr := range []string{"40 Calhoun St, Charleston, SC", "40 CALHOUN ST,  Charleston, SC"} {
		result, err := g.Geocode(context.Background(), addr)
		require.NoError(t, err)
		assert.True(t, result.Matched)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeocode_EmptyAddress(t *testing.T) {
	g := NewClient(WithBaseURLs("http://127.0.0.1:1", "http://127.0.0.1:1"))
	result, err := g.Geocode(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGoogleQuality(t *testing.T) {
	assert.Equal(t, QualityRooftop, googleQuality("ROOFTOP"))
	assert.Equal(t, QualityRange, googleQuality("range_interpolated"))
	assert.Equal(t, QualityApproximate, googleQuality("other"))
}
