// Package geocode resolves the free-form locations food trucks post
// ("Parked at 40 Calhoun St", "corner of King & Broad") to coordinates.
// The Census one-line geocoder answers street addresses; Google, when
// keyed, answers what Census cannot, including intersections.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/foodtruck-cli/internal/resilience"
)

// Client geocodes truck locations.
type Client interface {
	// Geocode resolves one location. An unmatched location is not an error.
	Geocode(ctx context.Context, location string) (*Result, error)
}

// Result holds the geocoding output for a location.
type Result struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Source         string  `json:"source"`  // "census" or "google"
	Quality        string  `json:"quality"` // see the Quality constants
	MatchedAddress string  `json:"matched_address,omitempty"`
	Matched        bool    `json:"matched"`
}

// Match quality, best first.
const (
	QualityRooftop      = "rooftop"
	QualityRange        = "range"
	QualityIntersection = "intersection"
	QualityCentroid     = "centroid"
	QualityApproximate  = "approximate"
)

// provider is one geocoding backend in the fallback chain.
type provider interface {
	Name() string
	Supports(q Query) bool
	Lookup(ctx context.Context, q Query) (*Result, error)
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables the Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for every provider.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit shared by all providers.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		if rps > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithBaseURLs overrides the Census and Google endpoints.
func WithBaseURLs(census, google string) Option {
	return func(g *geocoder) {
		if census != "" {
			g.censusURL = census
		}
		if google != "" {
			g.googleURL = google
		}
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter
	censusURL  string
	googleURL  string
	providers  []provider
	cache      *lru.Cache
}

const cacheSize = 2048

// NewClient creates a geocoding Client. Matched results are cached per
// normalized location for the life of the client.
func NewClient(opts ...Option) Client {
	cache, _ := lru.New(cacheSize) // only errors on a non-positive size
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		censusURL:  censusOneLineURL,
		googleURL:  googleGeocodeURL,
		cache:      cache,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.providers = []provider{&census{g: g}}
	if g.googleKey != "" {
		g.providers = append(g.providers, &google{g: g, key: g.googleKey})
	}
	return g
}

// Geocode normalizes location and walks the provider chain. It returns an
// error only when every provider that could answer failed.
func (g *geocoder) Geocode(ctx context.Context, location string) (*Result, error) {
	q := ParseQuery(location)
	if q.Address == "" {
		return &Result{Matched: false}, nil
	}
	key := q.cacheKey()
	if v, ok := g.cache.Get(key); ok {
		r := v.(Result)
		return &r, nil
	}

	var (
		tried   int
		failed  int
		lastErr error
	)
	for _, p := range g.providers {
		if !p.Supports(q) {
			continue
		}
		tried++
		res, err := p.Lookup(ctx, q)
		if err != nil {
			failed++
			lastErr = err
			continue
		}
		if res.Matched {
			g.cache.Add(key, *res)
			return res, nil
		}
	}
	if tried > 0 && failed == tried {
		return nil, lastErr
	}
	return &Result{Matched: false}, nil
}

// getJSON waits for the shared limiter, GETs endpoint with params and
// decodes the JSON body into out.
func (g *geocoder) getJSON(ctx context.Context, service, endpoint string, params url.Values, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "%s: rate limit", service)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrapf(err, "%s: build request", service)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "%s: request", service)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "%s: read body", service)
	}
	if resp.StatusCode != http.StatusOK {
		return resilience.StatusError(service, resp.StatusCode, string(body))
	}
	return eris.Wrapf(json.Unmarshal(body, out), "%s: parse response", service)
}
