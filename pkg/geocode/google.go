package geocode

import (
	"context"
	"net/url"
	"slices"
	"strings"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Types    []string `json:"types"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

// google is the keyed fallback. Lookups are restricted to the US.
type google struct {
	g   *geocoder
	key string
}

func (p *google) Name() string { return "google" }

func (p *google) Supports(Query) bool { return true }

func (p *google) Lookup(ctx context.Context, q Query) (*Result, error) {
	params := url.Values{
		"address":    {q.Address},
		"components": {"country:US"},
		"key":        {p.key},
	}
	var resp googleResponse
	if err := p.g.getJSON(ctx, "geocode: google", p.g.googleURL, params, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "OK" || len(resp.Results) == 0 {
		return &Result{Source: p.Name()}, nil
	}
	r := resp.Results[0]
	quality := googleQuality(r.Geometry.LocationType)
	if slices.Contains(r.Types, "intersection") {
		quality = QualityIntersection
	}
	return &Result{
		Latitude:       r.Geometry.Location.Lat,
		Longitude:      r.Geometry.Location.Lng,
		Source:         p.Name(),
		Quality:        quality,
		MatchedAddress: r.FormattedAddress,
		Matched:        true,
	}, nil
}

// googleQuality maps Google's location_type onto the Quality constants.
func googleQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return QualityRooftop
	case "RANGE_INTERPOLATED":
		return QualityRange
	case "GEOMETRIC_CENTER":
		return QualityCentroid
	default:
		return QualityApproximate
	}
}
