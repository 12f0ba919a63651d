package geocode

import (
	"context"
	"net/url"
)

const (
	censusOneLineURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusBenchmark  = "Public_AR_Current"
)

type censusResponse struct {
	Result struct {
		AddressMatches []struct {
			Coordinates struct {
				X float64 `json:"x"` // longitude
				Y float64 `json:"y"` // latitude
			} `json:"coordinates"`
			MatchedAddress string `json:"matchedAddress"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// census geocodes street addresses. Its points are interpolated along
// TIGER address ranges, so every match is range quality.
type census struct {
	g *geocoder
}

func (c *census) Name() string { return "census" }

// Supports rejects intersections; the one-line API needs a house number
// or a named place.
func (c *census) Supports(q Query) bool { return !q.Intersection }

func (c *census) Lookup(ctx context.Context, q Query) (*Result, error) {
	params := url.Values{
		"address":   {q.Address},
		"benchmark": {censusBenchmark},
		"format":    {"json"},
	}
	var resp censusResponse
	if err := c.g.getJSON(ctx, "geocode: census", c.g.censusURL, params, &resp); err != nil {
		return nil, err
	}

	matches := resp.Result.AddressMatches
	if len(matches) == 0 {
		return &Result{Source: c.Name()}, nil
	}
	m := matches[0]
	return &Result{
		Latitude:       m.Coordinates.Y,
		Longitude:      m.Coordinates.X,
		Source:         c.Name(),
		Quality:        QualityRange,
		MatchedAddress: m.MatchedAddress,
		Matched:        true,
	}, nil
}
