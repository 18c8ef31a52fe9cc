// Package geo wraps the Google Maps web services used for commute and
// neighbourhood questions.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/hously/config"
)

// ErrNoResults is returned when Google answers with ZERO_RESULTS. Callers
// distinguish "nothing there" from a failed request.
var ErrNoResults = fmt.Errorf("no results")

// Client calls the Maps web service endpoints directly over HTTP. Geocoding
// responses are cached for the process lifetime; place names do not move.
type Client struct {
	cfg    config.MapsConfig
	client *http.Client

	geocodeCache sync.Map // normalized place -> Location
}

// Location is a geocoded point.
type Location struct {
	Lat     float64
	Lng     float64
	Address string
}

// Route is one commute estimate between two places.
type Route struct {
	Origin      string
	Destination string
	Mode        string
	Distance    string
	Duration    string
	Steps       []string
}

// Place is one nearby amenity.
type Place struct {
	Name     string
	Address  string
	Rating   float64
	Types    []string
	OpenNow  *bool
	Location Location
}

func NewClient(cfg config.MapsConfig) *Client {
	cfg = cfg.Normalize()
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Geocode resolves a place name to coordinates.
func (c *Client) Geocode(ctx context.Context, place string) (Location, error) {
	place = NormalizePlace(place)
	if cached, ok := c.geocodeCache.Load(place); ok {
		return cached.(Location), nil
	}

	params := url.Values{}
	params.Set("address", place)
	params.Set("region", c.cfg.Region)

	var resp struct {
		Status  string `json:"status"`
		Results []struct {
			FormattedAddress string `json:"formatted_address"`
			Geometry         struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/geocode/json", params, &resp); err != nil {
		return Location{}, err
	}
	if err := statusErr(resp.Status); err != nil {
		return Location{}, err
	}
	if len(resp.Results) == 0 {
		return Location{}, ErrNoResults
	}
	loc := Location{
		Lat:     resp.Results[0].Geometry.Location.Lat,
		Lng:     resp.Results[0].Geometry.Location.Lng,
		Address: resp.Results[0].FormattedAddress,
	}
	c.geocodeCache.Store(place, loc)
	return loc, nil
}

// Commute returns travel distance and duration between two places for a
// travel mode (driving, transit, walking, bicycling).
func (c *Client) Commute(ctx context.Context, origin, destination, mode string) (Route, error) {
	origin, destination = NormalizePlace(origin), NormalizePlace(destination)
	mode = normalizeMode(mode)

	params := url.Values{}
	params.Set("origins", origin)
	params.Set("destinations", destination)
	params.Set("mode", mode)
	params.Set("region", c.cfg.Region)

	var resp struct {
		Status string `json:"status"`
		Rows   []struct {
			Elements []struct {
				Status   string `json:"status"`
				Distance struct {
					Text string `json:"text"`
				} `json:"distance"`
				Duration struct {
					Text string `json:"text"`
				} `json:"duration"`
			} `json:"elements"`
		} `json:"rows"`
	}
	if err := c.get(ctx, "/distancematrix/json", params, &resp); err != nil {
		return Route{}, err
	}
	if err := statusErr(resp.Status); err != nil {
		return Route{}, err
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return Route{}, ErrNoResults
	}
	el := resp.Rows[0].Elements[0]
	if err := statusErr(el.Status); err != nil {
		return Route{}, err
	}
	return Route{
		Origin:      origin,
		Destination: destination,
		Mode:        mode,
		Distance:    el.Distance.Text,
		Duration:    el.Duration.Text,
	}, nil
}

// Directions returns step-by-step instructions between two places.
func (c *Client) Directions(ctx context.Context, origin, destination, mode string) (Route, error) {
	origin, destination = NormalizePlace(origin), NormalizePlace(destination)
	mode = normalizeMode(mode)

	params := url.Values{}
	params.Set("origin", origin)
	params.Set("destination", destination)
	params.Set("mode", mode)
	params.Set("region", c.cfg.Region)

	var resp struct {
		Status string `json:"status"`
		Routes []struct {
			Legs []struct {
				Distance struct {
					Text string `json:"text"`
				} `json:"distance"`
				Duration struct {
					Text string `json:"text"`
				} `json:"duration"`
				Steps []struct {
					HTMLInstructions string `json:"html_instructions"`
				} `json:"steps"`
			} `json:"legs"`
		} `json:"routes"`
	}
	if err := c.get(ctx, "/directions/json", params, &resp); err != nil {
		return Route{}, err
	}
	if err := statusErr(resp.Status); err != nil {
		return Route{}, err
	}
	if len(resp.Routes) == 0 || len(resp.Routes[0].Legs) == 0 {
		return Route{}, ErrNoResults
	}
	leg := resp.Routes[0].Legs[0]
	route := Route{
		Origin:      origin,
		Destination: destination,
		Mode:        mode,
		Distance:    leg.Distance.Text,
		Duration:    leg.Duration.Text,
	}
	for _, s := range leg.Steps {
		route.Steps = append(route.Steps, stripTags(s.HTMLInstructions))
	}
	return route, nil
}

// Nearby finds amenities matching a keyword around a place, capped at the
// configured maximum.
func (c *Client) Nearby(ctx context.Context, place, keyword string) ([]Place, error) {
	loc, err := c.Geocode(ctx, place)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", loc.Lat, loc.Lng))
	params.Set("radius", fmt.Sprintf("%d", c.cfg.SearchRadius))
	params.Set("keyword", keyword)

	var resp struct {
		Status  string `json:"status"`
		Results []struct {
			Name     string   `json:"name"`
			Vicinity string   `json:"vicinity"`
			Rating   float64  `json:"rating"`
			Types    []string `json:"types"`
			Geometry struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
			OpeningHours *struct {
				OpenNow bool `json:"open_now"`
			} `json:"opening_hours"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/place/nearbysearch/json", params, &resp); err != nil {
		return nil, err
	}
	if err := statusErr(resp.Status); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrNoResults
	}

	max := c.cfg.MaxResults
	if len(resp.Results) < max {
		max = len(resp.Results)
	}
	out := make([]Place, 0, max)
	for _, r := range resp.Results[:max] {
		p := Place{
			Name:    r.Name,
			Address: r.Vicinity,
			Rating:  r.Rating,
			Types:   r.Types,
			Location: Location{
				Lat: r.Geometry.Location.Lat,
				Lng: r.Geometry.Location.Lng,
			},
		}
		if r.OpeningHours != nil {
			open := r.OpeningHours.OpenNow
			p.OpenNow = &open
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	params.Set("key", c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("maps request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("maps api status %d: %s", resp.StatusCode, truncateBody(body))
	}
	return json.Unmarshal(body, out)
}

func statusErr(status string) error {
	switch status {
	case "OK", "":
		return nil
	case "ZERO_RESULTS", "NOT_FOUND":
		return ErrNoResults
	default:
		return fmt.Errorf("maps api: %s", status)
	}
}

func normalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "transit", "walking", "bicycling":
		return strings.ToLower(strings.TrimSpace(mode))
	default:
		return "driving"
	}
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
