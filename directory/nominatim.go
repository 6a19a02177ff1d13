package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goliatone/go-errors"
)

// NominatimGeocoder resolves locations through the OpenStreetMap Nominatim
// API. Keep request volume low, the public instance enforces a one request
// per second policy.
type NominatimGeocoder struct {
	BaseURL   string
	UserAgent string
	client    *http.Client
}

// NewNominatimGeocoder creates a geocoder against the public Nominatim
// instance. userAgent identifies the application as the API policy requires.
func NewNominatimGeocoder(userAgent string) *NominatimGeocoder {
	return &NominatimGeocoder{
		BaseURL:   "https://nominatim.openstreetmap.org",
		UserAgent: userAgent,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode implements Geocoder.
func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (*Coordinates, error) {
	endpoint := g.BaseURL + "/search?" + url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to build geocode request")
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "geocode request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("geocode request rejected", errors.CategoryOperation).
			WithMetadata(map[string]any{"status": resp.StatusCode})
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to decode geocode response")
	}

	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "invalid latitude in geocode response")
	}

	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "invalid longitude in geocode response")
	}

	return &Coordinates{Latitude: lat, Longitude: lon}, nil
}
