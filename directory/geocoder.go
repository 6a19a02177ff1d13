package directory

import "context"

// Coordinates is a geographic point.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Geocoder resolves free-form locations to coordinates. Lookups are best
// effort: a failed lookup never blocks creating a listing.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Coordinates, error)
}

// GeocoderFunc adapts a function to the Geocoder interface.
type GeocoderFunc func(ctx context.Context, query string) (*Coordinates, error)

// Geocode implements Geocoder.
func (f GeocoderFunc) Geocode(ctx context.Context, query string) (*Coordinates, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, query)
}

type noopGeocoder struct{}

func (noopGeocoder) Geocode(context.Context, string) (*Coordinates, error) {
	return nil, nil
}

func normalizeGeocoder(g Geocoder) Geocoder {
	if g == nil {
		return noopGeocoder{}
	}
	return g
}
