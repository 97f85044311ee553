package domain

import "context"

// GeocodingResult is one resolved place.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // provider relevance in [0, 1]
}

// Geocoder is the location provider used to complete catalog venues that
// arrive with only an address or only a coordinate.
type Geocoder interface {
	ForwardGeocode(ctx context.Context, address string) (GeocodingResult, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
