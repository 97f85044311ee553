package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- mock geocoder ---

type mockGeocoder struct {
	forwardResult GeocodingResult
	forwardErr    error
	reverseResult GeocodingResult
	reverseErr    error
	forwardCalls  int
	reverseCalls  int
}

func (m *mockGeocoder) ForwardGeocode(_ context.Context, _ string) (GeocodingResult, error) {
	m.forwardCalls++
	return m.forwardResult, m.forwardErr
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (GeocodingResult, error) {
	m.reverseCalls++
	return m.reverseResult, m.reverseErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestGeocodeVenue_NilGeocoder(t *testing.T) {
	venue := Venue{ID: "v-1", Address: "100 Congress Ave, Austin, TX"}

	result := GeocodeVenue(context.Background(), venue, nil, discardLogger())

	assert.Equal(t, venue, result)
}

func TestGeocodeVenue_ForwardGeocode(t *testing.T) {
	geo := &mockGeocoder{
		forwardResult: GeocodingResult{Lat: 30.2672, Lon: -97.7431, FormattedAddress: "100 Congress Ave, Austin, Texas"},
	}
	venue := Venue{ID: "v-1", Address: "100 Congress Ave, Austin, TX"}

	result := GeocodeVenue(context.Background(), venue, geo, discardLogger())

	assert.Equal(t, Coordinate{Lat: 30.2672, Lon: -97.7431}, result.Coordinate)
	assert.Equal(t, "100 Congress Ave, Austin, TX", result.Address, "address is not rewritten")
	assert.Equal(t, 1, geo.forwardCalls)
	assert.Equal(t, 0, geo.reverseCalls)
}

func TestGeocodeVenue_ReverseGeocode(t *testing.T) {
	geo := &mockGeocoder{
		reverseResult: GeocodingResult{FormattedAddress: "Austin, Travis County, Texas"},
	}
	venue := Venue{ID: "v-2", Coordinate: Coordinate{Lat: 30.2672, Lon: -97.7431}}

	result := GeocodeVenue(context.Background(), venue, geo, discardLogger())

	assert.Equal(t, "Austin, Travis County, Texas", result.Address)
	assert.Equal(t, 0, geo.forwardCalls)
	assert.Equal(t, 1, geo.reverseCalls)
}

func TestGeocodeVenue_ForwardError_GracefulDegradation(t *testing.T) {
	geo := &mockGeocoder{forwardErr: errors.New("API timeout")}
	venue := Venue{ID: "v-3", Address: "somewhere"}

	result := GeocodeVenue(context.Background(), venue, geo, discardLogger())

	assert.True(t, result.Coordinate.IsZero())
}

func TestGeocodeVenue_ReverseError_GracefulDegradation(t *testing.T) {
	geo := &mockGeocoder{reverseErr: errors.New("rate limited")}
	venue := Venue{ID: "v-4", Coordinate: Coordinate{Lat: 30.2672, Lon: -97.7431}}

	result := GeocodeVenue(context.Background(), venue, geo, discardLogger())

	assert.Empty(t, result.Address)
	assert.Equal(t, 30.2672, result.Coordinate.Lat)
}

func TestGeocodeVenue_CompleteVenueSkipsLookups(t *testing.T) {
	geo := &mockGeocoder{}
	venue := Venue{ID: "v-5", Address: "Main St", Coordinate: Coordinate{Lat: 1, Lon: 2}}

	GeocodeVenue(context.Background(), venue, geo, discardLogger())

	assert.Equal(t, 0, geo.forwardCalls)
	assert.Equal(t, 0, geo.reverseCalls)
}

func TestGeocodeVenue_ForwardEmptyResult(t *testing.T) {
	geo := &mockGeocoder{}
	venue := Venue{ID: "v-6", Address: "nowhere"}

	result := GeocodeVenue(context.Background(), venue, geo, discardLogger())

	assert.True(t, result.Coordinate.IsZero())
	assert.Equal(t, 1, geo.forwardCalls)
}
