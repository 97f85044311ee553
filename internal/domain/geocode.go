package domain

import (
	"context"
	"log/slog"
	"strings"
)

// GeocodeVenue fills in whichever of a venue's coordinate or address is
// missing. A nil geocoder or a failed lookup returns the venue unchanged.
func GeocodeVenue(ctx context.Context, venue Venue, geocoder Geocoder, logger *slog.Logger) Venue {
	if geocoder == nil {
		return venue
	}

	hasCoords := !venue.Coordinate.IsZero()
	hasAddress := strings.TrimSpace(venue.Address) != ""

	// Forward geocode: address → coordinates (when coords are missing).
	if !hasCoords && hasAddress {
		result, err := geocoder.ForwardGeocode(ctx, venue.Address)
		if err != nil {
			logger.Warn("forward geocoding failed",
				"venue_id", venue.ID,
				"address", venue.Address,
				"error", err,
			)
			return venue
		}
		if result.Lat != 0 || result.Lon != 0 {
			venue.Coordinate = Coordinate{Lat: result.Lat, Lon: result.Lon}
		}
		return venue
	}

	// Reverse geocode: coordinates → address (when the address is missing).
	if hasCoords && !hasAddress {
		result, err := geocoder.ReverseGeocode(ctx, venue.Coordinate.Lat, venue.Coordinate.Lon)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"venue_id", venue.ID,
				"lat", venue.Coordinate.Lat,
				"lon", venue.Coordinate.Lon,
				"error", err,
			)
			return venue
		}
		if result.FormattedAddress != "" {
			venue.Address = result.FormattedAddress
		}
	}

	return venue
}
