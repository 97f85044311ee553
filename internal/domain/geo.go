package domain

import "math"

const earthRadiusMiles = 3958.8

// DistanceMiles returns the great-circle distance between two coordinates.
func DistanceMiles(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// WithDistances returns copies of venues with DistanceFromUser computed from
// the user's location. A nil location clears the distance on every copy.
func WithDistances(venues []Venue, user *Coordinate) []Venue {
	out := make([]Venue, len(venues))
	for i, v := range venues {
		v.DistanceFromUser = nil
		if user != nil {
			d := DistanceMiles(*user, v.Coordinate)
			v.DistanceFromUser = &d
		}
		out[i] = v
	}
	return out
}

// knownDistance returns the venue's distance when it is present and usable.
// Negative and non-finite values are treated as unknown.
func knownDistance(v Venue) (float64, bool) {
	if v.DistanceFromUser == nil {
		return 0, false
	}
	d := *v.DistanceFromUser
	if !isFinite(d) || d < 0 {
		return 0, false
	}
	return d, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp(v, lo, hi float64) float64 {
	if !isFinite(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
