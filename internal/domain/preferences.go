package domain

import (
	"slices"
	"strings"
)

const (
	// DefaultMaxDistanceMiles is the distance budget for users who never set one.
	DefaultMaxDistanceMiles = 10.0
	// DefaultPrepTimeMinutes is the time a user needs before leaving home.
	DefaultPrepTimeMinutes = 30
)

// DefaultPreferences returns the preferences of a brand-new user.
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		MaxDistanceMiles: DefaultMaxDistanceMiles,
		PrepTimeMinutes:  DefaultPrepTimeMinutes,
	}
}

// Normalize fills unset numeric fields with their defaults. Values loaded from
// older stored snapshots may predate a field.
func (p UserPreferences) Normalize() UserPreferences {
	if p.MaxDistanceMiles <= 0 || !isFinite(p.MaxDistanceMiles) {
		p.MaxDistanceMiles = DefaultMaxDistanceMiles
	}
	if p.PrepTimeMinutes <= 0 {
		p.PrepTimeMinutes = DefaultPrepTimeMinutes
	}
	return p
}

// Clone returns a deep copy so callers can mutate without aliasing the input.
func (p UserPreferences) Clone() UserPreferences {
	out := p
	out.PreferredCategories = slices.Clone(p.PreferredCategories)
	out.VisitedVenues = slices.Clone(p.VisitedVenues)
	out.SavedVenues = slices.Clone(p.SavedVenues)
	if p.PreferredServiceDay != nil {
		d := *p.PreferredServiceDay
		out.PreferredServiceDay = &d
	}
	if p.LastNotificationCheck != nil {
		t := *p.LastNotificationCheck
		out.LastNotificationCheck = &t
	}
	return out
}

// PrefersCategory reports whether category is in the preferred set.
// Denomination labels are compared case-insensitively.
func (p UserPreferences) PrefersCategory(category string) bool {
	return containsFold(p.PreferredCategories, category)
}

// HasVisited reports whether venueID is in the visited set.
func (p UserPreferences) HasVisited(venueID string) bool {
	return slices.Contains(p.VisitedVenues, venueID)
}

// SaveVenue returns a copy with venueID added to the saved set.
func (p UserPreferences) SaveVenue(venueID string) UserPreferences {
	out := p.Clone()
	if !slices.Contains(out.SavedVenues, venueID) {
		out.SavedVenues = append(out.SavedVenues, venueID)
	}
	return out
}

func containsFold(values []string, target string) bool {
	target = strings.TrimSpace(target)
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}
