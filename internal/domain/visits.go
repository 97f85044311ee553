package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// RecordVisit returns copies of prefs and history with a visit to venueID
// appended. The inputs are left untouched. Recording the same venue at the
// same instant again leaves the history unchanged.
func RecordVisit(prefs UserPreferences, history []VisitRecord, venueID string, at time.Time) (UserPreferences, []VisitRecord) {
	return appendVisit(prefs, history, VisitRecord{
		ID:        visitID(venueID, at),
		VenueID:   venueID,
		VisitedAt: at,
	})
}

// CheckIn records an arrival at a venue. The visit is marked on time when the
// user arrived no later than the predicted service start; when no start can be
// predicted the on-time flag is left unset.
func CheckIn(prefs UserPreferences, history []VisitRecord, venue Venue, arrivedAt time.Time) (UserPreferences, []VisitRecord) {
	rec := VisitRecord{
		ID:        visitID(venue.ID, arrivedAt),
		VenueID:   venue.ID,
		VisitedAt: arrivedAt,
		ArrivedAt: &arrivedAt,
	}

	// Predict from the start of the arrival day so a service already under
	// way today is still the one being attended.
	dayStart := time.Date(arrivedAt.Year(), arrivedAt.Month(), arrivedAt.Day(), 0, 0, 0, 0, arrivedAt.Location())
	if start, err := serviceOnDay(venue, dayStart); err == nil {
		onTime := !arrivedAt.After(start)
		rec.OnTime = &onTime
	}

	return appendVisit(prefs, history, rec)
}

// serviceOnDay returns the predicted service start when it falls on the same
// calendar day as day.
func serviceOnDay(venue Venue, day time.Time) (time.Time, error) {
	start, err := PredictNextService(venue, day)
	if err != nil {
		return time.Time{}, err
	}
	if start.YearDay() != day.YearDay() || start.Year() != day.Year() {
		// Sundays resolve a week ahead; pull the time back onto this day.
		if day.Weekday() == time.Sunday {
			return atClock(day, start.Hour(), start.Minute()), nil
		}
		return time.Time{}, ErrNotDeterminable
	}
	return start, nil
}

func appendVisit(prefs UserPreferences, history []VisitRecord, rec VisitRecord) (UserPreferences, []VisitRecord) {
	out := prefs.Clone()
	if !slices.Contains(out.VisitedVenues, rec.VenueID) {
		out.VisitedVenues = append(out.VisitedVenues, rec.VenueID)
	}

	log := make([]VisitRecord, len(history), len(history)+1)
	copy(log, history)
	if slices.ContainsFunc(history, func(r VisitRecord) bool { return r.ID == rec.ID }) {
		return out, log
	}
	return out, append(log, rec)
}

// visitID is deterministic so replaying the same visit yields the same ID.
func visitID(venueID string, at time.Time) string {
	name := fmt.Sprintf("%s|%s", venueID, at.UTC().Format(time.RFC3339Nano))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// NotificationID derives a stable ID for a user's reminder of one service, so
// re-dispatching the same reminder can be deduplicated downstream.
func NotificationID(userID, venueID string, serviceAt time.Time) string {
	name := fmt.Sprintf("%s|%s|%s", userID, venueID, serviceAt.UTC().Format(time.RFC3339))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
