package domain

import "time"

const (
	// DefaultTravelTime is assumed when the user's location is unknown.
	DefaultTravelTime = 30 * time.Minute
	// ReminderBuffer is added on top of prep and travel time.
	ReminderBuffer = 15 * time.Minute
	// MaxReminderHorizon caps how far ahead a reminder may fire.
	MaxReminderHorizon = 24 * time.Hour
	// ImminentLead is the lead used when the computed reminder is already past.
	ImminentLead = time.Hour

	milesPerMinute = 0.5
	trafficFactor  = 1.2
)

// ClampKind records which clamp rule, if any, adjusted a reminder.
type ClampKind string

const (
	ClampNone     ClampKind = "none"
	ClampImminent ClampKind = "imminent"
	ClampHorizon  ClampKind = "horizon"
	ClampNow      ClampKind = "now"
)

// ReminderPlan is the full derivation of a reminder instant.
type ReminderPlan struct {
	ServiceAt  time.Time     `json:"service_at"`
	FireAt     time.Time     `json:"fire_at"`
	PrepTime   time.Duration `json:"prep_time"`
	TravelTime time.Duration `json:"travel_time"`
	Buffer     time.Duration `json:"buffer"`
	Clamp      ClampKind     `json:"clamp"`
}

// Lead returns the unclamped time between the reminder and the service.
func (p ReminderPlan) Lead() time.Duration {
	return p.PrepTime + p.TravelTime + p.Buffer
}

// OptimalReminder returns the instant a service reminder should fire, or nil
// when the venue's next service is not determinable. The result always lies
// in [now, now+24h].
func OptimalReminder(venue Venue, prefs UserPreferences, history []VisitRecord, userLocation *Coordinate, now time.Time) *time.Time {
	plan, err := PlanReminder(venue, prefs, history, userLocation, now)
	if err != nil {
		return nil
	}
	return &plan.FireAt
}

// PlanReminder computes the reminder for a venue along with its lead-time
// components. The only error is ErrNotDeterminable.
func PlanReminder(venue Venue, prefs UserPreferences, history []VisitRecord, userLocation *Coordinate, now time.Time) (ReminderPlan, error) {
	serviceAt, err := PredictNextService(venue, now)
	if err != nil {
		return ReminderPlan{}, err
	}

	plan := ReminderPlan{
		ServiceAt:  serviceAt,
		PrepTime:   averagePrepTime(venue.ID, prefs, history),
		TravelTime: travelTime(venue, userLocation),
		Buffer:     ReminderBuffer,
		Clamp:      ClampNone,
	}

	fireAt := serviceAt.Add(-plan.Lead())
	if fireAt.Before(now) {
		fireAt = serviceAt.Add(-ImminentLead)
		plan.Clamp = ClampImminent
	}

	horizon := now.Add(MaxReminderHorizon)
	switch {
	case fireAt.After(horizon):
		fireAt = horizon
		plan.Clamp = ClampHorizon
	case fireAt.Before(now):
		// The service starts within the hour or has already started.
		fireAt = now
		plan.Clamp = ClampNow
	}

	plan.FireAt = fireAt
	return plan, nil
}

// averagePrepTime returns the user's configured prep time. Visits with a
// recorded arrival only carry the arrival instant, not when preparation began,
// so history cannot yet refine the estimate.
func averagePrepTime(_ string, prefs UserPreferences, _ []VisitRecord) time.Duration {
	return time.Duration(prefs.Normalize().PrepTimeMinutes) * time.Minute
}

// travelTime estimates the drive to a venue at 30 mph plus 20% for traffic.
func travelTime(venue Venue, userLocation *Coordinate) time.Duration {
	if userLocation == nil {
		return DefaultTravelTime
	}
	miles := DistanceMiles(*userLocation, venue.Coordinate)
	if !isFinite(miles) || miles < 0 {
		return DefaultTravelTime
	}
	minutes := miles / milesPerMinute * trafficFactor
	return time.Duration(minutes * float64(time.Minute))
}
