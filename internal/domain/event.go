package domain

import (
	"context"
	"time"
)

// Coordinate is a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// IsZero reports whether the coordinate is the unset (0, 0) value.
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

// Venue is a place of worship returned by the catalog.
type Venue struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Category   string     `json:"category"` // denomination label, e.g. "Catholic"
	Address    string     `json:"address"`
	Coordinate Coordinate `json:"coordinate"`
	Schedule   string     `json:"schedule"` // free text, e.g. "Sunday 10:30 AM"
	Phone      string     `json:"phone,omitempty"`
	Website    string     `json:"website,omitempty"`

	// DistanceFromUser is derived per request and never persisted.
	// Nil when the user's location is unknown.
	DistanceFromUser *float64 `json:"distance_from_user,omitempty"`
}

// UserPreferences is the per-user state the engine reads. It is owned by the
// caller and persisted by the preference store after every mutation.
type UserPreferences struct {
	PreferredCategories   []string      `json:"preferred_categories,omitempty"`
	PreferredServiceDay   *time.Weekday `json:"preferred_service_day,omitempty"`
	MaxDistanceMiles      float64       `json:"max_distance_miles"`
	VisitedVenues         []string      `json:"visited_venues,omitempty"`
	SavedVenues           []string      `json:"saved_venues,omitempty"`
	PrepTimeMinutes       int           `json:"prep_time_minutes"`
	LastNotificationCheck *time.Time    `json:"last_notification_check,omitempty"`
}

// VisitRecord is one entry of the append-only visit log.
type VisitRecord struct {
	ID        string     `json:"id"`
	VenueID   string     `json:"venue_id"`
	VisitedAt time.Time  `json:"visited_at"`
	ArrivedAt *time.Time `json:"arrived_at,omitempty"`
	OnTime    *bool      `json:"on_time,omitempty"`
}

// RankedVenue pairs a venue with its relevance score in [0, 10].
type RankedVenue struct {
	Venue Venue   `json:"venue"`
	Score float64 `json:"score"`
}

// SuggestionReason explains why a venue was suggested.
type SuggestionReason string

const (
	ReasonPreferredCategory SuggestionReason = "Matches your preferred denomination"
	ReasonVeryClose         SuggestionReason = "Less than a mile from you"
	ReasonWithinDistance    SuggestionReason = "Within your preferred distance"
	ReasonExplore           SuggestionReason = "Something new to explore"
)

// Suggestion is a "you might also like" entry with a similarity in [0, 1].
type Suggestion struct {
	Venue  Venue            `json:"venue"`
	Score  float64          `json:"score"`
	Reason SuggestionReason `json:"reason"`
}

// InsightKind tags an insight for display grouping.
type InsightKind string

const (
	InsightMilestone     InsightKind = "milestone"
	InsightEncouragement InsightKind = "encouragement"
)

// Accent is the recommended display color of an insight.
type Accent string

const (
	AccentGreen  Accent = "green"
	AccentBlue   Accent = "blue"
	AccentPurple Accent = "purple"
	AccentOrange Accent = "orange"
	AccentGold   Accent = "gold"
)

// Insight is a milestone or encouragement message derived from visit history.
type Insight struct {
	Kind        InsightKind `json:"kind"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Accent      Accent      `json:"accent"`
}

// ReminderRequest asks the pipeline to schedule a service reminder.
type ReminderRequest struct {
	UserID       string      `json:"user_id" validate:"required"`
	VenueID      string      `json:"venue_id" validate:"required"`
	UserLocation *Coordinate `json:"user_location,omitempty"`
}

// Notification is handed to the notification dispatcher for local delivery.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	VenueID   string    `json:"venue_id"`
	FireAt    time.Time `json:"fire_at"`
	ServiceAt time.Time `json:"service_at"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}
