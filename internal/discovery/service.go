// Package discovery runs the load, compute, write-back cycle that connects
// the venue catalog and preference store to the scoring, matching, reminder
// and insight functions in the domain package.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/church-discovery-engine/internal/domain"
	"github.com/couchcryptid/church-discovery-engine/internal/observability"
	"github.com/couchcryptid/church-discovery-engine/internal/store"
)

// DefaultSearchRadiusMiles bounds the catalog search around a known user
// location.
const DefaultSearchRadiusMiles = 50.0

var (
	// ErrVenueNotFound is returned when a venue id is not in the catalog.
	ErrVenueNotFound = errors.New("venue not found")
	// ErrNoReminder is returned when a venue's next service cannot be
	// determined, so no reminder is scheduled.
	ErrNoReminder = errors.New("no reminder: next service not determinable")
)

// VenueCatalog provides candidate venues.
type VenueCatalog interface {
	Get(id string) (domain.Venue, bool)
	Candidates(ctx context.Context, location *domain.Coordinate, radiusMiles float64) ([]domain.Venue, error)
}

// PreferenceStore loads and persists per-user state.
type PreferenceStore interface {
	Load(ctx context.Context, userID string) (store.Snapshot, error)
	Update(ctx context.Context, userID string, fn func(store.Snapshot) (store.Snapshot, error)) (store.Snapshot, error)
	Ping(ctx context.Context) error
}

// Service is the entry point for every discovery operation.
type Service struct {
	catalog      VenueCatalog
	store        PreferenceStore
	clock        clockwork.Clock
	metrics      *observability.Metrics
	logger       *slog.Logger
	searchRadius float64
}

// Option customizes a Service.
type Option func(*Service)

// WithSearchRadius overrides DefaultSearchRadiusMiles.
func WithSearchRadius(miles float64) Option {
	return func(s *Service) {
		if miles > 0 {
			s.searchRadius = miles
		}
	}
}

// NewService wires a Service. A nil clock uses the real clock.
func NewService(catalog VenueCatalog, prefs PreferenceStore, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Service{
		catalog:      catalog,
		store:        prefs,
		clock:        clock,
		metrics:      metrics,
		logger:       logger,
		searchRadius: DefaultSearchRadiusMiles,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckReadiness reports whether the preference store is reachable.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("preference store: %w", err)
	}
	return nil
}

// Rank scores the candidate venues for a user, highest first.
func (s *Service) Rank(ctx context.Context, userID string, location *domain.Coordinate, limit int) ([]domain.RankedVenue, error) {
	snap, venues, err := s.snapshotAndCandidates(ctx, userID, location)
	if err != nil {
		return nil, err
	}
	ranked := domain.RankVenues(venues, snap.Preferences, snap.History, limit)
	s.metrics.Rankings.Inc()
	s.logger.Debug("venues ranked", "user_id", userID, "candidates", len(venues), "returned", len(ranked))
	return ranked, nil
}

// Suggest returns "you might also like" venues the user has not visited.
func (s *Service) Suggest(ctx context.Context, userID string, location *domain.Coordinate, limit int) ([]domain.Suggestion, error) {
	snap, venues, err := s.snapshotAndCandidates(ctx, userID, location)
	if err != nil {
		return nil, err
	}
	suggestions := domain.SuggestVenues(snap.Preferences, venues, snap.History, limit)
	s.metrics.Suggestions.Inc()
	return suggestions, nil
}

// Insights returns the user's milestone and encouragement messages.
func (s *Service) Insights(ctx context.Context, userID string) ([]domain.Insight, error) {
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.GenerateInsights(snap.Preferences, snap.History, snap.Preferences.SavedVenues, s.clock.Now()), nil
}

// Reminder plans the reminder for one venue. It returns ErrNoReminder when
// the venue's next service is not determinable.
func (s *Service) Reminder(ctx context.Context, userID, venueID string, location *domain.Coordinate) (domain.ReminderPlan, error) {
	venue, err := s.venue(venueID)
	if err != nil {
		return domain.ReminderPlan{}, err
	}
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return domain.ReminderPlan{}, err
	}
	return s.plan(venue, snap, location)
}

// NextService is a venue's upcoming service as shown to users.
type NextService struct {
	VenueID   string    `json:"venue_id"`
	ServiceAt time.Time `json:"service_at"`
	Holiday   string    `json:"holiday,omitempty"`
	// Estimated is true when the venue's schedule gave no answer and the
	// default Sunday 10:00 was used.
	Estimated bool `json:"estimated"`
}

// NextService predicts a venue's next service, falling back to the default
// Sunday service when the schedule is unknown.
func (s *Service) NextService(_ context.Context, venueID string) (NextService, error) {
	venue, err := s.venue(venueID)
	if err != nil {
		return NextService{}, err
	}
	now := s.clock.Now()
	out := NextService{VenueID: venue.ID, Holiday: domain.HolidayName(now)}

	at, err := domain.PredictNextService(venue, now)
	if errors.Is(err, domain.ErrNotDeterminable) {
		at = domain.DefaultNextService(now)
		out.Estimated = true
	}
	out.ServiceAt = at
	return out, nil
}

// RecordVisit logs a visit to venueID at the current time.
func (s *Service) RecordVisit(ctx context.Context, userID, venueID string) (domain.VisitRecord, error) {
	if _, err := s.venue(venueID); err != nil {
		return domain.VisitRecord{}, err
	}
	now := s.clock.Now()
	snap, err := s.store.Update(ctx, userID, func(snap store.Snapshot) (store.Snapshot, error) {
		snap.Preferences, snap.History = domain.RecordVisit(snap.Preferences, snap.History, venueID, now)
		return snap, nil
	})
	if err != nil {
		return domain.VisitRecord{}, fmt.Errorf("record visit: %w", err)
	}
	s.metrics.Visits.WithLabelValues("visit").Inc()
	return visitAt(snap, venueID, now), nil
}

// CheckIn logs an arrival at venueID and whether it was on time.
func (s *Service) CheckIn(ctx context.Context, userID, venueID string) (domain.VisitRecord, error) {
	venue, err := s.venue(venueID)
	if err != nil {
		return domain.VisitRecord{}, err
	}
	now := s.clock.Now()
	snap, err := s.store.Update(ctx, userID, func(snap store.Snapshot) (store.Snapshot, error) {
		snap.Preferences, snap.History = domain.CheckIn(snap.Preferences, snap.History, venue, now)
		return snap, nil
	})
	if err != nil {
		return domain.VisitRecord{}, fmt.Errorf("check in: %w", err)
	}
	s.metrics.Visits.WithLabelValues("checkin").Inc()
	rec := visitAt(snap, venueID, now)
	s.logger.Info("checked in", "user_id", userID, "venue_id", venueID, "on_time", rec.OnTime)
	return rec, nil
}

// PreferencesUpdate carries the user-editable preference fields. Nil fields
// are left unchanged.
type PreferencesUpdate struct {
	PreferredCategories *[]string
	PreferredServiceDay *time.Weekday
	ClearServiceDay     bool
	MaxDistanceMiles    *float64
	PrepTimeMinutes     *int
}

// UpdatePreferences applies an edit and returns the stored preferences.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, upd PreferencesUpdate) (domain.UserPreferences, error) {
	snap, err := s.store.Update(ctx, userID, func(snap store.Snapshot) (store.Snapshot, error) {
		p := snap.Preferences
		if upd.PreferredCategories != nil {
			p.PreferredCategories = append([]string(nil), (*upd.PreferredCategories)...)
		}
		switch {
		case upd.ClearServiceDay:
			p.PreferredServiceDay = nil
		case upd.PreferredServiceDay != nil:
			day := *upd.PreferredServiceDay
			p.PreferredServiceDay = &day
		}
		if upd.MaxDistanceMiles != nil {
			p.MaxDistanceMiles = *upd.MaxDistanceMiles
		}
		if upd.PrepTimeMinutes != nil {
			p.PrepTimeMinutes = *upd.PrepTimeMinutes
		}
		snap.Preferences = p.Normalize()
		return snap, nil
	})
	if err != nil {
		return domain.UserPreferences{}, fmt.Errorf("update preferences: %w", err)
	}
	return snap.Preferences, nil
}

// SaveVenue adds venueID to the user's saved list.
func (s *Service) SaveVenue(ctx context.Context, userID, venueID string) (domain.UserPreferences, error) {
	if _, err := s.venue(venueID); err != nil {
		return domain.UserPreferences{}, err
	}
	snap, err := s.store.Update(ctx, userID, func(snap store.Snapshot) (store.Snapshot, error) {
		snap.Preferences = snap.Preferences.SaveVenue(venueID)
		return snap, nil
	})
	if err != nil {
		return domain.UserPreferences{}, fmt.Errorf("save venue: %w", err)
	}
	return snap.Preferences, nil
}

// Notify turns a reminder request into a notification for the dispatcher and
// stamps the user's last notification check.
func (s *Service) Notify(ctx context.Context, req domain.ReminderRequest) (domain.Notification, error) {
	venue, err := s.venue(req.VenueID)
	if err != nil {
		return domain.Notification{}, err
	}

	var plan domain.ReminderPlan
	now := s.clock.Now()
	_, err = s.store.Update(ctx, req.UserID, func(snap store.Snapshot) (store.Snapshot, error) {
		p, err := s.plan(venue, snap, req.UserLocation)
		if err != nil {
			return snap, err
		}
		plan = p
		snap.Preferences.LastNotificationCheck = &now
		return snap, nil
	})
	if err != nil {
		return domain.Notification{}, err
	}

	return domain.Notification{
		ID:        domain.NotificationID(req.UserID, venue.ID, plan.ServiceAt),
		UserID:    req.UserID,
		VenueID:   venue.ID,
		FireAt:    plan.FireAt,
		ServiceAt: plan.ServiceAt,
		Title:     venue.Name,
		Body:      notificationBody(plan),
	}, nil
}

func (s *Service) plan(venue domain.Venue, snap store.Snapshot, location *domain.Coordinate) (domain.ReminderPlan, error) {
	plan, err := domain.PlanReminder(venue, snap.Preferences, snap.History, location, s.clock.Now())
	if errors.Is(err, domain.ErrNotDeterminable) {
		s.metrics.Reminders.WithLabelValues("undetermined", "none").Inc()
		return domain.ReminderPlan{}, fmt.Errorf("venue %s: %w", venue.ID, ErrNoReminder)
	}
	if err != nil {
		return domain.ReminderPlan{}, err
	}
	s.metrics.Reminders.WithLabelValues("scheduled", string(plan.Clamp)).Inc()
	s.metrics.ReminderLead.Observe(plan.ServiceAt.Sub(plan.FireAt).Seconds())
	return plan, nil
}

func (s *Service) snapshot(ctx context.Context, userID string) (store.Snapshot, error) {
	snap, err := s.store.Load(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Snapshot{Preferences: domain.DefaultPreferences()}, nil
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	snap.Preferences = snap.Preferences.Normalize()
	return snap, nil
}

func (s *Service) snapshotAndCandidates(ctx context.Context, userID string, location *domain.Coordinate) (store.Snapshot, []domain.Venue, error) {
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return store.Snapshot{}, nil, err
	}
	radius := max(s.searchRadius, snap.Preferences.MaxDistanceMiles)
	venues, err := s.catalog.Candidates(ctx, location, radius)
	if err != nil {
		return store.Snapshot{}, nil, fmt.Errorf("fetch candidates: %w", err)
	}
	return snap, domain.WithDistances(venues, location), nil
}

func (s *Service) venue(id string) (domain.Venue, error) {
	v, ok := s.catalog.Get(id)
	if !ok {
		return domain.Venue{}, fmt.Errorf("%w: %s", ErrVenueNotFound, id)
	}
	return v, nil
}

// visitAt finds the record logged for venueID at the given instant. A replayed
// visit resolves to the record already in the log.
func visitAt(snap store.Snapshot, venueID string, at time.Time) domain.VisitRecord {
	for i := len(snap.History) - 1; i >= 0; i-- {
		if rec := snap.History[i]; rec.VenueID == venueID && rec.VisitedAt.Equal(at) {
			return rec
		}
	}
	return domain.VisitRecord{}
}

func notificationBody(plan domain.ReminderPlan) string {
	return fmt.Sprintf("Service starts %s. Allow about %d minutes to get ready and travel.",
		plan.ServiceAt.Format("Mon Jan 2 at 3:04 PM"),
		int(plan.Lead().Round(time.Minute)/time.Minute))
}
