package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/couchcryptid/church-discovery-engine/internal/discovery"
	"github.com/couchcryptid/church-discovery-engine/internal/domain"
)

const (
	defaultLimit    = 20
	maxLimit        = 100
	maxRequestBytes = 1 << 20
)

// Discovery is the set of operations the API serves.
type Discovery interface {
	Rank(ctx context.Context, userID string, location *domain.Coordinate, limit int) ([]domain.RankedVenue, error)
	Suggest(ctx context.Context, userID string, location *domain.Coordinate, limit int) ([]domain.Suggestion, error)
	Insights(ctx context.Context, userID string) ([]domain.Insight, error)
	Reminder(ctx context.Context, userID, venueID string, location *domain.Coordinate) (domain.ReminderPlan, error)
	NextService(ctx context.Context, venueID string) (discovery.NextService, error)
	RecordVisit(ctx context.Context, userID, venueID string) (domain.VisitRecord, error)
	CheckIn(ctx context.Context, userID, venueID string) (domain.VisitRecord, error)
	UpdatePreferences(ctx context.Context, userID string, upd discovery.PreferencesUpdate) (domain.UserPreferences, error)
	SaveVenue(ctx context.Context, userID, venueID string) (domain.UserPreferences, error)
}

type venueRequest struct {
	VenueID string `json:"venue_id" validate:"required,max=128"`
}

type preferencesRequest struct {
	PreferredCategories *[]string `json:"preferred_categories" validate:"omitempty,max=20,dive,required,max=64"`
	PreferredServiceDay *string   `json:"preferred_service_day" validate:"omitempty,oneof=none sunday monday tuesday wednesday thursday friday saturday"`
	MaxDistanceMiles    *float64  `json:"max_distance_miles" validate:"omitempty,gt=0,lte=500"`
	PrepTimeMinutes     *int      `json:"prep_time_minutes" validate:"omitempty,gt=0,lte=240"`
}

type reminderResponse struct {
	VenueID           string     `json:"venue_id"`
	FireAt            *time.Time `json:"fire_at"`
	ServiceAt         *time.Time `json:"service_at,omitempty"`
	PrepTimeMinutes   float64    `json:"prep_time_minutes,omitempty"`
	TravelTimeMinutes float64    `json:"travel_time_minutes,omitempty"`
	BufferMinutes     float64    `json:"buffer_minutes,omitempty"`
	Clamp             string     `json:"clamp,omitempty"`
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	loc, limit, ok := s.locationAndLimit(w, r)
	if !ok {
		return
	}
	ranked, err := s.api.Rank(r.Context(), chi.URLParam(r, "userID"), loc, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"venues": ranked})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	loc, limit, ok := s.locationAndLimit(w, r)
	if !ok {
		return
	}
	suggestions, err := s.api.Suggest(r.Context(), chi.URLParam(r, "userID"), loc, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := s.api.Insights(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

func (s *Server) handleReminder(w http.ResponseWriter, r *http.Request) {
	loc, err := s.parseLocation(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	venueID := chi.URLParam(r, "venueID")

	plan, err := s.api.Reminder(r.Context(), chi.URLParam(r, "userID"), venueID, loc)
	if errors.Is(err, discovery.ErrNoReminder) {
		writeJSON(w, http.StatusOK, reminderResponse{VenueID: venueID})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reminderResponse{
		VenueID:           venueID,
		FireAt:            &plan.FireAt,
		ServiceAt:         &plan.ServiceAt,
		PrepTimeMinutes:   plan.PrepTime.Minutes(),
		TravelTimeMinutes: plan.TravelTime.Minutes(),
		BufferMinutes:     plan.Buffer.Minutes(),
		Clamp:             string(plan.Clamp),
	})
}

func (s *Server) handleNextService(w http.ResponseWriter, r *http.Request) {
	next, err := s.api.NextService(r.Context(), chi.URLParam(r, "venueID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleRecordVisit(w http.ResponseWriter, r *http.Request) {
	var req venueRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.api.RecordVisit(r.Context(), chi.URLParam(r, "userID"), req.VenueID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req venueRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.api.CheckIn(r.Context(), chi.URLParam(r, "userID"), req.VenueID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleSaveVenue(w http.ResponseWriter, r *http.Request) {
	var req venueRequest
	if !s.decode(w, r, &req) {
		return
	}
	prefs, err := s.api.SaveVenue(r.Context(), chi.URLParam(r, "userID"), req.VenueID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if !s.decode(w, r, &req) {
		return
	}

	upd := discovery.PreferencesUpdate{
		PreferredCategories: req.PreferredCategories,
		MaxDistanceMiles:    req.MaxDistanceMiles,
		PrepTimeMinutes:     req.PrepTimeMinutes,
	}
	if req.PreferredServiceDay != nil {
		if *req.PreferredServiceDay == "none" {
			upd.ClearServiceDay = true
		} else {
			day := weekdays[*req.PreferredServiceDay]
			upd.PreferredServiceDay = &day
		}
	}

	prefs, err := s.api.UpdatePreferences(r.Context(), chi.URLParam(r, "userID"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body: "+err.Error()))
		return false
	}
	if p, ok := dst.(*preferencesRequest); ok && p.PreferredServiceDay != nil {
		day := strings.ToLower(strings.TrimSpace(*p.PreferredServiceDay))
		p.PreferredServiceDay = &day
	}
	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("validation failed: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) locationAndLimit(w http.ResponseWriter, r *http.Request) (*domain.Coordinate, int, bool) {
	loc, err := s.parseLocation(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return nil, 0, false
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return nil, 0, false
	}
	return loc, limit, true
}

// parseLocation reads the optional lat/lon query pair. Both or neither must
// be present.
func (s *Server) parseLocation(r *http.Request) (*domain.Coordinate, error) {
	q := r.URL.Query()
	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr == "" && lonStr == "" {
		return nil, nil
	}
	if latStr == "" || lonStr == "" {
		return nil, errors.New("lat and lon must be given together")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lat: %q", latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lon: %q", lonStr)
	}
	loc := domain.Coordinate{Lat: lat, Lon: lon}
	if err := s.validate.Struct(loc); err != nil {
		return nil, errors.New("coordinate out of range")
	}
	return &loc, nil
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit: %q", s)
	}
	return min(n, maxLimit), nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, discovery.ErrVenueNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		return
	}
	s.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
