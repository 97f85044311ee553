package discovery

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/church-discovery-engine/internal/catalog"
	"github.com/couchcryptid/church-discovery-engine/internal/domain"
	"github.com/couchcryptid/church-discovery-engine/internal/observability"
	"github.com/couchcryptid/church-discovery-engine/internal/store"
)

var (
	downtown = domain.Coordinate{Lat: 30.2672, Lon: -97.7431}
	// Monday.
	monday = time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
)

func fixtureCatalog() *catalog.Catalog {
	return catalog.New([]domain.Venue{
		{ID: "grace", Name: "Grace Chapel", Category: "Baptist", Schedule: "Sunday 10:30 AM", Coordinate: domain.Coordinate{Lat: 30.2700, Lon: -97.7400}},
		{ID: "st-mary", Name: "St. Mary Cathedral", Category: "Catholic", Schedule: "Sunday 9:00 AM", Coordinate: domain.Coordinate{Lat: 30.3050, Lon: -97.7290}},
		{ID: "round-rock", Name: "Round Rock Methodist", Category: "Methodist", Schedule: "Sunday 11:00 AM", Coordinate: domain.Coordinate{Lat: 30.5083, Lon: -97.6789}},
		{ID: "unlisted", Name: "House Church", Category: "Nondenominational", Coordinate: domain.Coordinate{Lat: 30.2680, Lon: -97.7420}},
	})
}

type harness struct {
	svc     *Service
	clock   *clockwork.FakeClock
	store   *store.Store
	metrics *observability.Metrics
}

func newHarness(t *testing.T, now time.Time, opts ...Option) harness {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := clockwork.NewFakeClockAt(now)
	metrics := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return harness{
		svc:     NewService(fixtureCatalog(), st, clock, metrics, logger, opts...),
		clock:   clock,
		store:   st,
		metrics: metrics,
	}
}

func rankedIDs(ranked []domain.RankedVenue) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Venue.ID
	}
	return out
}

func TestService_RankNewUser(t *testing.T) {
	h := newHarness(t, monday)

	ranked, err := h.svc.Rank(context.Background(), "u1", &downtown, 0)
	require.NoError(t, err)

	require.Len(t, ranked, 4)
	assert.Equal(t, "round-rock", ranked[3].Venue.ID, "farthest venue ranks last")
	for _, r := range ranked {
		require.NotNil(t, r.Venue.DistanceFromUser)
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, domain.MaxScore)
	}
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Rankings))
}

func TestService_RankWithoutLocation(t *testing.T) {
	h := newHarness(t, monday)

	ranked, err := h.svc.Rank(context.Background(), "u1", nil, 2)
	require.NoError(t, err)

	require.Len(t, ranked, 2)
	for _, r := range ranked {
		assert.Nil(t, r.Venue.DistanceFromUser)
	}
}

func TestService_RankSearchRadius(t *testing.T) {
	// The radius never shrinks below the user's 10 mile default budget.
	h := newHarness(t, monday, WithSearchRadius(5))

	ranked, err := h.svc.Rank(context.Background(), "u1", &downtown, 0)
	require.NoError(t, err)
	assert.NotContains(t, rankedIDs(ranked), "round-rock")
	assert.Contains(t, rankedIDs(ranked), "st-mary")

	wide := newHarness(t, monday, WithSearchRadius(25))
	ranked, err = wide.svc.Rank(context.Background(), "u1", &downtown, 0)
	require.NoError(t, err)
	assert.Contains(t, rankedIDs(ranked), "round-rock")
}

func TestService_PreferencesShapeRanking(t *testing.T) {
	h := newHarness(t, monday)
	ctx := context.Background()

	cats := []string{"catholic"}
	prefs, err := h.svc.UpdatePreferences(ctx, "u1", PreferencesUpdate{PreferredCategories: &cats})
	require.NoError(t, err)
	assert.Equal(t, []string{"catholic"}, prefs.PreferredCategories)

	ranked, err := h.svc.Rank(ctx, "u1", &downtown, 1)
	require.NoError(t, err)
	// Preferred category outweighs the 2.5 mile gap to the nearest venue.
	assert.Equal(t, []string{"st-mary"}, rankedIDs(ranked))
}

func TestService_UpdatePreferences(t *testing.T) {
	h := newHarness(t, monday)
	ctx := context.Background()

	day := time.Saturday
	dist := 4.0
	prep := 45
	prefs, err := h.svc.UpdatePreferences(ctx, "u1", PreferencesUpdate{
		PreferredServiceDay: &day,
		MaxDistanceMiles:    &dist,
		PrepTimeMinutes:     &prep,
	})
	require.NoError(t, err)
	require.NotNil(t, prefs.PreferredServiceDay)
	assert.Equal(t, time.Saturday, *prefs.PreferredServiceDay)
	assert.Equal(t, 4.0, prefs.MaxDistanceMiles)
	assert.Equal(t, 45, prefs.PrepTimeMinutes)

	zero := 0.0
	prefs, err = h.svc.UpdatePreferences(ctx, "u1", PreferencesUpdate{ClearServiceDay: true, MaxDistanceMiles: &zero})
	require.NoError(t, err)
	assert.Nil(t, prefs.PreferredServiceDay)
	assert.Equal(t, domain.DefaultMaxDistanceMiles, prefs.MaxDistanceMiles, "invalid distance normalizes to default")
	assert.Equal(t, 45, prefs.PrepTimeMinutes)
}

func TestService_SuggestSkipsVisited(t *testing.T) {
	h := newHarness(t, monday)
	ctx := context.Background()

	cats := []string{"Baptist", "Catholic"}
	_, err := h.svc.UpdatePreferences(ctx, "u1", PreferencesUpdate{PreferredCategories: &cats})
	require.NoError(t, err)

	before, err := h.svc.Suggest(ctx, "u1", &downtown, 10)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	_, err = h.svc.RecordVisit(ctx, "u1", "grace")
	require.NoError(t, err)

	after, err := h.svc.Suggest(ctx, "u1", &downtown, 10)
	require.NoError(t, err)
	for _, s := range after {
		assert.NotEqual(t, "grace", s.Venue.ID)
		assert.GreaterOrEqual(t, s.Score, domain.SuggestionThreshold)
	}
}

func TestService_RecordVisitUnknownVenue(t *testing.T) {
	h := newHarness(t, monday)

	_, err := h.svc.RecordVisit(context.Background(), "u1", "nope")
	require.ErrorIs(t, err, ErrVenueNotFound)

	_, err = h.store.Load(context.Background(), "u1")
	require.ErrorIs(t, err, store.ErrNotFound, "nothing persisted")
}

func TestService_CheckInOnTime(t *testing.T) {
	sunday := time.Date(2026, time.October, 25, 10, 20, 0, 0, time.UTC)
	h := newHarness(t, sunday)

	rec, err := h.svc.CheckIn(context.Background(), "u1", "grace")
	require.NoError(t, err)
	require.NotNil(t, rec.OnTime)
	assert.True(t, *rec.OnTime)

	h.clock.Advance(30 * time.Minute)
	rec, err = h.svc.CheckIn(context.Background(), "u1", "grace")
	require.NoError(t, err)
	require.NotNil(t, rec.OnTime)
	assert.False(t, *rec.OnTime)

	snap, err := h.store.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, snap.History, 2)
	assert.Equal(t, []string{"grace"}, snap.Preferences.VisitedVenues)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Visits.WithLabelValues("checkin")))
}

func TestService_Reminder(t *testing.T) {
	saturdayNoon := time.Date(2026, time.October, 24, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, saturdayNoon)

	plan, err := h.svc.Reminder(context.Background(), "u1", "grace", nil)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, time.October, 25, 10, 30, 0, 0, time.UTC), plan.ServiceAt)
	// 30 min prep + 30 min default travel + 15 min buffer.
	assert.Equal(t, time.Date(2026, time.October, 25, 9, 15, 0, 0, time.UTC), plan.FireAt)
	assert.Equal(t, domain.ClampNone, plan.Clamp)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Reminders.WithLabelValues("scheduled", "none")))
}

func TestService_ReminderClampedToHorizon(t *testing.T) {
	h := newHarness(t, monday)

	plan, err := h.svc.Reminder(context.Background(), "u1", "grace", &downtown)
	require.NoError(t, err)
	assert.Equal(t, monday.Add(domain.MaxReminderHorizon), plan.FireAt)
	assert.Equal(t, domain.ClampHorizon, plan.Clamp)
}

func TestService_ReminderNotDeterminable(t *testing.T) {
	h := newHarness(t, monday)

	_, err := h.svc.Reminder(context.Background(), "u1", "unlisted", nil)
	require.ErrorIs(t, err, ErrNoReminder)

	_, err = h.svc.Reminder(context.Background(), "u1", "missing", nil)
	require.ErrorIs(t, err, ErrVenueNotFound)
}

func TestService_NextService(t *testing.T) {
	h := newHarness(t, monday)
	ctx := context.Background()

	next, err := h.svc.NextService(ctx, "grace")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.October, 25, 10, 30, 0, 0, time.UTC), next.ServiceAt)
	assert.False(t, next.Estimated)

	next, err = h.svc.NextService(ctx, "unlisted")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.October, 25, 10, 0, 0, 0, time.UTC), next.ServiceAt)
	assert.True(t, next.Estimated)
}

func TestService_NextServiceOnHoliday(t *testing.T) {
	h := newHarness(t, time.Date(2026, time.December, 25, 7, 0, 0, 0, time.UTC))

	next, err := h.svc.NextService(context.Background(), "unlisted")
	require.NoError(t, err)
	assert.Equal(t, "christmas", next.Holiday)
	assert.Equal(t, time.Date(2026, time.December, 25, 10, 0, 0, 0, time.UTC), next.ServiceAt)
	assert.False(t, next.Estimated)
}

func TestService_SaveVenueAndInsights(t *testing.T) {
	h := newHarness(t, monday)
	ctx := context.Background()

	insights, err := h.svc.Insights(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, insights)

	for _, id := range []string{"grace", "st-mary", "round-rock", "grace"} {
		_, err := h.svc.SaveVenue(ctx, "u1", id)
		require.NoError(t, err)
	}
	_, err = h.svc.SaveVenue(ctx, "u1", "missing")
	require.ErrorIs(t, err, ErrVenueNotFound)

	insights, err = h.svc.Insights(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "Building Your List", insights[0].Title)
}

func TestService_Notify(t *testing.T) {
	saturdayNoon := time.Date(2026, time.October, 24, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, saturdayNoon)
	ctx := context.Background()

	note, err := h.svc.Notify(ctx, domain.ReminderRequest{UserID: "u1", VenueID: "grace"})
	require.NoError(t, err)

	assert.Equal(t, "u1", note.UserID)
	assert.Equal(t, "grace", note.VenueID)
	assert.Equal(t, "Grace Chapel", note.Title)
	assert.Equal(t, time.Date(2026, time.October, 25, 9, 15, 0, 0, time.UTC), note.FireAt)
	assert.Contains(t, note.Body, "75 minutes")
	assert.Equal(t, domain.NotificationID("u1", "grace", note.ServiceAt), note.ID)

	snap, err := h.store.Load(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, snap.Preferences.LastNotificationCheck)
	assert.True(t, saturdayNoon.Equal(*snap.Preferences.LastNotificationCheck))
}

func TestService_NotifyNotDeterminableDoesNotPersist(t *testing.T) {
	h := newHarness(t, monday)

	_, err := h.svc.Notify(context.Background(), domain.ReminderRequest{UserID: "u1", VenueID: "unlisted"})
	require.ErrorIs(t, err, ErrNoReminder)

	_, err = h.store.Load(context.Background(), "u1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_CheckReadiness(t *testing.T) {
	h := newHarness(t, monday)
	require.NoError(t, h.svc.CheckReadiness(context.Background()))
}
