// Command preview ranks a venue catalog for one user offline and prints the
// scores, suggestions, reminders and insights the engine would serve. The
// clock is pinned with -at so output is reproducible.
//
// Usage:
//
//	go run ./cmd/preview \
//	  -catalog data/venues.json \
//	  -prefs prefs.json \
//	  -lat 30.2672 -lon -97.7431 \
//	  -at 2026-10-24T12:00:00Z
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/church-discovery-engine/internal/catalog"
	"github.com/couchcryptid/church-discovery-engine/internal/domain"
)

// profile is the optional -prefs file: a user's preferences and visit history.
type profile struct {
	Preferences domain.UserPreferences `json:"preferences"`
	History     []domain.VisitRecord   `json:"history"`
}

type options struct {
	catalogPath string
	prefsPath   string
	location    *domain.Coordinate
	limit       int
	clock       clockwork.Clock
}

func main() {
	catalogPath := flag.String("catalog", "data/venues.json", "path to the venue catalog JSON")
	prefsPath := flag.String("prefs", "", "optional JSON file with preferences and history")
	lat := flag.Float64("lat", 0, "user latitude")
	lon := flag.Float64("lon", 0, "user longitude")
	at := flag.String("at", "", "reference time (RFC3339); defaults to now")
	limit := flag.Int("limit", 10, "maximum venues to list")
	flag.Parse()

	opts := options{catalogPath: *catalogPath, prefsPath: *prefsPath, limit: *limit, clock: clockwork.NewRealClock()}
	if *lat != 0 || *lon != 0 {
		opts.location = &domain.Coordinate{Lat: *lat, Lon: *lon}
	}
	if *at != "" {
		ref, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -at: %v\n", err)
			os.Exit(2)
		}
		opts.clock = clockwork.NewFakeClockAt(ref)
	}

	if err := run(context.Background(), os.Stdout, opts); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, opts options) error {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	venues, err := catalog.Load(ctx, opts.catalogPath, nil, quiet)
	if err != nil {
		return err
	}

	p := profile{Preferences: domain.DefaultPreferences()}
	if opts.prefsPath != "" {
		if p, err = loadProfile(opts.prefsPath); err != nil {
			return err
		}
	}
	prefs := p.Preferences.Normalize()
	now := opts.clock.Now()

	candidates := domain.WithDistances(venues.All(), opts.location)

	fmt.Fprintf(w, "=== Church Discovery Preview (%s) ===\n", now.Format(time.RFC1123))
	if h := domain.HolidayName(now); h != "" {
		fmt.Fprintf(w, "Upcoming holiday: %s\n", h)
	}

	fmt.Fprintln(w, "\n--- Ranked venues ---")
	for i, rv := range domain.RankVenues(candidates, prefs, p.History, opts.limit) {
		b := domain.BreakdownVenue(rv.Venue, prefs, p.History)
		fmt.Fprintf(w, "  [%d] %-36s %5.2f  %s\n", i+1, rv.Venue.Name, rv.Score, distanceLabel(rv.Venue))
		fmt.Fprintf(w, "      proximity=%.2f category=%.2f familiarity=%.2f day=%.2f budget=%.2f\n",
			b.Proximity, b.Category, b.Familiarity, b.ScheduleDay, b.DistanceBudget)
	}

	fmt.Fprintln(w, "\n--- Suggestions ---")
	suggestions := domain.SuggestVenues(prefs, candidates, p.History, opts.limit)
	if len(suggestions) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, s := range suggestions {
		fmt.Fprintf(w, "  %-36s %5.2f  %s\n", s.Venue.Name, s.Score, s.Reason)
	}

	fmt.Fprintln(w, "\n--- Reminders ---")
	for _, v := range candidates {
		plan, err := domain.PlanReminder(v, prefs, p.History, opts.location, now)
		if err != nil {
			fmt.Fprintf(w, "  %-36s no reminder (%v)\n", v.Name, err)
			continue
		}
		fmt.Fprintf(w, "  %-36s service %s  remind %s  lead %s  clamp=%s\n",
			v.Name, plan.ServiceAt.Format("Mon Jan 2 15:04"), plan.FireAt.Format("Mon Jan 2 15:04"), plan.Lead(), plan.Clamp)
	}

	fmt.Fprintln(w, "\n--- Insights ---")
	for _, in := range domain.GenerateInsights(prefs, p.History, prefs.SavedVenues, now) {
		fmt.Fprintf(w, "  [%s] %s: %s\n", in.Kind, in.Title, in.Description)
	}
	return nil
}

func loadProfile(path string) (profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return profile{}, fmt.Errorf("read profile %s: %w", path, err)
	}
	p := profile{Preferences: domain.DefaultPreferences()}
	if err := json.Unmarshal(data, &p); err != nil {
		return profile{}, fmt.Errorf("decode profile %s: %w", path, err)
	}
	return p, nil
}

func distanceLabel(v domain.Venue) string {
	if v.DistanceFromUser == nil {
		return "distance unknown"
	}
	return fmt.Sprintf("%.1f mi", *v.DistanceFromUser)
}
