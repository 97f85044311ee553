package domain

import (
	"regexp"
	"sort"
	"time"
)

// MaxScore is the upper bound of ScoreVenue.
const MaxScore = 10.0

// FactorWeights holds the weight of each scoring factor. The weights sum to 1.
type FactorWeights struct {
	Proximity      float64
	Category       float64
	Familiarity    float64
	ScheduleDay    float64
	DistanceBudget float64
}

// Sum returns the total of all weights.
func (w FactorWeights) Sum() float64 {
	return w.Proximity + w.Category + w.Familiarity + w.ScheduleDay + w.DistanceBudget
}

// Weights is the weight table used by ScoreVenue.
var Weights = FactorWeights{
	Proximity:      0.30,
	Category:       0.25,
	Familiarity:    0.20,
	ScheduleDay:    0.15,
	DistanceBudget: 0.10,
}

const (
	proximityRangeMiles = 25.0
	budgetDecayMiles    = 5.0
	maxFamiliarity      = 8.0
	pointsPerVisit      = 2.0
)

// ScoreBreakdown holds the unweighted 0–10 value of each factor.
type ScoreBreakdown struct {
	Proximity      float64 `json:"proximity"`
	Category       float64 `json:"category"`
	Familiarity    float64 `json:"familiarity"`
	ScheduleDay    float64 `json:"schedule_day"`
	DistanceBudget float64 `json:"distance_budget"`
}

// Total applies the weight table and clamps the result to [0, MaxScore].
func (b ScoreBreakdown) Total() float64 {
	total := b.Proximity*Weights.Proximity +
		b.Category*Weights.Category +
		b.Familiarity*Weights.Familiarity +
		b.ScheduleDay*Weights.ScheduleDay +
		b.DistanceBudget*Weights.DistanceBudget
	return clamp(total, 0, MaxScore)
}

// ScoreVenue returns the relevance of a venue for a user, in [0, 10].
func ScoreVenue(venue Venue, prefs UserPreferences, history []VisitRecord) float64 {
	return BreakdownVenue(venue, prefs, history).Total()
}

// BreakdownVenue computes every scoring factor for a venue.
func BreakdownVenue(venue Venue, prefs UserPreferences, history []VisitRecord) ScoreBreakdown {
	prefs = prefs.Normalize()
	return ScoreBreakdown{
		Proximity:      proximityFactor(venue),
		Category:       categoryFactor(venue, prefs),
		Familiarity:    familiarityFactor(venue, history),
		ScheduleDay:    scheduleDayFactor(venue, prefs),
		DistanceBudget: distanceBudgetFactor(venue, prefs),
	}
}

// RankVenues scores every venue and returns them sorted by descending score.
// Ties keep catalog order. A limit <= 0 returns every venue.
func RankVenues(venues []Venue, prefs UserPreferences, history []VisitRecord, limit int) []RankedVenue {
	ranked := make([]RankedVenue, 0, len(venues))
	for _, v := range venues {
		ranked = append(ranked, RankedVenue{Venue: v, Score: ScoreVenue(v, prefs, history)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func proximityFactor(v Venue) float64 {
	d, ok := knownDistance(v)
	if !ok {
		return 5.0
	}
	return clamp((proximityRangeMiles-d)/proximityRangeMiles*10, 0, 10)
}

func categoryFactor(v Venue, prefs UserPreferences) float64 {
	switch {
	case len(prefs.PreferredCategories) == 0:
		return 5.0
	case prefs.PrefersCategory(v.Category):
		return 7.5
	default:
		return 2.0
	}
}

func familiarityFactor(v Venue, history []VisitRecord) float64 {
	visits := countVisits(history, v.ID)
	if visits == 0 {
		return 0
	}
	return min(maxFamiliarity, float64(visits)*pointsPerVisit)
}

func scheduleDayFactor(v Venue, prefs UserPreferences) float64 {
	if prefs.PreferredServiceDay == nil {
		return 4.0
	}
	if scheduleMentionsDay(v.Schedule, *prefs.PreferredServiceDay) {
		return 6.0
	}
	return 2.0
}

func distanceBudgetFactor(v Venue, prefs UserPreferences) float64 {
	d, ok := knownDistance(v)
	if !ok || d <= prefs.MaxDistanceMiles {
		return 5.0
	}
	over := d - prefs.MaxDistanceMiles
	return clamp(5.0*(1-over/budgetDecayMiles), 0, 5.0)
}

// weekendDayPatterns match a day name or its three-letter abbreviation as a
// whole word. Only Sunday and Saturday are recognized.
var weekendDayPatterns = map[time.Weekday]*regexp.Regexp{
	time.Sunday:   regexp.MustCompile(`(?i)\bsun(day)?\b`),
	time.Saturday: regexp.MustCompile(`(?i)\bsat(urday)?\b`),
}

func scheduleMentionsDay(schedule string, day time.Weekday) bool {
	re, ok := weekendDayPatterns[day]
	return ok && re.MatchString(schedule)
}

func countVisits(history []VisitRecord, venueID string) int {
	n := 0
	for _, r := range history {
		if r.VenueID == venueID {
			n++
		}
	}
	return n
}
