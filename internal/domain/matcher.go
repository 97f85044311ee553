package domain

import (
	"math"
	"sort"
	"strings"
)

const (
	// SuggestionThreshold is the minimum similarity a suggestion must reach.
	SuggestionThreshold = 0.5

	veryCloseMiles = 1.0
	minMatchMiles  = 0.1
)

// SuggestVenues returns up to limit unvisited venues similar to what the user
// prefers or has attended, ranked by similarity. Similarity lies in [0, 1].
func SuggestVenues(prefs UserPreferences, venues []Venue, history []VisitRecord, limit int) []Suggestion {
	prefs = prefs.Normalize()
	seen := historyCategories(venues, history)

	out := make([]Suggestion, 0)
	for _, v := range venues {
		if prefs.HasVisited(v.ID) {
			continue
		}
		score := similarity(v, prefs, seen, len(history) > 0)
		if score < SuggestionThreshold {
			continue
		}
		out = append(out, Suggestion{Venue: v, Score: score, Reason: suggestionReason(v, prefs)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func similarity(v Venue, prefs UserPreferences, seen map[string]bool, hasHistory bool) float64 {
	var score float64
	category := normalizeCategory(v.Category)

	if prefs.PrefersCategory(v.Category) {
		score += 0.4
	}
	if seen[category] {
		score += 0.3
	}
	if d, ok := knownDistance(v); ok {
		score += 0.2 * math.Min(1, prefs.MaxDistanceMiles/math.Max(d, minMatchMiles))
	}
	if hasHistory && !seen[category] {
		score += 0.1
	}
	return clamp(score, 0, 1)
}

func suggestionReason(v Venue, prefs UserPreferences) SuggestionReason {
	if prefs.PrefersCategory(v.Category) {
		return ReasonPreferredCategory
	}
	if d, ok := knownDistance(v); ok {
		if d < veryCloseMiles {
			return ReasonVeryClose
		}
		if d <= prefs.MaxDistanceMiles {
			return ReasonWithinDistance
		}
	}
	return ReasonExplore
}

// historyCategories resolves the categories of visited venues through the
// venue list. Visits to venues missing from the list contribute nothing.
func historyCategories(venues []Venue, history []VisitRecord) map[string]bool {
	byID := make(map[string]string, len(venues))
	for _, v := range venues {
		byID[v.ID] = normalizeCategory(v.Category)
	}

	seen := make(map[string]bool)
	for _, r := range history {
		if c, ok := byID[r.VenueID]; ok && c != "" {
			seen[c] = true
		}
	}
	return seen
}

func normalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
