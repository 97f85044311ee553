package domain

import (
	"fmt"
	"time"
)

const (
	consistencyWindow    = 60 * 24 * time.Hour
	consistencyMinVisits = 4
	recentWindow         = 7 * 24 * time.Hour
	recentMinVisits      = 2
)

type threshold struct {
	count       int
	title       string
	description string
	accent      Accent
}

// Highest first; the first threshold reached wins.
var explorationMilestones = []threshold{
	{20, "Community Pillar", "You've visited %d different churches. Your curiosity is building bridges across the community.", AccentGold},
	{10, "Seasoned Explorer", "You've visited %d different churches. You know your area's congregations well.", AccentPurple},
	{5, "Explorer", "You've visited %d different churches. Keep discovering!", AccentBlue},
}

var engagementMilestones = []threshold{
	{5, "Connected", "You've saved %d churches. Your shortlist is taking shape.", AccentPurple},
	{3, "Building Your List", "You've saved %d churches so far.", AccentGreen},
}

// GenerateInsights derives milestone and encouragement messages from visit
// history. Rules are evaluated in a fixed order and each emits at most one
// insight.
func GenerateInsights(prefs UserPreferences, history []VisitRecord, savedVenues []string, now time.Time) []Insight {
	out := make([]Insight, 0, 4)

	if in, ok := explorationInsight(len(uniqueStrings(prefs.VisitedVenues))); ok {
		out = append(out, in)
	}
	if in, ok := consistencyInsight(history, now); ok {
		out = append(out, in)
	}
	if in, ok := engagementInsight(len(uniqueStrings(savedVenues))); ok {
		out = append(out, in)
	}
	if in, ok := recentActivityInsight(history, now); ok {
		out = append(out, in)
	}
	return out
}

func explorationInsight(visited int) (Insight, bool) {
	return milestoneFor(explorationMilestones, visited)
}

func engagementInsight(saved int) (Insight, bool) {
	return milestoneFor(engagementMilestones, saved)
}

func milestoneFor(levels []threshold, n int) (Insight, bool) {
	for _, l := range levels {
		if n >= l.count {
			return Insight{
				Kind:        InsightMilestone,
				Title:       l.title,
				Description: fmt.Sprintf(l.description, n),
				Accent:      l.accent,
			}, true
		}
	}
	return Insight{}, false
}

// consistencyInsight recognizes regular attendance at a single venue.
func consistencyInsight(history []VisitRecord, now time.Time) (Insight, bool) {
	counts := make(map[string]int)
	best := 0
	for _, r := range visitsWithin(history, now, consistencyWindow) {
		counts[r.VenueID]++
		best = max(best, counts[r.VenueID])
	}
	if best < consistencyMinVisits {
		return Insight{}, false
	}
	return Insight{
		Kind:        InsightEncouragement,
		Title:       "Faithful Attendance",
		Description: fmt.Sprintf("You've attended the same church %d times in the last 60 days.", best),
		Accent:      AccentGreen,
	}, true
}

func recentActivityInsight(history []VisitRecord, now time.Time) (Insight, bool) {
	n := len(visitsWithin(history, now, recentWindow))
	if n < recentMinVisits {
		return Insight{}, false
	}
	return Insight{
		Kind:        InsightEncouragement,
		Title:       "Active Week",
		Description: fmt.Sprintf("You've made %d visits this week. Great momentum!", n),
		Accent:      AccentOrange,
	}, true
}

// visitsWithin returns visits in the window (now-window, now].
func visitsWithin(history []VisitRecord, now time.Time, window time.Duration) []VisitRecord {
	start := now.Add(-window)
	var out []VisitRecord
	for _, r := range history {
		if r.VisitedAt.After(start) && !r.VisitedAt.After(now) {
			out = append(out, r)
		}
	}
	return out
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
