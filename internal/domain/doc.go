// Package domain models church discovery: venues, user preferences, the visit
// log, and the pure scoring, prediction, and reminder math built on top of them.
//
// Every function in this package is a pure function over its inputs. Nothing
// here performs I/O, reads the wall clock, or mutates a slice or struct it was
// handed; callers pass "now" explicitly and receive fresh copies back. That
// keeps ranking safe to run concurrently for many readers and keeps the time
// math deterministic under test.
//
// # Service Time Prediction
//
// Venue schedules are free text written by congregations ("Sunday 10:30 AM",
// "Mass Sun 9:00am, Sat vigil 5pm", "Worship at 11"). [PredictNextService]
// resolves them heuristically in priority order:
//
//	1. Holiday overrides on the reference date:
//	     Christmas (Dec 25)           10:00
//	     New Year (Jan 1)             10:30
//	     Thanksgiving (4th Thu, Nov)  09:00
//	     Easter (Apr 1 – Apr 22)      07:00 sunrise
//	2. Catholic venues on a Saturday: 17:00 vigil Mass, same day.
//	3. Otherwise the next Sunday (never today), at the first H:MM token in the
//	   schedule text; "pm" adds 12 hours, no token means 10:00.
//
// The Easter window is a fixed calendar approximation, not a Computus
// calculation. It misclassifies most years and is kept for parity with the
// mobile clients that share these rules.
//
// # Scoring
//
// [ScoreVenue] is a weighted sum of five factors, each pre-scaled to 0–10:
//
//	Proximity        0.30   (25 − miles) / 25 × 10, floored at 0
//	Category         0.25   7.5 preferred | 2.0 not preferred | 5.0 no preference
//	Familiarity      0.20   min(8, visits × 2)
//	Schedule day     0.15   6.0 match | 2.0 mismatch | 4.0 no preferred day
//	Distance budget  0.10   5.0 inside budget, linear decay to 0 over 5 more miles
//
// A venue with an unknown distance (no user location) takes the neutral value
// of the two distance factors. Scores are clamped to [0, 10] and are never NaN.
//
// # Reminders
//
// [OptimalReminder] subtracts prep time, travel time (2 minutes per mile plus a
// 20% traffic buffer, or a flat 30 minutes without a location) and a fixed
// 15 minute buffer from the next service start, then clamps the result into
// [now, now+24h].
package domain
