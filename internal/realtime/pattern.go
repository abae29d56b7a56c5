// Package realtime supplies the external-data inputs the simulation
// consumes: time-of-day traffic patterns, a weather snapshot, and the
// derived road congestion level. Data-source failures always degrade to a
// fixed fallback; nothing here is allowed to take the core down.
package realtime

import "time"

// TimePattern is the traffic multiplier derived from the clock.
type TimePattern struct {
	Multiplier float64 `json:"time_multiplier"`
	Hour       int     `json:"hour"`
	DayOfWeek  int     `json:"day_of_week"`
	IsRushHour bool    `json:"is_rush_hour"`
	IsWeekend  bool    `json:"is_weekend"`
}

// Pattern derives the multiplier for a point in time. The hour bands are
// deliberately inclusive on both ends, with earlier bands winning on the
// shared boundary hours.
func Pattern(now time.Time) TimePattern {
	hour := now.Hour()
	weekday := now.Weekday()
	isWeekend := weekday == time.Saturday || weekday == time.Sunday

	var multiplier float64
	switch {
	case isWeekend && hour >= 10 && hour <= 20:
		multiplier = 0.7
	case isWeekend:
		multiplier = 0.4
	case hour >= 8 && hour <= 10: // morning rush
		multiplier = 1.5
	case hour >= 18 && hour <= 20: // evening rush
		multiplier = 1.6
	case (hour >= 10 && hour <= 12) || (hour >= 14 && hour <= 17): // mid-day
		multiplier = 1.0
	case hour >= 12 && hour <= 14: // lunch lull
		multiplier = 0.8
	case hour >= 20 && hour <= 22: // late evening
		multiplier = 0.7
	default: // night
		multiplier = 0.3
	}

	return TimePattern{
		Multiplier: multiplier,
		Hour:       hour,
		DayOfWeek:  int(weekday),
		IsRushHour: (hour >= 8 && hour <= 10) || (hour >= 18 && hour <= 20),
		IsWeekend:  isWeekend,
	}
}
