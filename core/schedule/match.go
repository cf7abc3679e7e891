package schedule

import "time"

// MatchedSlot is a slot whose lesson took place today and has already ended.
type MatchedSlot struct {
	Slot   Slot
	EndsAt time.Time
}

// MatchEndedToday returns the slots of s that recur on today and whose end time is
// not after now. End instants are computed on now's civil date and location.
// Slots without a valid end time are skipped.
func MatchEndedToday(s Schedule, today time.Weekday, now time.Time) []MatchedSlot {
	var matched []MatchedSlot
	for _, slot := range s.Slots {
		if !slot.HasEnd || !slot.OnDay(today) {
			continue
		}
		end := slot.End.On(now)
		if now.Before(end) {
			continue
		}
		matched = append(matched, MatchedSlot{Slot: slot, EndsAt: end})
	}
	return matched
}

// EndedToday reports whether s had at least one lesson that ended today.
func EndedToday(s Schedule, today time.Weekday, now time.Time) bool {
	return len(MatchEndedToday(s, today, now)) > 0
}
