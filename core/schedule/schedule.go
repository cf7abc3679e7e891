// Package schedule normalizes the recurring weekly schedules of groups and
// decides which lessons have already ended on a given day.
//
// Groups come in two persisted shapes: a list of slots
// ({days, startTime, endTime}, ...) or the legacy single slot stored directly
// on the group. Parse turns both into one Schedule so matching never has to
// sniff shapes.
package schedule

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind tells which persisted shape a Schedule was read from.
type Kind int

const (
	KindNone Kind = iota
	KindSlotList
	KindSingleSlot
)

func (k Kind) String() string {
	switch k {
	case KindSlotList:
		return "slot-list"
	case KindSingleSlot:
		return "single-slot"
	default:
		return "none"
	}
}

var (
	clockRegex = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

	weekdays = map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
)

// ClockTime is a wall-clock "HH:mm".
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "H:mm" or "HH:mm" (00:00 - 23:59).
func ParseClock(s string) (ClockTime, bool) {
	m := clockRegex.FindStringSubmatch(s)
	if m == nil {
		return ClockTime{}, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if h > 23 || min > 59 {
		return ClockTime{}, false
	}
	return ClockTime{Hour: h, Minute: min}, true
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant of c on t's civil date, in t's location.
func (c ClockTime) On(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, t.Location())
}

// Weekday looks up an english weekday name, case-insensitively. Persisted tokens are
// matched as they are: " monday" is not a weekday.
func Weekday(name string) (time.Weekday, bool) {
	wd, ok := weekdays[strings.ToLower(name)]
	return wd, ok
}

// ParseWeekday reads a configured weekday. Surrounding spaces are ignored.
func ParseWeekday(name string) (time.Weekday, error) {
	wd, ok := Weekday(strings.TrimSpace(name))
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	return wd, nil
}

// WeekdayName returns the lowercase english name of wd.
func WeekdayName(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

// Tokens is a list of weekday tokens as persisted. Non-string JSON values are kept in
// their textual form so that a single bad token never invalidates the whole list.
type Tokens []string

func (tk *Tokens) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*tk = nil
		return nil
	}
	toks := make(Tokens, 0, len(raw))
	for _, v := range raw {
		if v == nil {
			continue
		}
		toks = append(toks, fmt.Sprint(v))
	}
	*tk = toks
	return nil
}

// RawSlot is one slot as persisted.
type RawSlot struct {
	Days      Tokens  `json:"days"`
	StartTime *string `json:"startTime"`
	EndTime   *string `json:"endTime"`
}

// RawGroupSchedule carries both accepted shapes of a group's schedule.
// Schedule is nil when the group has no slot list.
// Days is nil when the group has no legacy schedule.
type RawGroupSchedule struct {
	Schedule  []RawSlot
	Days      Tokens
	StartTime *string
	EndTime   *string
}

// Slot is one recurring weekly time range.
type Slot struct {
	Index    int
	Days     []time.Weekday
	Start    ClockTime
	HasStart bool
	End      ClockTime
	HasEnd   bool
}

// OnDay reports whether the slot recurs on wd.
func (s Slot) OnDay(wd time.Weekday) bool {
	for _, d := range s.Days {
		if d == wd {
			return true
		}
	}
	return false
}

// Schedule is the normalized schedule of a group.
type Schedule struct {
	Kind  Kind
	Slots []Slot
}

// Parse normalizes raw into a Schedule. The slot list wins over the legacy fields.
func Parse(raw RawGroupSchedule) Schedule {
	switch {
	case raw.Schedule != nil:
		slots := make([]Slot, 0, len(raw.Schedule))
		for i, rs := range raw.Schedule {
			slots = append(slots, newSlot(i, rs.Days, rs.StartTime, rs.EndTime))
		}
		return Schedule{Kind: KindSlotList, Slots: slots}
	case raw.Days != nil:
		return Schedule{Kind: KindSingleSlot, Slots: []Slot{newSlot(0, raw.Days, raw.StartTime, raw.EndTime)}}
	default:
		return Schedule{Kind: KindNone}
	}
}

// ParseSlotListJSON decodes a persisted slot list. A JSON null yields a nil list.
// Slots are decoded one by one: an element that is not an object or whose days is not
// an array is dropped, and non-string times read as absent. Only a column that is not
// an array at all is an error.
func ParseSlotListJSON(data []byte) ([]RawSlot, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, err
	}
	if elems == nil {
		return nil, nil
	}
	slots := make([]RawSlot, 0, len(elems))
	for _, elem := range elems {
		if rs, ok := decodeSlot(elem); ok {
			slots = append(slots, rs)
		}
	}
	return slots, nil
}

func decodeSlot(data json.RawMessage) (RawSlot, bool) {
	var loose struct {
		Days      json.RawMessage `json:"days"`
		StartTime interface{}     `json:"startTime"`
		EndTime   interface{}     `json:"endTime"`
	}
	if err := json.Unmarshal(data, &loose); err != nil || string(data) == "null" {
		return RawSlot{}, false
	}
	var days Tokens
	if err := json.Unmarshal(loose.Days, &days); err != nil || days == nil {
		return RawSlot{}, false
	}
	return RawSlot{Days: days, StartTime: stringOrNil(loose.StartTime), EndTime: stringOrNil(loose.EndTime)}, true
}

func stringOrNil(v interface{}) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

// ParseDaysJSON decodes a persisted legacy days list. A JSON null yields a nil list.
func ParseDaysJSON(data []byte) (Tokens, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var days Tokens
	if err := json.Unmarshal(data, &days); err != nil {
		return nil, err
	}
	return days, nil
}

func newSlot(idx int, tokens []string, start, end *string) Slot {
	s := Slot{Index: idx}
	for _, tok := range tokens {
		if wd, ok := Weekday(tok); ok {
			s.Days = append(s.Days, wd)
		}
	}
	if start != nil {
		s.Start, s.HasStart = ParseClock(*start)
	}
	if end != nil {
		s.End, s.HasEnd = ParseClock(*end)
	}
	return s
}
