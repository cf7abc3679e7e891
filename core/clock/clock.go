// Package clock pins every "now" and "today" computation to one civil timezone,
// so the host machine's locale never leaks into attendance dates.
package clock

import (
	"time"
	_ "time/tzdata" // hosts without a zoneinfo database

	"github.com/pkg/errors"
)

// DefaultZone is the school's timezone.
const DefaultZone = "Asia/Almaty"

// Date is a civil date in the clock's zone.
type Date struct {
	Year    int
	Month   time.Month
	Day     int
	Weekday time.Weekday
}

type Clock struct {
	loc     *time.Location
	NowFunc func() time.Time // mockable
}

func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, NowFunc: time.Now}
}

// Load returns a Clock for the named IANA zone.
func Load(name string) (*Clock, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "loading timezone %q", name)
	}
	return New(loc), nil
}

func (c *Clock) Location() *time.Location { return c.loc }

// Now returns the current instant in the fixed zone, with second precision.
func (c *Clock) Now() time.Time {
	return c.ToZoned(c.NowFunc()).Truncate(time.Second)
}

// ToZoned expresses t in the fixed zone. The instant is unchanged.
func (c *Clock) ToZoned(t time.Time) time.Time {
	return t.In(c.loc)
}

// Timestamp returns Now as epoch milliseconds.
func (c *Clock) Timestamp() int64 {
	return Millis(c.Now())
}

func (c *Clock) Today() Date {
	return DateOf(c.Now())
}

// At returns the instant of the given civil date and wall-clock time in the fixed zone.
func (c *Clock) At(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, c.loc)
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d, Weekday: t.Weekday()}
}

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// DaysIn returns the number of days of the given month, leap years included.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
