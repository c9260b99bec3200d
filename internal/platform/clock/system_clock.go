// Package clock fixes the time policy for the whole service: all vote
// timestamps and day boundaries are UTC.
package clock

import "time"

type SystemClock struct{}

func NewSystemClock() SystemClock {
	return SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// DayKey is the single definition of "calendar day" for daily limits:
// the UTC date, formatted YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
