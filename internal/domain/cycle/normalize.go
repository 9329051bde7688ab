package cycle

import "time"

// Normalize returns midnight UTC of t's UTC calendar day. Every cycle start
// goes through here before it is used as part of a status key.
func Normalize(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsNormalized reports whether t already sits on midnight UTC.
func IsNormalized(t time.Time) bool {
	return t.Equal(Normalize(t))
}

// EndOfDay returns the last millisecond of t's UTC calendar day.
func EndOfDay(t time.Time) time.Time {
	return Normalize(t).Add(24*time.Hour - time.Millisecond)
}
