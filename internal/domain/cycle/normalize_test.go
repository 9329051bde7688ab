package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_ZeroesTimeOfDay(t *testing.T) {
	in := time.Date(2025, time.July, 1, 13, 45, 12, 345678901, time.UTC)
	got := Normalize(in)
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestNormalize_UsesUTCCalendarDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 2025-07-01 02:00 JST is still June 30th in UTC.
	in := time.Date(2025, time.July, 1, 2, 0, 0, 0, tokyo)
	assert.Equal(t, time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC), Normalize(in))
}

func TestNormalize_Idempotent(t *testing.T) {
	zone := time.FixedZone("X", -5*3600-30*60)
	base := time.Date(2024, time.February, 29, 0, 0, 0, 0, zone)
	for i := 0; i < 500; i++ {
		x := base.Add(time.Duration(i) * 97 * time.Minute)
		once := Normalize(x)
		assert.Equal(t, once, Normalize(once))
		assert.True(t, IsNormalized(once))
		assert.Zero(t, once.Hour()+once.Minute()+once.Second()+once.Nanosecond())
	}
}

func TestIsNormalized(t *testing.T) {
	assert.True(t, IsNormalized(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, IsNormalized(time.Date(2025, 1, 1, 0, 0, 0, 1, time.UTC)))
	assert.False(t, IsNormalized(time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC)))
}

func TestEndOfDay(t *testing.T) {
	got := EndOfDay(time.Date(2025, time.September, 30, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, time.September, 30, 23, 59, 59, int(999*time.Millisecond), time.UTC), got)
}
