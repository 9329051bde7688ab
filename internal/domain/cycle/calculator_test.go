package cycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func endOf(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), time.UTC)
}

func TestCalculate_CalendarFixedThirdQuarterRegression(t *testing.T) {
	w, err := Calculate(Input{
		Frequency: FrequencyYearly,
		Alignment: CalendarFixed{StartMonth: time.July, DurationMonths: 3},
		Reference: utc(2025, time.September, 15, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, utc(2025, time.July, 1, 0, 0), w.Start)
	assert.Equal(t, endOf(2025, time.September, 30), w.End)
	assert.False(t, w.Degraded)
}

func TestCalculate_CalendarFixedReferenceBeforeStartMonthUsesPreviousYear(t *testing.T) {
	w, err := Calculate(Input{
		Frequency: FrequencyYearly,
		Alignment: CalendarFixed{StartMonth: time.July, DurationMonths: 12},
		Reference: utc(2025, time.March, 3, 10, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, utc(2024, time.July, 1, 0, 0), w.Start)
	assert.Equal(t, endOf(2025, time.June, 30), w.End)
}

func TestCalculate_CalendarFixedQuarterlyRollsForward(t *testing.T) {
	cases := []struct {
		name       string
		startMonth time.Month
		ref        time.Time
		wantStart  time.Time
		wantEnd    time.Time
	}{
		{"january quarters mid september", time.January, utc(2025, time.September, 15, 0, 0), utc(2025, time.July, 1, 0, 0), endOf(2025, time.September, 30)},
		{"february quarters in january wraps year", time.February, utc(2025, time.January, 10, 0, 0), utc(2024, time.November, 1, 0, 0), endOf(2025, time.January, 31)},
		{"last millisecond of quarter", time.January, endOf(2025, time.March, 31), utc(2025, time.January, 1, 0, 0), endOf(2025, time.March, 31)},
		{"first instant of next quarter", time.January, utc(2025, time.April, 1, 0, 0), utc(2025, time.April, 1, 0, 0), endOf(2025, time.June, 30)},
		{"december quarters in december", time.December, utc(2025, time.December, 31, 23, 0), utc(2025, time.December, 1, 0, 0), endOf(2026, time.February, 28)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := Calculate(Input{
				Frequency: FrequencyQuarterly,
				Alignment: CalendarFixed{StartMonth: tc.startMonth, DurationMonths: 3},
				Reference: tc.ref,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.wantStart, w.Start)
			assert.Equal(t, tc.wantEnd, w.End)
		})
	}
}

func TestCalculate_CalendarFixedMonthly(t *testing.T) {
	w, err := Calculate(Input{
		Frequency: FrequencyMonthly,
		Alignment: CalendarFixed{StartMonth: time.January, DurationMonths: 1},
		Reference: utc(2024, time.February, 29, 12, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, utc(2024, time.February, 1, 0, 0), w.Start)
	assert.Equal(t, endOf(2024, time.February, 29), w.End)
}

func TestCalculate_CalendarFixedGapReturnsUpcomingWindow(t *testing.T) {
	w, err := Calculate(Input{
		Frequency: FrequencyYearly,
		Alignment: CalendarFixed{StartMonth: time.July, DurationMonths: 3},
		Reference: utc(2025, time.October, 15, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, utc(2026, time.July, 1, 0, 0), w.Start)
	assert.Equal(t, endOf(2026, time.September, 30), w.End)
	assert.False(t, w.Contains(utc(2025, time.October, 15, 0, 0)))
}

func TestCalculate_CalendarFixedRejectsBadMetadata(t *testing.T) {
	_, err := Calculate(Input{
		Frequency: FrequencyQuarterly,
		Alignment: CalendarFixed{StartMonth: time.July, DurationMonths: 6},
		Reference: utc(2025, time.September, 15, 0, 0),
	})
	require.ErrorIs(t, err, ErrInvalidWindow)

	_, err = Calculate(Input{
		Frequency: FrequencyYearly,
		Alignment: CalendarFixed{StartMonth: 13, DurationMonths: 1},
		Reference: utc(2025, time.September, 15, 0, 0),
	})
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestCalculate_AnniversaryMonthly(t *testing.T) {
	anchor := utc(2023, time.June, 15, 9, 30)
	w, err := Calculate(Input{
		Frequency: FrequencyMonthly,
		Alignment: Anniversary{},
		Reference: utc(2025, time.March, 10, 0, 0),
		Anchor:    &anchor,
	})
	require.NoError(t, err)
	assert.Equal(t, utc(2025, time.February, 15, 0, 0), w.Start)
	assert.Equal(t, endOf(2025, time.March, 14), w.End)
}

func TestCalculate_AnniversaryMonthlyClampsShortMonths(t *testing.T) {
	anchor := utc(2024, time.January, 31, 0, 0)
	w, err := Calculate(Input{
		Frequency: FrequencyMonthly,
		Alignment: Anniversary{},
		Reference: utc(2025, time.March, 5, 0, 0),
		Anchor:    &anchor,
	})
	require.NoError(t, err)
	assert.Equal(t, utc(2025, time.February, 28, 0, 0), w.Start)
	assert.Equal(t, endOf(2025, time.March, 30), w.End)

	w, err = Calculate(Input{
		Frequency: FrequencyMonthly,
		Alignment: Anniversary{},
		Reference: utc(2025, time.March, 31, 8, 0),
		Anchor:    &anchor,
	})
	require.NoError(t, err)
	assert.Equal(t, utc(2025, time.March, 31, 0, 0), w.Start)
	assert.Equal(t, endOf(2025, time.April, 29), w.End)
}

func TestCalculate_AnniversaryQuarterlyAndYearly(t *testing.T) {
	anchor := utc(2022, time.May, 20, 0, 0)

	w, err := Calculate(Input{Frequency: FrequencyQuarterly, Alignment: Anniversary{}, Reference: utc(2025, time.January, 2, 0, 0), Anchor: &anchor})
	require.NoError(t, err)
	assert.Equal(t, utc(2024, time.November, 20, 0, 0), w.Start)
	assert.Equal(t, endOf(2025, time.February, 19), w.End)

	w, err = Calculate(Input{Frequency: FrequencyYearly, Alignment: Anniversary{}, Reference: utc(2025, time.May, 19, 23, 0), Anchor: &anchor})
	require.NoError(t, err)
	assert.Equal(t, utc(2024, time.May, 20, 0, 0), w.Start)
	assert.Equal(t, endOf(2025, time.May, 19), w.End)

	w, err = Calculate(Input{Frequency: FrequencyYearly, Alignment: Anniversary{}, Reference: utc(2025, time.May, 20, 0, 0), Anchor: &anchor})
	require.NoError(t, err)
	assert.Equal(t, utc(2025, time.May, 20, 0, 0), w.Start)
}

func TestCalculate_AnniversaryReferenceBeforeAnchorFloors(t *testing.T) {
	anchor := utc(2025, time.June, 10, 0, 0)
	ref := utc(2025, time.April, 1, 0, 0)
	w, err := Calculate(Input{Frequency: FrequencyMonthly, Alignment: Anniversary{}, Reference: ref, Anchor: &anchor})
	require.NoError(t, err)
	assert.Equal(t, utc(2025, time.March, 10, 0, 0), w.Start)
	assert.Equal(t, endOf(2025, time.April, 9), w.End)
}

func TestCalculate_AnniversaryMissingAnchor(t *testing.T) {
	_, err := Calculate(Input{Frequency: FrequencyMonthly, Alignment: Anniversary{}, Reference: utc(2025, time.March, 10, 0, 0)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingAnchor))

	anchor := DefaultAnchor(utc(2025, time.March, 10, 0, 0))
	assert.Equal(t, utc(2025, time.January, 1, 0, 0), anchor)
}

func TestCalculate_OneTimeIsOpenEnded(t *testing.T) {
	created := utc(2024, time.August, 3, 14, 22)
	w, err := Calculate(Input{Frequency: FrequencyOneTime, Alignment: Anniversary{}, Reference: utc(2030, time.January, 1, 0, 0), CreatedAt: created})
	require.NoError(t, err)
	assert.Equal(t, created, w.Start)
	assert.Equal(t, OpenEnded, w.End)
}

func TestCalculate_UnsupportedFrequency(t *testing.T) {
	anchor := utc(2024, time.January, 1, 0, 0)
	_, err := Calculate(Input{Frequency: "WEEKLY", Alignment: Anniversary{}, Reference: utc(2025, time.March, 10, 0, 0), Anchor: &anchor})
	require.ErrorIs(t, err, ErrUnsupportedFrequency)

	_, err = ParseFrequency("weekly")
	require.ErrorIs(t, err, ErrUnsupportedFrequency)

	f, err := ParseFrequency(" quarterly ")
	require.NoError(t, err)
	assert.Equal(t, FrequencyQuarterly, f)
}

// Every recurring configuration whose window tiles the calendar must return a
// window that contains the reference.
func TestCalculate_WindowContainsReference(t *testing.T) {
	anchors := []time.Time{
		utc(2020, time.January, 1, 0, 0),
		utc(2021, time.February, 28, 13, 0),
		utc(2019, time.August, 31, 23, 59),
		utc(2024, time.February, 29, 6, 0),
	}
	alignments := map[Frequency][]Alignment{
		FrequencyMonthly:   {Anniversary{}, CalendarFixed{StartMonth: time.January, DurationMonths: 1}},
		FrequencyQuarterly: {Anniversary{}, CalendarFixed{StartMonth: time.February, DurationMonths: 3}, CalendarFixed{StartMonth: time.December, DurationMonths: 3}},
		FrequencyYearly:    {Anniversary{}, CalendarFixed{StartMonth: time.July, DurationMonths: 12}, CalendarFixed{StartMonth: time.January, DurationMonths: 12}},
	}

	ref := utc(2023, time.January, 1, 0, 0)
	for i := 0; i < 800; i++ {
		ref = ref.Add(37*time.Hour + 13*time.Minute)
		for freq, list := range alignments {
			for _, a := range list {
				for _, anchor := range anchors {
					anchor := anchor
					w, err := Calculate(Input{Frequency: freq, Alignment: a, Reference: ref, Anchor: &anchor})
					require.NoError(t, err)
					require.True(t, w.End.After(w.Start), "%s %v end not after start", freq, a)
					require.True(t, w.Contains(ref), "%s %v anchor %s: %s not in %s", freq, a, anchor, ref, w)
					require.True(t, IsNormalized(w.Start), "start %s not normalized", w.Start)
				}
			}
		}
	}
}
