// internal/domain/cycle/calculator.go
package cycle

import (
	"fmt"
	"time"
)

// OpenEnded is the end of a ONE_TIME benefit's only window.
var OpenEnded = time.Date(9999, time.December, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC)

// Window is one cycle: [Start, End], both UTC. End is the last millisecond of
// the final day.
type Window struct {
	Start time.Time
	End   time.Time
	// Degraded is set when the window was computed from DefaultAnchor instead
	// of the card's real anchor.
	Degraded bool
}

// Contains reports whether t falls inside the window (inclusive).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.Format(time.RFC3339Nano), w.End.Format(time.RFC3339Nano))
}

// Input is everything Calculate needs. Reference is the instant whose active
// cycle is wanted; callers pass it explicitly.
type Input struct {
	Frequency Frequency
	Alignment Alignment
	Reference time.Time
	// Anchor is required for anniversary alignment of recurring benefits.
	Anchor *time.Time
	// CreatedAt starts the single window of a ONE_TIME benefit.
	CreatedAt time.Time
}

// DefaultAnchor is the fallback anchor for anniversary benefits on cards
// without an opening date: January 1st of the reference year. Windows built
// from it are marked Degraded.
func DefaultAnchor(reference time.Time) time.Time {
	return time.Date(reference.UTC().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Calculate returns the cycle window for in.Reference.
func Calculate(in Input) (Window, error) {
	if in.Frequency == FrequencyOneTime {
		start := in.CreatedAt.UTC()
		return Window{Start: start, End: OpenEnded}, nil
	}
	period, err := in.Frequency.PeriodMonths()
	if err != nil {
		return Window{}, err
	}

	var w Window
	switch a := in.Alignment.(type) {
	case CalendarFixed:
		if err := a.Validate(in.Frequency); err != nil {
			return Window{}, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
		}
		w = calendarFixedWindow(a, period, in.Reference.UTC())
	case Anniversary:
		if in.Anchor == nil {
			return Window{}, fmt.Errorf("%w (frequency %s)", ErrMissingAnchor, in.Frequency)
		}
		w = anniversaryWindow(*in.Anchor, period, in.Reference.UTC())
	case nil:
		return Window{}, fmt.Errorf("%w: benefit has no alignment", ErrInvalidWindow)
	default:
		return Window{}, fmt.Errorf("unknown alignment %s", alignmentName(in.Alignment))
	}

	if !w.End.After(w.Start) {
		return Window{}, fmt.Errorf("%w: end %s not after start %s", ErrInvalidWindow, w.End, w.Start)
	}
	return w, nil
}

// calendarFixedWindow finds the most recent fixed start on or before ref and
// rolls forward one period at a time while ref is past the window's end. If
// the fixed window is shorter than the period, ref may sit in the gap and the
// upcoming window is returned.
func calendarFixedWindow(a CalendarFixed, period int, ref time.Time) Window {
	year := ref.Year()
	if ref.Month() < a.StartMonth {
		year--
	}
	start := time.Date(year, a.StartMonth, 1, 0, 0, 0, 0, time.UTC)
	end := fixedEnd(start, a.DurationMonths)

	for ref.After(end) {
		start = start.AddDate(0, period, 0)
		end = fixedEnd(start, a.DurationMonths)
	}
	return Window{Start: start, End: end}
}

func fixedEnd(start time.Time, durationMonths int) time.Time {
	lastDay := start.AddDate(0, durationMonths, 0).AddDate(0, 0, -1)
	return EndOfDay(lastDay)
}

// anniversaryWindow steps from the anchor's date by whole periods and floors to
// the cycle containing ref. Anchor days past the end of a shorter month are
// clamped to that month's last day.
func anniversaryWindow(anchor time.Time, period int, ref time.Time) Window {
	base := Normalize(anchor)
	elapsed := (ref.Year()-base.Year())*12 + int(ref.Month()) - int(base.Month())
	k := floorDiv(elapsed, period)

	start := addMonthsClamped(base, k*period)
	for start.After(ref) {
		k--
		start = addMonthsClamped(base, k*period)
	}
	next := addMonthsClamped(base, (k+1)*period)
	for !next.After(ref) {
		k++
		start = next
		next = addMonthsClamped(base, (k+1)*period)
	}
	return Window{Start: start, End: next.Add(-time.Millisecond)}
}

// addMonthsClamped adds months to base keeping base's day-of-month where the
// target month has it, otherwise using the target month's last day.
func addMonthsClamped(base time.Time, months int) time.Time {
	first := time.Date(base.Year(), base.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := base.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
