// internal/domain/cycle/alignment.go
package cycle

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is how often a benefit's cap resets.
type Frequency string

const (
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
	FrequencyOneTime   Frequency = "ONE_TIME"
)

// ParseFrequency maps a stored or user-supplied value onto a Frequency.
// Unknown values are an error, never a default.
func ParseFrequency(raw string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(raw)))
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyYearly, FrequencyOneTime:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFrequency, raw)
}

// PeriodMonths returns the length of one cycle in months. ONE_TIME has no period.
func (f Frequency) PeriodMonths() (int, error) {
	switch f {
	case FrequencyMonthly:
		return 1, nil
	case FrequencyQuarterly:
		return 3, nil
	case FrequencyYearly:
		return 12, nil
	case FrequencyOneTime:
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFrequency, string(f))
}

// IsRecurring reports whether the frequency produces more than one cycle.
func (f Frequency) IsRecurring() bool {
	return f == FrequencyMonthly || f == FrequencyQuarterly || f == FrequencyYearly
}

// Alignment decides where cycle boundaries fall. The only implementations are
// Anniversary and CalendarFixed, so fixed-month fields can't be set on an
// anniversary benefit.
type Alignment interface {
	Kind() AlignmentKind
	isAlignment()
}

// AlignmentKind is the persisted discriminator of an Alignment.
type AlignmentKind string

const (
	AlignmentAnniversary   AlignmentKind = "ANNIVERSARY"
	AlignmentCalendarFixed AlignmentKind = "CALENDAR_FIXED"
)

// Anniversary aligns cycles to the card's anchor (usually the account opening date).
type Anniversary struct{}

func (Anniversary) Kind() AlignmentKind { return AlignmentAnniversary }
func (Anniversary) isAlignment()        {}
func (Anniversary) String() string      { return string(AlignmentAnniversary) }

// CalendarFixed aligns cycles to fixed calendar months, e.g. StartMonth=7 and
// DurationMonths=3 for a July-September window.
type CalendarFixed struct {
	StartMonth     time.Month
	DurationMonths int
}

func (CalendarFixed) Kind() AlignmentKind { return AlignmentCalendarFixed }
func (CalendarFixed) isAlignment()        {}

func (c CalendarFixed) String() string {
	return fmt.Sprintf("%s(start=%d,duration=%d)", AlignmentCalendarFixed, int(c.StartMonth), c.DurationMonths)
}

// Validate checks the fixed window fits inside one period of freq.
func (c CalendarFixed) Validate(freq Frequency) error {
	if c.StartMonth < time.January || c.StartMonth > time.December {
		return fmt.Errorf("calendar-fixed start month %d out of range 1-12", int(c.StartMonth))
	}
	period, err := freq.PeriodMonths()
	if err != nil {
		return err
	}
	if period == 0 {
		return fmt.Errorf("calendar-fixed alignment is not valid for %s benefits", freq)
	}
	if c.DurationMonths < 1 || c.DurationMonths > period {
		return fmt.Errorf("calendar-fixed duration %d months must be between 1 and %d for %s", c.DurationMonths, period, freq)
	}
	return nil
}

// NewAlignment rebuilds an Alignment from its persisted columns. Fixed-month
// columns are required for CALENDAR_FIXED and must be absent otherwise.
func NewAlignment(kind string, startMonth, durationMonths *int) (Alignment, error) {
	switch AlignmentKind(strings.ToUpper(strings.TrimSpace(kind))) {
	case AlignmentAnniversary, "":
		if startMonth != nil || durationMonths != nil {
			return nil, fmt.Errorf("anniversary alignment cannot carry fixed-month fields")
		}
		return Anniversary{}, nil
	case AlignmentCalendarFixed:
		if startMonth == nil || durationMonths == nil {
			return nil, fmt.Errorf("calendar-fixed alignment requires start month and duration")
		}
		return CalendarFixed{StartMonth: time.Month(*startMonth), DurationMonths: *durationMonths}, nil
	}
	return nil, fmt.Errorf("unknown alignment %q", kind)
}

// AlignmentColumns is the inverse of NewAlignment.
func AlignmentColumns(a Alignment) (kind string, startMonth, durationMonths *int) {
	switch v := a.(type) {
	case CalendarFixed:
		m, d := int(v.StartMonth), v.DurationMonths
		return string(AlignmentCalendarFixed), &m, &d
	default:
		return string(AlignmentAnniversary), nil, nil
	}
}

func alignmentName(a Alignment) string {
	if a == nil {
		return "<nil>"
	}
	if s, ok := a.(fmt.Stringer); ok {
		return s.String()
	}
	return string(a.Kind())
}
