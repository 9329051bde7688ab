// internal/domain/cycle/validator.go
package cycle

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ValidationMode says what a caller does with a mismatch.
type ValidationMode string

const (
	// ValidationAdvisory logs mismatches and carries on. Used for per-user creation.
	ValidationAdvisory ValidationMode = "advisory"
	// ValidationBlocking aborts the enclosing write. Used for bulk migrations.
	ValidationBlocking ValidationMode = "blocking"
)

// ParseValidationMode defaults to advisory on empty input.
func ParseValidationMode(raw string) (ValidationMode, error) {
	switch ValidationMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ValidationAdvisory:
		return ValidationAdvisory, nil
	case ValidationBlocking:
		return ValidationBlocking, nil
	}
	return "", fmt.Errorf("unknown cycle validation mode %q", raw)
}

// Metadata is the part of a benefit the validator looks at.
type Metadata struct {
	Frequency   Frequency
	Alignment   Alignment
	Description string
}

// ValidationResult is the outcome of Validate. Err is a *MismatchError when
// IsValid is false.
type ValidationResult struct {
	IsValid bool
	Err     error
}

const monthAlt = `(january|february|march|april|may|june|july|august|september|october|november|december)`

// monthRange is an inclusive expected range of cycle start months.
type monthRange struct {
	from, to time.Month
	source   string
}

func (r monthRange) contains(m time.Month) bool {
	if r.from <= r.to {
		return m >= r.from && m <= r.to
	}
	// wraps the year end, e.g. November through January
	return m >= r.from || m <= r.to
}

// containsEvery reports whether some month of r lines up with m on a cycle
// of period months. Sub-yearly benefits restart several times a year, so a
// description naming one of those starts holds for all of them.
func (r monthRange) containsEvery(m time.Month, period int) bool {
	if period <= 0 || period >= 12 {
		return r.contains(m)
	}
	for mo, i := r.from, 0; i < 12; mo, i = mo%12+1, i+1 {
		if ((int(mo)-int(m))%period+period)%period == 0 {
			return true
		}
		if mo == r.to {
			break
		}
	}
	return false
}

var (
	quarterWords = map[string]int{"first": 1, "1st": 1, "second": 2, "2nd": 2, "third": 3, "3rd": 3, "fourth": 4, "4th": 4}
	halfWords    = map[string]int{"first": 1, "1st": 1, "second": 2, "2nd": 2}

	quarterCodeRe = regexp.MustCompile(`\bq([1-4])\b`)
	quarterWordRe = regexp.MustCompile(`\b(first|1st|second|2nd|third|3rd|fourth|4th)\s+quarter\b`)
	halfCodeRe    = regexp.MustCompile(`\bh([12])\b`)
	halfWordRe    = regexp.MustCompile(`\b(first|1st|second|2nd)\s+half\b`)
	monthNameRe   = regexp.MustCompile(`\b(?:in|during|from|starting|between)\s+` + monthAlt + `\b(?:\s*(?:-|–|to|through|and|until)\s*` + monthAlt + `\b)?`)
)

// expectedRange extracts the calendar window a description promises, if any.
// The first recognised phrase wins: quarters, then halves, then month names
// introduced by a preposition ("in May", "from July through September").
func expectedRange(description string) (monthRange, bool) {
	text := strings.ToLower(norm.NFKC.String(description))

	if m := quarterCodeRe.FindStringSubmatch(text); m != nil {
		q := int(m[1][0] - '0')
		return quarterRange(q, m[0]), true
	}
	if m := quarterWordRe.FindStringSubmatch(text); m != nil {
		return quarterRange(quarterWords[m[1]], m[0]), true
	}
	if m := halfCodeRe.FindStringSubmatch(text); m != nil {
		return halfRange(int(m[1][0]-'0'), m[0]), true
	}
	if m := halfWordRe.FindStringSubmatch(text); m != nil {
		return halfRange(halfWords[m[1]], m[0]), true
	}
	if m := monthNameRe.FindStringSubmatch(text); m != nil {
		from := monthByName(m[1])
		to := from
		if m[2] != "" {
			to = monthByName(m[2])
		}
		return monthRange{from: from, to: to, source: m[0]}, true
	}
	return monthRange{}, false
}

func monthByName(name string) time.Month {
	for mo := time.January; mo <= time.December; mo++ {
		if strings.ToLower(mo.String()) == name {
			return mo
		}
	}
	return 0
}

func quarterRange(q int, source string) monthRange {
	from := time.Month((q-1)*3 + 1)
	return monthRange{from: from, to: from + 2, source: source}
}

func halfRange(h int, source string) monthRange {
	from := time.Month((h-1)*6 + 1)
	return monthRange{from: from, to: from + 5, source: source}
}

// Validate sanity-checks w against meta. Calendar-fixed metadata must line up
// with the window's boundaries, and a description that names a quarter, half
// or month must agree with the window's start month, or with one of the
// month's repeats for benefits that reset more than once a year.
func Validate(meta Metadata, w Window) ValidationResult {
	if !w.End.After(w.Start) {
		return invalid(&MismatchError{Reason: "cycle end not after start", Actual: w,
			ExpectedStart: w.Start.Month(), ExpectedEnd: w.Start.Month()})
	}
	if meta.Frequency == FrequencyOneTime {
		return ValidationResult{IsValid: true}
	}

	if fixed, ok := meta.Alignment.(CalendarFixed); ok {
		if res := validateFixed(meta.Frequency, fixed, w); !res.IsValid {
			return res
		}
	}

	if r, ok := expectedRange(meta.Description); ok {
		period, _ := meta.Frequency.PeriodMonths()
		if !r.containsEvery(w.Start.UTC().Month(), period) {
			return invalid(&MismatchError{
				Reason:        fmt.Sprintf("description mentions %q", r.source),
				ExpectedStart: r.from,
				ExpectedEnd:   r.to,
				Actual:        w,
			})
		}
	}
	return ValidationResult{IsValid: true}
}

func validateFixed(freq Frequency, fixed CalendarFixed, w Window) ValidationResult {
	period, err := freq.PeriodMonths()
	if err != nil || period == 0 {
		return invalid(&MismatchError{Reason: fmt.Sprintf("calendar-fixed alignment on %s benefit", freq), Actual: w,
			ExpectedStart: fixed.StartMonth, ExpectedEnd: fixed.StartMonth})
	}
	expectEnd := fixed.StartMonth + time.Month(fixed.DurationMonths-1)
	if expectEnd > time.December {
		expectEnd -= 12
	}
	start := w.Start.UTC()
	offset := ((int(start.Month())-int(fixed.StartMonth))%period + period) % period
	if start.Day() != 1 || !IsNormalized(start) || offset != 0 {
		return invalid(&MismatchError{
			Reason:        fmt.Sprintf("start is not a fixed boundary of month %d every %d months", int(fixed.StartMonth), period),
			ExpectedStart: fixed.StartMonth,
			ExpectedEnd:   expectEnd,
			Actual:        w,
		})
	}
	if !w.End.Equal(fixedEnd(start, fixed.DurationMonths)) {
		return invalid(&MismatchError{
			Reason:        fmt.Sprintf("end does not close a %d-month window", fixed.DurationMonths),
			ExpectedStart: fixed.StartMonth,
			ExpectedEnd:   expectEnd,
			Actual:        w,
		})
	}
	return ValidationResult{IsValid: true}
}

func invalid(err *MismatchError) ValidationResult {
	return ValidationResult{IsValid: false, Err: err}
}
