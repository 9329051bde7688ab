// internal/domain/benefit/template.go
package benefit

import (
	"fmt"
	"time"

	"benefit_cycle_engine/internal/domain/cycle"
)

// Template is a recurring (or one-time) perk attached to a card product.
// Corresponds to the 'benefits' table.
type Template struct {
	ID                  int64
	CardID              int64
	Name                string
	Description         string // free text, also read by the cycle validator
	Frequency           cycle.Frequency
	Alignment           cycle.Alignment
	AlignmentErr        error   // why stored alignment columns could not be read; Alignment is nil then
	CappedValue         float64 // <= 0 means uncapped or percentage based
	OccurrencesPerCycle int
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Occurrences returns how many status rows each cycle carries, at least one.
func (t *Template) Occurrences() int {
	if t.OccurrencesPerCycle < 1 {
		return 1
	}
	return t.OccurrencesPerCycle
}

// Metadata returns what the cycle validator needs to know about t.
func (t *Template) Metadata() cycle.Metadata {
	return cycle.Metadata{Frequency: t.Frequency, Alignment: t.Alignment, Description: t.Description}
}

// Validate rejects templates that can never produce a valid cycle.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("benefit name is required")
	}
	if _, err := t.Frequency.PeriodMonths(); err != nil {
		return err
	}
	if t.OccurrencesPerCycle < 1 {
		return fmt.Errorf("benefit %q: occurrences per cycle must be at least 1, got %d", t.Name, t.OccurrencesPerCycle)
	}
	if t.CappedValue < 0 {
		return fmt.Errorf("benefit %q: capped value cannot be negative", t.Name)
	}
	if t.AlignmentErr != nil {
		return fmt.Errorf("benefit %q: %w", t.Name, t.AlignmentErr)
	}
	if t.Alignment == nil {
		return fmt.Errorf("benefit %q: alignment is required", t.Name)
	}
	if fixed, ok := t.Alignment.(cycle.CalendarFixed); ok {
		if err := fixed.Validate(t.Frequency); err != nil {
			return fmt.Errorf("benefit %q: %w", t.Name, err)
		}
	}
	return nil
}

// Enrollment is a template reachable by a user through one of their active
// cards. Anchor is the card's opening date, when known.
type Enrollment struct {
	UserID     int64
	UserCardID int64
	Template   *Template
	Anchor     *time.Time
}

// CycleInput builds the calculator input for the cycle active at reference.
func (e *Enrollment) CycleInput(reference time.Time) cycle.Input {
	return cycle.Input{
		Frequency: e.Template.Frequency,
		Alignment: e.Template.Alignment,
		Reference: reference,
		Anchor:    e.Anchor,
		CreatedAt: e.Template.CreatedAt,
	}
}
