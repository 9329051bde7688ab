// internal/domain/cycle/status.go
package cycle

import (
	"fmt"
	"time"
)

// Status tracks one occurrence of a benefit for one user within one cycle.
// Corresponds to the 'benefit_cycle_statuses' table.
type Status struct {
	ID              int64
	BenefitID       int64
	UserID          int64
	UserCardID      int64
	CycleStart      time.Time // normalized, part of the unique key
	CycleEnd        time.Time
	OccurrenceIndex int
	IsCompleted     bool
	UsedAmount      float64
	CompletedAt     *time.Time
	NotUsable       bool
	OrderIndex      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Key is the uniqueness key of a Status.
type Key struct {
	BenefitID       int64
	UserID          int64
	CycleStart      time.Time
	OccurrenceIndex int
}

func (k Key) String() string {
	return fmt.Sprintf("benefit=%d user=%d start=%s occurrence=%d",
		k.BenefitID, k.UserID, k.CycleStart.UTC().Format(time.RFC3339Nano), k.OccurrenceIndex)
}

func (s *Status) Key() Key {
	return Key{BenefitID: s.BenefitID, UserID: s.UserID, CycleStart: s.CycleStart, OccurrenceIndex: s.OccurrenceIndex}
}

// NewStatus builds the first-creation state of a status row: not completed,
// nothing used, display order 0.
func NewStatus(benefitID, userID, userCardID int64, w Window, occurrence int) *Status {
	return &Status{
		BenefitID:       benefitID,
		UserID:          userID,
		UserCardID:      userCardID,
		CycleStart:      Normalize(w.Start),
		CycleEnd:        w.End.UTC(),
		OccurrenceIndex: occurrence,
	}
}
