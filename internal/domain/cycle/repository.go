// internal/domain/cycle/repository.go
package cycle

import (
	"context"
	"time"
)

// Repository defines persistence for Status rows.
type Repository interface {
	// EnsureStatus inserts st unless a row with the same Key exists. On conflict
	// only cycle_end is refreshed; completion and used amount stay untouched.
	// st is filled with the stored row. created reports whether it was inserted.
	EnsureStatus(ctx context.Context, st *Status) (created bool, err error)

	GetStatusByID(ctx context.Context, id int64) (*Status, error)
	GetStatus(ctx context.Context, key Key) (*Status, error)
	ListStatusesForUser(ctx context.Context, userID int64, activeAt time.Time) ([]*Status, error)

	// UpdateUsage persists completion, used amount, completed_at and not_usable.
	UpdateUsage(ctx context.Context, st *Status) error

	// ScanStatuses returns up to limit rows with id > afterID ordered by id.
	ScanStatuses(ctx context.Context, afterID int64, limit int) ([]*Status, error)
	// ListDayGroup returns every row for benefit/user/occurrence whose cycle_start
	// falls on the UTC calendar day of day.
	ListDayGroup(ctx context.Context, benefitID, userID int64, occurrence int, day time.Time) ([]*Status, error)
	// ApplyRepairs deletes and normalizes rows in a single transaction.
	ApplyRepairs(ctx context.Context, fixes []RepairFix) error
}

// RepairFix collapses one duplicate group onto its survivor.
type RepairFix struct {
	SurvivorID      int64
	NormalizedStart time.Time
	DeleteIDs       []int64
}
