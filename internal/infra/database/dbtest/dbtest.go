// Package dbtest opens throwaway SQLite databases with the engine schema and
// seeds the card tables the engine reads from.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"benefit_cycle_engine/internal/infra/database"
)

// Open returns a migrated SQLite database living in t.TempDir().
func Open(t testing.TB) *sql.DB {
	t.Helper()
	return OpenFile(t, filepath.Join(t.TempDir(), "engine.db"))
}

// OpenFile returns a migrated SQLite database stored at path.
func OpenFile(t testing.TB, path string) *sql.DB {
	t.Helper()
	db, err := database.NewSQLiteConnection(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.ApplySchema(context.Background(), db, database.DialectSQLite))
	return db
}

// SeedCard inserts a card product and returns its id.
func SeedCard(t testing.TB, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO cards (name, created_at) VALUES (?, ?)`, name, time.Now().UTC())
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// SeedUserCard links userID to cardID. A nil openedAt leaves the anchor unknown.
func SeedUserCard(t testing.TB, db *sql.DB, userID, cardID int64, openedAt *time.Time, active bool) int64 {
	t.Helper()
	var opened sql.NullTime
	if openedAt != nil {
		opened = sql.NullTime{Time: openedAt.UTC(), Valid: true}
	}
	res, err := db.Exec(`INSERT INTO user_cards (user_id, card_id, opened_at, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, cardID, opened, active, time.Now().UTC())
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// RawStatus is a benefit_cycle_statuses row written without any normalization,
// the way legacy writers produced duplicates.
type RawStatus struct {
	BenefitID, UserID, UserCardID int64
	CycleStart, CycleEnd          time.Time
	OccurrenceIndex               int
	IsCompleted                   bool
	UsedAmount                    float64
	UpdatedAt                     time.Time
}

// InsertRawStatus bypasses the repository and returns the new row id.
func InsertRawStatus(t testing.TB, db *sql.DB, s RawStatus) int64 {
	t.Helper()
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	res, err := db.Exec(`INSERT INTO benefit_cycle_statuses
		(benefit_id, user_id, user_card_id, cycle_start, cycle_end, occurrence_index,
		 is_completed, used_amount, not_usable, order_index, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, FALSE, 0, ?, ?)`,
		s.BenefitID, s.UserID, s.UserCardID, s.CycleStart.UTC(), s.CycleEnd.UTC(), s.OccurrenceIndex,
		s.IsCompleted, s.UsedAmount, updated.UTC(), updated.UTC())
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// CountStatuses returns the number of status rows.
func CountStatuses(t testing.TB, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM benefit_cycle_statuses`).Scan(&n))
	return n
}
