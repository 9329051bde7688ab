// internal/infra/database/cycle_status_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq" // For pq.Array in batch deletes

	"benefit_cycle_engine/internal/domain/cycle"
)

const statusColumns = `id, benefit_id, user_id, user_card_id, cycle_start, cycle_end, occurrence_index,
       is_completed, used_amount, completed_at, not_usable, order_index, created_at, updated_at`

type CycleStatusRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewCycleStatusRepository(db *sql.DB, dialect Dialect) *CycleStatusRepository {
	return &CycleStatusRepository{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the timestamp source for created_at/updated_at.
func (r *CycleStatusRepository) WithClock(now func() time.Time) *CycleStatusRepository {
	r.now = now
	return r
}

// EnsureStatus is the conditional insert the reconciler relies on: insert if
// the key is free, otherwise refresh cycle_end only. Both steps run in one
// transaction and the unique constraint arbitrates concurrent callers.
func (r *CycleStatusRepository) EnsureStatus(ctx context.Context, st *cycle.Status) (bool, error) {
	if !cycle.IsNormalized(st.CycleStart) {
		return false, fmt.Errorf("%w: %s", ErrUnnormalizedStart, st.Key())
	}
	start := st.CycleStart.UTC()
	end := st.CycleEnd.UTC()
	if !end.After(start) {
		return false, fmt.Errorf("%w: end %s not after start for %s", cycle.ErrInvalidWindow, end.Format(time.RFC3339Nano), st.Key())
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction for ensure status: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	now := r.now()
	res, err := txn.ExecContext(ctx, r.dialect.Rebind(`
		INSERT INTO benefit_cycle_statuses
		(benefit_id, user_id, user_card_id, cycle_start, cycle_end, occurrence_index,
		 is_completed, used_amount, not_usable, order_index, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, FALSE, 0, FALSE, 0, ?, ?)
		ON CONFLICT (benefit_id, user_id, cycle_start, occurrence_index) DO NOTHING`),
		st.BenefitID, st.UserID, st.UserCardID, start, end, st.OccurrenceIndex, now, now)
	if err != nil {
		return false, fmt.Errorf("error inserting status %s: %w", st.Key(), err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading insert result for %s: %w", st.Key(), err)
	}

	if inserted == 0 {
		// Existing row: only the window end may move. Progress is never reset.
		_, err = txn.ExecContext(ctx, r.dialect.Rebind(`
			UPDATE benefit_cycle_statuses
			SET cycle_end = ?, updated_at = ?
			WHERE benefit_id = ? AND user_id = ? AND cycle_start = ? AND occurrence_index = ?
			  AND cycle_end <> ?`),
			end, now, st.BenefitID, st.UserID, start, st.OccurrenceIndex, end)
		if err != nil {
			return false, fmt.Errorf("error refreshing cycle end for %s: %w", st.Key(), err)
		}
	}

	row := txn.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+statusColumns+`
		FROM benefit_cycle_statuses
		WHERE benefit_id = ? AND user_id = ? AND cycle_start = ? AND occurrence_index = ?`),
		st.BenefitID, st.UserID, start, st.OccurrenceIndex)
	if err := scanStatus(row, st); err != nil {
		return false, fmt.Errorf("error reading ensured status %s: %w", st.Key(), err)
	}

	if err := txn.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit ensure status %s: %w", st.Key(), err)
	}
	return inserted > 0, nil
}

func (r *CycleStatusRepository) GetStatusByID(ctx context.Context, id int64) (*cycle.Status, error) {
	query := `SELECT ` + statusColumns + ` FROM benefit_cycle_statuses WHERE id = ?`
	st := &cycle.Status{}
	if err := scanStatus(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id), st); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatusNotFound
		}
		return nil, fmt.Errorf("error getting status by ID: %w", err)
	}
	return st, nil
}

func (r *CycleStatusRepository) GetStatus(ctx context.Context, key cycle.Key) (*cycle.Status, error) {
	query := `SELECT ` + statusColumns + ` FROM benefit_cycle_statuses
               WHERE benefit_id = ? AND user_id = ? AND cycle_start = ? AND occurrence_index = ?`
	st := &cycle.Status{}
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), key.BenefitID, key.UserID, key.CycleStart.UTC(), key.OccurrenceIndex)
	if err := scanStatus(row, st); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatusNotFound
		}
		return nil, fmt.Errorf("error getting status %s: %w", key, err)
	}
	return st, nil
}

// ListStatusesForUser returns the rows whose window contains activeAt.
func (r *CycleStatusRepository) ListStatusesForUser(ctx context.Context, userID int64, activeAt time.Time) ([]*cycle.Status, error) {
	query := `SELECT ` + statusColumns + ` FROM benefit_cycle_statuses
               WHERE user_id = ? AND cycle_start <= ? AND cycle_end >= ?
               ORDER BY order_index, benefit_id, occurrence_index`
	at := activeAt.UTC()
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), userID, at, at)
	if err != nil {
		return nil, fmt.Errorf("error querying statuses for user %d: %w", userID, err)
	}
	defer rows.Close()
	return scanStatuses(rows)
}

func (r *CycleStatusRepository) UpdateUsage(ctx context.Context, st *cycle.Status) error {
	query := `UPDATE benefit_cycle_statuses
               SET is_completed = ?, used_amount = ?, completed_at = ?, not_usable = ?, updated_at = ?
               WHERE id = ?`
	var completedAt sql.NullTime
	if st.CompletedAt != nil {
		completedAt = sql.NullTime{Time: st.CompletedAt.UTC(), Valid: true}
	}
	now := r.now()
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), st.IsCompleted, st.UsedAmount, completedAt, st.NotUsable, now, st.ID)
	if err != nil {
		return fmt.Errorf("error updating usage for status %d: %w", st.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading update result for status %d: %w", st.ID, err)
	}
	if n == 0 {
		return ErrStatusNotFound
	}
	st.UpdatedAt = now
	return nil
}

func (r *CycleStatusRepository) ScanStatuses(ctx context.Context, afterID int64, limit int) ([]*cycle.Status, error) {
	query := `SELECT ` + statusColumns + ` FROM benefit_cycle_statuses
               WHERE id > ? ORDER BY id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("error scanning statuses after %d: %w", afterID, err)
	}
	defer rows.Close()
	return scanStatuses(rows)
}

func (r *CycleStatusRepository) ListDayGroup(ctx context.Context, benefitID, userID int64, occurrence int, day time.Time) ([]*cycle.Status, error) {
	query := `SELECT ` + statusColumns + ` FROM benefit_cycle_statuses
               WHERE benefit_id = ? AND user_id = ? AND occurrence_index = ?
                 AND cycle_start >= ? AND cycle_start < ?
               ORDER BY id`
	from := cycle.Normalize(day)
	to := from.AddDate(0, 0, 1)
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), benefitID, userID, occurrence, from, to)
	if err != nil {
		return nil, fmt.Errorf("error listing day group (B:%d, U:%d, O:%d, D:%s): %w",
			benefitID, userID, occurrence, from.Format("2006-01-02"), err)
	}
	defer rows.Close()
	return scanStatuses(rows)
}

// ApplyRepairs runs every fix in one transaction. Losers are deleted before the
// survivor is normalized so the survivor can take over a midnight key.
func (r *CycleStatusRepository) ApplyRepairs(ctx context.Context, fixes []cycle.RepairFix) error {
	if len(fixes) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for repairs: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	now := r.now()
	for _, fix := range fixes {
		if len(fix.DeleteIDs) > 0 {
			if err := r.deleteIDs(ctx, txn, fix.DeleteIDs); err != nil {
				return fmt.Errorf("error deleting duplicates of status %d: %w", fix.SurvivorID, err)
			}
		}
		_, err := txn.ExecContext(ctx, r.dialect.Rebind(`
			UPDATE benefit_cycle_statuses SET cycle_start = ?, updated_at = ?
			WHERE id = ? AND cycle_start <> ?`),
			fix.NormalizedStart.UTC(), now, fix.SurvivorID, fix.NormalizedStart.UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("error normalizing status %d: %w, Detail: %w", fix.SurvivorID, ErrDuplicateStatus, err)
			}
			return fmt.Errorf("error normalizing status %d: %w", fix.SurvivorID, err)
		}
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit repairs: %w", err)
	}
	return nil
}

func (r *CycleStatusRepository) deleteIDs(ctx context.Context, txn *sql.Tx, ids []int64) error {
	if r.dialect == DialectPostgres {
		_, err := txn.ExecContext(ctx, `DELETE FROM benefit_cycle_statuses WHERE id = ANY($1::bigint[])`, pq.Array(ids))
		return err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := txn.ExecContext(ctx, `DELETE FROM benefit_cycle_statuses WHERE id IN (`+placeholders+`)`, args...)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(row rowScanner, st *cycle.Status) error {
	var completedAt sql.NullTime
	if err := row.Scan(
		&st.ID, &st.BenefitID, &st.UserID, &st.UserCardID, &st.CycleStart, &st.CycleEnd, &st.OccurrenceIndex,
		&st.IsCompleted, &st.UsedAmount, &completedAt, &st.NotUsable, &st.OrderIndex, &st.CreatedAt, &st.UpdatedAt,
	); err != nil {
		return err
	}
	st.CycleStart = st.CycleStart.UTC()
	st.CycleEnd = st.CycleEnd.UTC()
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	st.CompletedAt = nil
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		st.CompletedAt = &t
	}
	return nil
}

// Helper to scan multiple rows
func scanStatuses(rows *sql.Rows) ([]*cycle.Status, error) {
	statuses := make([]*cycle.Status, 0)
	for rows.Next() {
		st := &cycle.Status{}
		if err := scanStatus(rows, st); err != nil {
			return nil, fmt.Errorf("error scanning status row: %w", err)
		}
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status rows: %w", err)
	}
	return statuses, nil
}
