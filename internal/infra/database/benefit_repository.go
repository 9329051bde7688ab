package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"benefit_cycle_engine/internal/domain/benefit"
	"benefit_cycle_engine/internal/domain/cycle"
)

const benefitColumns = `b.id, b.card_id, b.name, b.description, b.frequency, b.alignment,
       b.fixed_start_month, b.fixed_duration_months, b.capped_value, b.occurrences_per_cycle,
       b.is_active, b.created_at, b.updated_at`

type BenefitRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewBenefitRepository(db *sql.DB, dialect Dialect) *BenefitRepository {
	return &BenefitRepository{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
}

func (r *BenefitRepository) GetByID(ctx context.Context, id int64) (*benefit.Template, error) {
	query := `SELECT ` + benefitColumns + ` FROM benefits b WHERE b.id = ?`
	t, err := scanTemplate(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBenefitNotFound
		}
		return nil, fmt.Errorf("error getting benefit by ID: %w", err)
	}
	return t, nil
}

func (r *BenefitRepository) ListEnrollments(ctx context.Context, userID int64) ([]*benefit.Enrollment, error) {
	query := `SELECT uc.id, uc.user_id, uc.opened_at, ` + benefitColumns + `
               FROM user_cards uc
               JOIN benefits b ON b.card_id = uc.card_id
               WHERE uc.user_id = ? AND uc.is_active = TRUE AND b.is_active = TRUE
               ORDER BY b.id, uc.id` // Order for consistent processing
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), userID)
	if err != nil {
		return nil, fmt.Errorf("error querying enrollments for user %d: %w", userID, err)
	}
	defer rows.Close()

	enrollments := make([]*benefit.Enrollment, 0)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning enrollment row: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollment rows: %w", err)
	}
	return enrollments, nil
}

func (r *BenefitRepository) GetEnrollment(ctx context.Context, userCardID, benefitID int64) (*benefit.Enrollment, error) {
	query := `SELECT uc.id, uc.user_id, uc.opened_at, ` + benefitColumns + `
               FROM user_cards uc
               JOIN benefits b ON b.card_id = uc.card_id
               WHERE uc.id = ? AND b.id = ? AND uc.is_active = TRUE`
	e, err := scanEnrollment(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), userCardID, benefitID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("error getting enrollment (UC:%d, B:%d): %w", userCardID, benefitID, err)
	}
	return e, nil
}

func (r *BenefitRepository) ListUsersWithActiveCards(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM user_cards WHERE is_active = TRUE ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("error listing users with active cards: %w", err)
	}
	defer rows.Close()

	users := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning user id: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user ids: %w", err)
	}
	return users, nil
}

func (r *BenefitRepository) CreateTemplates(ctx context.Context, templates []*benefit.Template) error {
	if len(templates) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for benefit import: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	query := r.dialect.Rebind(`INSERT INTO benefits
		(card_id, name, description, frequency, alignment, fixed_start_month, fixed_duration_months,
		 capped_value, occurrences_per_cycle, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	now := r.now()
	for _, t := range templates {
		kind, startMonth, duration := cycle.AlignmentColumns(t.Alignment)
		created := t.CreatedAt
		if created.IsZero() {
			created = now
		}
		err := txn.QueryRowContext(ctx, query,
			t.CardID, t.Name, t.Description, string(t.Frequency), kind, nullInt(startMonth), nullInt(duration),
			t.CappedValue, t.OccurrencesPerCycle, t.IsActive, created.UTC(), now,
		).Scan(&t.ID)
		if err != nil {
			return fmt.Errorf("error inserting benefit %q for card %d: %w", t.Name, t.CardID, err)
		}
		t.CreatedAt = created.UTC()
		t.UpdatedAt = now
	}

	return txn.Commit()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func scanEnrollment(row rowScanner) (*benefit.Enrollment, error) {
	e := &benefit.Enrollment{}
	var openedAt sql.NullTime
	t, err := scanTemplate(row, &e.UserCardID, &e.UserID, &openedAt)
	if err != nil {
		return nil, err
	}
	e.Template = t
	if openedAt.Valid {
		anchor := openedAt.Time.UTC()
		e.Anchor = &anchor
	}
	return e, nil
}

// scanTemplate scans benefitColumns after any leading destinations. The
// frequency is kept as stored so an unknown value surfaces from the cycle
// calculator; stored columns that don't form an alignment leave it nil and
// record the reason in AlignmentErr.
func scanTemplate(row rowScanner, leading ...any) (*benefit.Template, error) {
	t := &benefit.Template{}
	var (
		frequency, alignment string
		startMonth, duration sql.NullInt64
	)
	dest := append(leading,
		&t.ID, &t.CardID, &t.Name, &t.Description, &frequency, &alignment,
		&startMonth, &duration, &t.CappedValue, &t.OccurrencesPerCycle,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	t.Frequency = cycle.Frequency(frequency)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	var sm, dm *int
	if startMonth.Valid {
		v := int(startMonth.Int64)
		sm = &v
	}
	if duration.Valid {
		v := int(duration.Int64)
		dm = &v
	}
	a, err := cycle.NewAlignment(alignment, sm, dm)
	if err != nil {
		t.AlignmentErr = fmt.Errorf("stored alignment columns (alignment=%q start_month=%s duration_months=%s): %w",
			alignment, nullIntString(startMonth), nullIntString(duration), err)
		return t, nil
	}
	t.Alignment = a
	return t, nil
}

func nullIntString(v sql.NullInt64) string {
	if !v.Valid {
		return "NULL"
	}
	return strconv.FormatInt(v.Int64, 10)
}
