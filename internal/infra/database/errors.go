package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Custom errors specific to the repositories
var (
	ErrBenefitNotFound    = fmt.Errorf("benefit not found")
	ErrEnrollmentNotFound = fmt.Errorf("active card enrollment not found")
	ErrStatusNotFound     = fmt.Errorf("benefit cycle status not found")
	ErrDuplicateStatus    = fmt.Errorf("duplicate benefit cycle status (benefit_id, user_id, cycle_start, occurrence_index)")
	ErrUnnormalizedStart  = fmt.Errorf("cycle start must be midnight UTC before it is used as a key")
)

const pgUniqueViolation = "23505"

// isUniqueViolation recognises unique-constraint failures from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
