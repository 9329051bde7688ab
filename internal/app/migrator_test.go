package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefit_cycle_engine/internal/domain/cycle"
	"benefit_cycle_engine/internal/infra/catalog"
)

func countBenefits(t *testing.T, e *env) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM benefits`).Scan(&n))
	return n
}

func TestMigrator_AppliesValidMigration(t *testing.T) {
	e := newEnv(t)
	m := &catalog.Migration{Name: "q3-credits", Benefits: []catalog.BenefitSpec{
		{CardID: e.cardID, Name: "Summer travel credit", Description: "Travel credit from July through September",
			Frequency: "YEARLY", Alignment: "CALENDAR_FIXED", StartMonth: ptr(7), DurationMonths: ptr(3), CappedValue: 100},
		{CardID: e.cardID, Name: "Lounge visits", Frequency: "YEARLY", Occurrences: 2},
	}}

	res, err := NewMigrator(e.benefits, e.log).Apply(context.Background(), m, refNow)
	require.NoError(t, err)
	require.Len(t, res.Templates, 2)
	for _, tmpl := range res.Templates {
		assert.NotZero(t, tmpl.ID)
	}
	assert.Equal(t, 2, countBenefits(t, e))
}

func TestMigrator_BlocksOnMismatch(t *testing.T) {
	e := newEnv(t)
	m := &catalog.Migration{Name: "mislabeled", Benefits: []catalog.BenefitSpec{
		{CardID: e.cardID, Name: "Lounge visits", Frequency: "YEARLY"},
		{CardID: e.cardID, Name: "Q3 travel credit", Description: "Q3 travel credit",
			Frequency: "YEARLY", Alignment: "CALENDAR_FIXED", StartMonth: ptr(1), DurationMonths: ptr(3)},
	}}

	_, err := NewMigrator(e.benefits, e.log).Apply(context.Background(), m, refNow)
	require.ErrorIs(t, err, cycle.ErrCycleMismatch)
	assert.Contains(t, err.Error(), "nothing was written")
	assert.Zero(t, countBenefits(t, e))
}

func TestMigrator_RejectsInvalidTemplates(t *testing.T) {
	e := newEnv(t)
	m := &catalog.Migration{Name: "bad", Benefits: []catalog.BenefitSpec{
		{CardID: e.cardID, Name: "Weekly", Frequency: "WEEKLY"},
	}}
	_, err := NewMigrator(e.benefits, e.log).Apply(context.Background(), m, time.Now())
	assert.ErrorIs(t, err, cycle.ErrUnsupportedFrequency)
	assert.Zero(t, countBenefits(t, e))
}
