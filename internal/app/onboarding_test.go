package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefit_cycle_engine/internal/domain/benefit"
	"benefit_cycle_engine/internal/domain/cycle"
	"benefit_cycle_engine/internal/infra/config"
	"benefit_cycle_engine/internal/infra/database"
	"benefit_cycle_engine/internal/infra/database/dbtest"
)

func TestOnboarding_SeedsEveryOccurrence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	lounge := e.addBenefit(t, yearlyAnniversary())
	uc := e.addUser(t, 1, ptr(date(2025, time.August, 1)))
	o := NewOnboarding(e.benefits, e.statuses, e.log, config.MissingAnchorFallback, cycle.ValidationAdvisory)

	rows, err := o.SeedEnrollment(ctx, uc, lounge.ID, refNow)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for i, st := range rows {
		assert.Equal(t, i, st.OccurrenceIndex)
		assert.True(t, st.CycleStart.Equal(date(2025, time.August, 1)))
		assert.True(t, st.CycleEnd.Equal(cycle.EndOfDay(date(2026, time.July, 31))))
	}

	again, err := o.SeedEnrollment(ctx, uc, lounge.ID, refNow)
	require.NoError(t, err)
	assert.Equal(t, rows[0].ID, again[0].ID)
	assert.Equal(t, 2, dbtest.CountStatuses(t, e.db))
}

func TestOnboarding_OneTimeBenefitIsOpenEnded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	bonus := e.addBenefit(t, &benefit.Template{Name: "Welcome bonus", Frequency: cycle.FrequencyOneTime, Alignment: cycle.Anniversary{}})
	uc := e.addUser(t, 1, nil)
	o := NewOnboarding(e.benefits, e.statuses, e.log, config.MissingAnchorDefer, cycle.ValidationAdvisory)

	rows, err := o.SeedEnrollment(ctx, uc, bonus.ID, refNow)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].CycleStart.Equal(cycle.Normalize(bonus.CreatedAt)))
	assert.True(t, rows[0].CycleEnd.Equal(cycle.OpenEnded))
}

func TestOnboarding_DeferredAnchorFails(t *testing.T) {
	e := newEnv(t)
	lounge := e.addBenefit(t, yearlyAnniversary())
	uc := e.addUser(t, 1, nil)
	o := NewOnboarding(e.benefits, e.statuses, e.log, config.MissingAnchorDefer, cycle.ValidationAdvisory)

	_, err := o.SeedEnrollment(context.Background(), uc, lounge.ID, refNow)
	assert.ErrorIs(t, err, cycle.ErrMissingAnchor)
}

func TestOnboarding_UnknownEnrollment(t *testing.T) {
	e := newEnv(t)
	o := NewOnboarding(e.benefits, e.statuses, e.log, "", "")

	_, err := o.SeedEnrollment(context.Background(), 7, 7, refNow)
	assert.ErrorIs(t, err, database.ErrEnrollmentNotFound)
}
