package app

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"benefit_cycle_engine/internal/domain/benefit"
	"benefit_cycle_engine/internal/domain/cycle"
	"benefit_cycle_engine/internal/infra/database"
	"benefit_cycle_engine/internal/infra/database/dbtest"
)

// 2025-08-10 12:00 UTC, inside Q3.
var refNow = time.Date(2025, time.August, 10, 12, 0, 0, 0, time.UTC)

type env struct {
	db       *sql.DB
	benefits *database.BenefitRepository
	statuses *database.CycleStatusRepository
	log      *logrus.Entry
	hook     *test.Hook
	cardID   int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := dbtest.Open(t)
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return &env{
		db:       db,
		benefits: database.NewBenefitRepository(db, database.DialectSQLite),
		statuses: database.NewCycleStatusRepository(db, database.DialectSQLite),
		log:      l.WithField("component", "test"),
		hook:     hook,
		cardID:   dbtest.SeedCard(t, db, "Travel Plus"),
	}
}

func (e *env) addBenefit(t *testing.T, tmpl *benefit.Template) *benefit.Template {
	t.Helper()
	tmpl.CardID = e.cardID
	tmpl.IsActive = true
	if tmpl.OccurrencesPerCycle == 0 {
		tmpl.OccurrencesPerCycle = 1
	}
	require.NoError(t, e.benefits.CreateTemplates(context.Background(), []*benefit.Template{tmpl}))
	return tmpl
}

func (e *env) addUser(t *testing.T, userID int64, openedAt *time.Time) int64 {
	t.Helper()
	return dbtest.SeedUserCard(t, e.db, userID, e.cardID, openedAt, true)
}

func (e *env) statusesFor(t *testing.T, userID int64) []*cycle.Status {
	t.Helper()
	list, err := e.statuses.ListStatusesForUser(context.Background(), userID, refNow)
	require.NoError(t, err)
	return list
}

func (e *env) warnings() []string {
	var out []string
	for _, entry := range e.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			out = append(out, entry.Message)
		}
	}
	return out
}

func quarterlyFixed() *benefit.Template {
	return &benefit.Template{
		Name:        "Dining credit",
		Description: "Quarterly dining statement credit",
		Frequency:   cycle.FrequencyQuarterly,
		Alignment:   cycle.CalendarFixed{StartMonth: time.January, DurationMonths: 3},
		CappedValue: 50,
	}
}

func yearlyAnniversary() *benefit.Template {
	return &benefit.Template{
		Name:                "Lounge visits",
		Description:         "Two lounge visits per card year",
		Frequency:           cycle.FrequencyYearly,
		Alignment:           cycle.Anniversary{},
		OccurrencesPerCycle: 2,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }
