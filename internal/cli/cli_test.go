package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefit_cycle_engine/internal/domain/benefit"
	"benefit_cycle_engine/internal/domain/cycle"
	"benefit_cycle_engine/internal/infra/database"
	"benefit_cycle_engine/internal/infra/database/dbtest"
)

func TestWindowCalendarFixed(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewWindowCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--frequency", "QUARTERLY", "--alignment", "CALENDAR_FIXED",
		"--start-month", "1", "--duration", "3", "--at", "2025-08-10T12:00:00Z"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "start: 2025-07-01T00:00:00Z\nend:   2025-09-30T23:59:59.999Z\n", buf.String())
}

func TestWindowJSONWithMismatch(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewWindowCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--frequency", "YEARLY", "--anchor", "2024-03-15",
		"--at", "2025-08-10", "--description", "Valid in the third quarter"})

	require.NoError(t, cmd.Execute())
	var resp struct {
		Status string       `json:"status"`
		Data   WindowResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Start.Equal(time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)))
	assert.False(t, resp.Data.Valid)
	assert.NotEmpty(t, resp.Data.Mismatch)
}

func TestWindowMissingAnchor(t *testing.T) {
	cmd := NewWindowCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--frequency", "MONTHLY"})

	err := cmd.Execute()
	require.ErrorIs(t, err, cycle.ErrMissingAnchor)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestWindowRejectsBadFrequency(t *testing.T) {
	cmd := NewWindowCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--frequency", "WEEKLY"})

	err := cmd.Execute()
	require.ErrorIs(t, err, cycle.ErrUnsupportedFrequency)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRepairExecuteNeedsConfirmation(t *testing.T) {
	cmd := NewRepairCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--execute"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "yaml", "window", "--frequency", "MONTHLY"})
	assert.Error(t, cmd.Execute())
}

// seedDatabase prepares a SQLite file with one user holding one card that
// carries a quarterly calendar-fixed benefit.
func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.db")
	db := dbtest.OpenFile(t, path)
	cardID := dbtest.SeedCard(t, db, "Travel Plus")
	opened := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	dbtest.SeedUserCard(t, db, 7, cardID, &opened, true)
	repo := database.NewBenefitRepository(db, database.DialectSQLite)
	require.NoError(t, repo.CreateTemplates(context.Background(), []*benefit.Template{{
		CardID: cardID, Name: "Dining credit", Frequency: cycle.FrequencyQuarterly,
		Alignment: cycle.CalendarFixed{StartMonth: time.January, DurationMonths: 3}, CappedValue: 50,
		OccurrencesPerCycle: 1, IsActive: true,
	}}))
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", path)
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func TestReconcileAndRepairAgainstSQLite(t *testing.T) {
	seedDatabase(t)

	buf := &bytes.Buffer{}
	cmd := NewReconcileCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--at", "2025-08-10T12:00:00Z"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string           `json:"status"`
		Data   ReconcileSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Users)
	assert.Equal(t, 1, resp.Data.Created)
	assert.NotEmpty(t, resp.Data.RunID)

	buf.Reset()
	repair := NewRepairCommand(&RootOptions{Format: "text"})
	repair.SetOut(buf)
	repair.SetErr(&bytes.Buffer{})
	repair.SetArgs([]string{})
	require.NoError(t, repair.Execute())
	assert.Contains(t, buf.String(), "Duplicate cycle repair (dry run)")
	assert.Contains(t, buf.String(), "groups found:      0")
}

func TestDatabaseFlagsLeaveEnvironmentAlone(t *testing.T) {
	path := seedDatabase(t)
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("DATABASE_URL", "")

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "json", "--db-driver", "sqlite3", "--db-url", path,
		"reconcile", "--at", "2025-08-10T12:00:00Z"})
	require.NoError(t, cmd.Execute())
	var resp struct {
		Status string           `json:"status"`
		Data   ReconcileSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Created)

	assert.Empty(t, os.Getenv("DATABASE_DRIVER"))
	assert.Empty(t, os.Getenv("DATABASE_URL"))
}

func TestMigrateCommand(t *testing.T) {
	seedDatabase(t)
	file := filepath.Join(t.TempDir(), "migration.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`name: summer-credits
benefits:
  - card_id: 1
    name: Summer travel credit
    description: Travel credit from July through September
    frequency: YEARLY
    alignment: CALENDAR_FIXED
    start_month: 7
    duration_months: 3
`), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewMigrateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{file, "--at", "2025-08-10"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "migration summer-credits applied: 1 benefits inserted\n", buf.String())
}
