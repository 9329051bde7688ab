package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"benefit_cycle_engine/internal/infra/config"
	"benefit_cycle_engine/internal/infra/database"
	"benefit_cycle_engine/internal/infra/logger"
)

// engine bundles what the database-backed commands share.
type engine struct {
	cfg      *config.AppConfig
	db       *sql.DB
	log      *logrus.Logger
	benefits *database.BenefitRepository
	statuses *database.CycleStatusRepository
}

func openEngine(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*engine, error) {
	cfg, err := config.LoadWithOverrides(config.DatabaseOverrides{
		Driver: opts.DatabaseDriver,
		URL:    opts.DatabaseURL,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "could not load configuration", err)
	}

	l := logrus.New()
	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	// Logs go to stderr so they never corrupt JSON output.
	logger.Configure(l, cmd.ErrOrStderr(), level, cfg.Environment)

	db, dialect, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "could not connect to database", err)
	}
	return &engine{
		cfg:      cfg,
		db:       db,
		log:      l,
		benefits: database.NewBenefitRepository(db, dialect),
		statuses: database.NewCycleStatusRepository(db, dialect),
	}, nil
}

func (e *engine) Close() {
	e.db.Close()
}

// parseInstant accepts RFC 3339 timestamps or plain dates (midnight UTC).
// An empty value means now.
func parseInstant(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid instant %q: use YYYY-MM-DD or RFC 3339", raw)
	}
	return t, nil
}
