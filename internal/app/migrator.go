// internal/app/migrator.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"benefit_cycle_engine/internal/domain/benefit"
	"benefit_cycle_engine/internal/domain/cycle"
	"benefit_cycle_engine/internal/infra/catalog"
)

// MigrationResult reports what a benefit migration inserted.
type MigrationResult struct {
	Name      string
	Templates []*benefit.Template
}

// Migrator applies benefit migrations. Calendar-fixed benefits are validated
// in blocking mode: one mismatch aborts the whole migration before anything
// is written.
type Migrator struct {
	benefits benefit.Repository
	log      *logrus.Entry
}

func NewMigrator(br benefit.Repository, log *logrus.Entry) *Migrator {
	return &Migrator{benefits: br, log: log}
}

func (m *Migrator) Apply(ctx context.Context, migration *catalog.Migration, now time.Time) (*MigrationResult, error) {
	log := m.log.WithField("migration", migration.Name)

	templates, err := migration.Templates()
	if err != nil {
		return nil, fmt.Errorf("migration %q: %w", migration.Name, err)
	}

	var mismatches []error
	for _, t := range templates {
		if _, ok := t.Alignment.(cycle.CalendarFixed); !ok {
			continue
		}
		t.CreatedAt = now.UTC()
		w, err := cycle.Calculate(cycle.Input{
			Frequency: t.Frequency,
			Alignment: t.Alignment,
			Reference: now,
			CreatedAt: t.CreatedAt,
		})
		if err != nil {
			mismatches = append(mismatches, fmt.Errorf("benefit %q: %w", t.Name, err))
			continue
		}
		if v := cycle.Validate(t.Metadata(), w); !v.IsValid {
			log.WithError(v.Err).WithFields(logrus.Fields{
				"benefit":   t.Name,
				"card_id":   t.CardID,
				"frequency": t.Frequency,
				"window":    w.String(),
			}).Error("Calendar-fixed benefit failed cycle validation")
			mismatches = append(mismatches, fmt.Errorf("benefit %q: %w", t.Name, v.Err))
		}
	}
	if len(mismatches) > 0 {
		return nil, fmt.Errorf("migration %q aborted, nothing was written: %w", migration.Name, errors.Join(mismatches...))
	}

	if err := m.benefits.CreateTemplates(ctx, templates); err != nil {
		return nil, fmt.Errorf("migration %q: failed to insert benefits: %w", migration.Name, err)
	}
	log.Infof("Migration applied, %d benefits inserted", len(templates))
	return &MigrationResult{Name: migration.Name, Templates: templates}, nil
}
