// internal/app/onboarding.go
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"benefit_cycle_engine/internal/domain/benefit"
	"benefit_cycle_engine/internal/domain/cycle"
	"benefit_cycle_engine/internal/infra/config"
)

// Onboarding seeds the first cycle of each benefit when a card is added.
// Later cycles are the reconciler's job.
type Onboarding struct {
	benefits     benefit.Repository
	statuses     cycle.Repository
	log          *logrus.Entry
	anchorPolicy config.MissingAnchorPolicy
	validation   cycle.ValidationMode
}

func NewOnboarding(br benefit.Repository, sr cycle.Repository, log *logrus.Entry, policy config.MissingAnchorPolicy, mode cycle.ValidationMode) *Onboarding {
	if policy == "" {
		policy = config.MissingAnchorFallback
	}
	if mode == "" {
		mode = cycle.ValidationAdvisory
	}
	return &Onboarding{benefits: br, statuses: sr, log: log, anchorPolicy: policy, validation: mode}
}

// SeedEnrollment loads the enrollment for userCardID/benefitID and seeds it.
func (o *Onboarding) SeedEnrollment(ctx context.Context, userCardID, benefitID int64, now time.Time) ([]*cycle.Status, error) {
	e, err := o.benefits.GetEnrollment(ctx, userCardID, benefitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment (UC:%d, B:%d): %w", userCardID, benefitID, err)
	}
	return o.SeedFirstCycle(ctx, e, now)
}

// SeedFirstCycle computes the window containing now, including the open-ended
// window of a one-time benefit, and ensures a row for every occurrence. It
// returns all occurrence rows, whether they were created now or already existed.
func (o *Onboarding) SeedFirstCycle(ctx context.Context, e *benefit.Enrollment, now time.Time) ([]*cycle.Status, error) {
	t := e.Template
	log := o.log.WithFields(logrus.Fields{
		"benefit_id": t.ID,
		"user_id":    e.UserID,
		"frequency":  t.Frequency,
		"alignment":  alignmentLabel(t.Alignment),
	})

	w, err := resolveWindow(e, now, o.anchorPolicy)
	if err != nil {
		log.WithError(err).Error("Failed to compute first benefit cycle")
		return nil, fmt.Errorf("failed to compute first cycle for benefit %d: %w", t.ID, err)
	}
	log = log.WithField("window", w.String())
	if w.Degraded {
		log.Warn("Card opening date unknown, first cycle computed from January 1st of the reference year")
	}

	if v := cycle.Validate(t.Metadata(), w); !v.IsValid {
		if o.validation == cycle.ValidationBlocking {
			return nil, fmt.Errorf("first cycle for benefit %d rejected: %w", t.ID, v.Err)
		}
		log.WithError(v.Err).Warn("First benefit cycle does not match its metadata")
	}

	statuses := make([]*cycle.Status, 0, t.Occurrences())
	for i := 0; i < t.Occurrences(); i++ {
		st := cycle.NewStatus(t.ID, e.UserID, e.UserCardID, w, i)
		created, err := o.statuses.EnsureStatus(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("failed to seed occurrence %d of benefit %d: %w", i, t.ID, err)
		}
		if created {
			log.WithField("occurrence_index", i).Info("Seeded first benefit cycle status")
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
