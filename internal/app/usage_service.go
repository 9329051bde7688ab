// internal/app/usage_service.go
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"benefit_cycle_engine/internal/domain/benefit"
	"benefit_cycle_engine/internal/domain/cycle"
	"benefit_cycle_engine/internal/domain/usage"
)

// UsageService records user completion actions against status rows. It is
// the only writer of completion state and used amount.
type UsageService struct {
	benefits benefit.Repository
	statuses cycle.Repository
	log      *logrus.Entry
}

func NewUsageService(br benefit.Repository, sr cycle.Repository, log *logrus.Entry) *UsageService {
	return &UsageService{benefits: br, statuses: sr, log: log}
}

// MarkComplete completes the status in full. A capped benefit is marked as
// having used its whole value; an uncapped one keeps its used amount.
func (s *UsageService) MarkComplete(ctx context.Context, statusID int64, now time.Time) (*cycle.Status, error) {
	st, limit, err := s.load(ctx, statusID)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		st.UsedAmount = limit
	}
	st.IsCompleted = true
	completedAt := now.UTC()
	st.CompletedAt = &completedAt

	if err := s.statuses.UpdateUsage(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to mark status %d complete: %w", statusID, err)
	}
	s.log.WithFields(logrus.Fields{"status_id": statusID, "benefit_id": st.BenefitID, "user_id": st.UserID}).
		Info("Benefit cycle marked complete")
	return st, nil
}

// RecordPartial adds amount to the used amount. Amounts that would exceed the
// cap are rejected with a *usage.AmountError; overshoots within
// usage.Tolerance are clamped.
func (s *UsageService) RecordPartial(ctx context.Context, statusID int64, amount float64, now time.Time) (*cycle.Status, error) {
	st, limit, err := s.load(ctx, statusID)
	if err != nil {
		return nil, err
	}
	accepted, err := usage.ValidatePartialAmount(amount, st.UsedAmount, limit)
	if err != nil {
		return nil, err
	}

	st.UsedAmount += accepted
	if usage.CompletionState(st.UsedAmount, limit) == usage.StateComplete {
		if !st.IsCompleted {
			completedAt := now.UTC()
			st.CompletedAt = &completedAt
		}
		st.IsCompleted = true
	} else {
		st.IsCompleted = false
		st.CompletedAt = nil
	}

	if err := s.statuses.UpdateUsage(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to record partial usage on status %d: %w", statusID, err)
	}
	s.log.WithFields(logrus.Fields{
		"status_id": statusID,
		"amount":    accepted,
		"used":      st.UsedAmount,
		"completed": st.IsCompleted,
	}).Info("Partial benefit usage recorded")
	return st, nil
}

// SetNotUsable toggles the "not usable" flag without touching progress.
func (s *UsageService) SetNotUsable(ctx context.Context, statusID int64, notUsable bool) (*cycle.Status, error) {
	st, err := s.statuses.GetStatusByID(ctx, statusID)
	if err != nil {
		return nil, fmt.Errorf("failed to load status %d: %w", statusID, err)
	}
	st.NotUsable = notUsable
	if err := s.statuses.UpdateUsage(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to update not-usable flag on status %d: %w", statusID, err)
	}
	return st, nil
}

// Summary derives the display figures of st against the benefit cap.
func (s *UsageService) Summary(st *cycle.Status, limit float64) usage.Summary {
	return usage.SummarizeStatus(st.UsedAmount, limit, st.IsCompleted)
}

func (s *UsageService) load(ctx context.Context, statusID int64) (*cycle.Status, float64, error) {
	st, err := s.statuses.GetStatusByID(ctx, statusID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load status %d: %w", statusID, err)
	}
	t, err := s.benefits.GetByID(ctx, st.BenefitID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load benefit %d for status %d: %w", st.BenefitID, statusID, err)
	}
	return st, t.CappedValue, nil
}
