// internal/app/reconciler.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"benefit_cycle_engine/internal/domain/benefit"
	"benefit_cycle_engine/internal/domain/cycle"
	"benefit_cycle_engine/internal/infra/config"
	"benefit_cycle_engine/internal/infra/metrics"
)

const defaultReconcileWorkers = 4

// Failure is one benefit (or whole user, when BenefitID is 0) the reconciler
// had to skip. Window is zero when the failure happened before it was computed.
type Failure struct {
	BenefitID int64
	UserID    int64
	Frequency cycle.Frequency
	Alignment string
	Window    cycle.Window
	Err       error
}

func (f Failure) Error() string {
	return fmt.Sprintf("user %d benefit %d (%s/%s): %v", f.UserID, f.BenefitID, f.Frequency, f.Alignment, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// ReconcileResult summarizes one reconciliation run.
type ReconcileResult struct {
	RunID    string
	Users    int
	Created  int
	Existing int
	Degraded int
	Failures []Failure
}

func (r *ReconcileResult) merge(other *ReconcileResult) {
	r.Users += other.Users
	r.Created += other.Created
	r.Existing += other.Existing
	r.Degraded += other.Degraded
	r.Failures = append(r.Failures, other.Failures...)
}

type ReconcilerOptions struct {
	AnchorPolicy   config.MissingAnchorPolicy
	ValidationMode cycle.ValidationMode
	Workers        int
	Metrics        *metrics.Engine
}

// Reconciler guarantees that every active recurring benefit reachable by a user
// has a status row for each occurrence of the cycle containing the reference
// instant. Existing rows only ever get their cycle end refreshed.
type Reconciler struct {
	benefits benefit.Repository
	statuses cycle.Repository
	log      *logrus.Entry
	opts     ReconcilerOptions
}

func NewReconciler(br benefit.Repository, sr cycle.Repository, log *logrus.Entry, opts ReconcilerOptions) *Reconciler {
	if opts.AnchorPolicy == "" {
		opts.AnchorPolicy = config.MissingAnchorFallback
	}
	if opts.ValidationMode == "" {
		opts.ValidationMode = cycle.ValidationAdvisory
	}
	if opts.Workers < 1 {
		opts.Workers = defaultReconcileWorkers
	}
	return &Reconciler{benefits: br, statuses: sr, log: log, opts: opts}
}

// ReconcileAll reconciles every user that holds an active card. A failing user
// is recorded and the remaining users carry on. The returned error is only set
// when the user list itself could not be loaded or ctx was cancelled.
func (r *Reconciler) ReconcileAll(ctx context.Context, now time.Time) (*ReconcileResult, error) {
	started := time.Now()
	result := &ReconcileResult{RunID: uuid.NewString()}
	log := r.log.WithField("run_id", result.RunID)

	users, err := r.benefits.ListUsersWithActiveCards(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list users with active cards: %w", err)
	}
	log.Infof("Reconciling benefit cycles for %d users at %s", len(users), now.UTC().Format(time.RFC3339))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, userID := range users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.reconcileUser(gctx, log, userID, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WithError(err).WithField("user_id", userID).Error("Failed to reconcile user, continuing with the next one")
				r.opts.Metrics.ObserveReconcileFailure("user")
				result.Failures = append(result.Failures, Failure{UserID: userID, Err: err})
				return nil
			}
			result.merge(res)
			return nil
		})
	}
	err = g.Wait()
	r.opts.Metrics.ObserveRun("reconcile", time.Since(started).Seconds())

	log.WithFields(logrus.Fields{
		"users":    result.Users,
		"created":  result.Created,
		"existing": result.Existing,
		"degraded": result.Degraded,
		"failures": len(result.Failures),
	}).Info("Benefit cycle reconciliation finished")
	if err != nil {
		return result, fmt.Errorf("reconciliation interrupted: %w", err)
	}
	return result, nil
}

// ReconcileUser reconciles a single user's enrollments.
func (r *Reconciler) ReconcileUser(ctx context.Context, userID int64, now time.Time) (*ReconcileResult, error) {
	runID := uuid.NewString()
	res, err := r.reconcileUser(ctx, r.log.WithField("run_id", runID), userID, now)
	if res != nil {
		res.RunID = runID
	}
	return res, err
}

func (r *Reconciler) reconcileUser(ctx context.Context, log *logrus.Entry, userID int64, now time.Time) (*ReconcileResult, error) {
	enrollments, err := r.benefits.ListEnrollments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments for user %d: %w", userID, err)
	}

	result := &ReconcileResult{Users: 1}
	for _, e := range enrollments {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		// One-time benefits are seeded at onboarding and never recomputed.
		if e.Template.Frequency == cycle.FrequencyOneTime {
			continue
		}
		if f := r.reconcileEnrollment(ctx, log, e, now, result); f != nil {
			result.Failures = append(result.Failures, *f)
		}
	}
	return result, nil
}

func (r *Reconciler) reconcileEnrollment(ctx context.Context, log *logrus.Entry, e *benefit.Enrollment, now time.Time, result *ReconcileResult) *Failure {
	t := e.Template
	fail := &Failure{
		BenefitID: t.ID,
		UserID:    e.UserID,
		Frequency: t.Frequency,
		Alignment: alignmentLabel(t.Alignment),
	}
	entry := log.WithFields(logrus.Fields{
		"benefit_id": t.ID,
		"user_id":    e.UserID,
		"frequency":  t.Frequency,
		"alignment":  fail.Alignment,
	})

	w, err := resolveWindow(e, now, r.opts.AnchorPolicy)
	if err != nil {
		fail.Err = err
		entry.WithError(err).Error("Failed to compute benefit cycle, skipping benefit")
		r.opts.Metrics.ObserveReconcileFailure(failureReason(err))
		return fail
	}
	fail.Window = w
	entry = entry.WithField("window", w.String())
	if w.Degraded {
		result.Degraded++
		r.opts.Metrics.ObserveDegradedWindow(string(t.Frequency))
		entry.Warn("Card opening date unknown, cycle computed from January 1st of the reference year")
	}

	if v := cycle.Validate(t.Metadata(), w); !v.IsValid {
		r.opts.Metrics.ObserveValidationMismatch(string(r.opts.ValidationMode))
		if r.opts.ValidationMode == cycle.ValidationBlocking {
			fail.Err = v.Err
			entry.WithError(v.Err).Error("Benefit cycle failed validation, skipping benefit")
			r.opts.Metrics.ObserveReconcileFailure(failureReason(v.Err))
			return fail
		}
		entry.WithError(v.Err).Warn("Benefit cycle does not match its metadata")
	}

	for i := 0; i < t.Occurrences(); i++ {
		st := cycle.NewStatus(t.ID, e.UserID, e.UserCardID, w, i)
		created, err := r.statuses.EnsureStatus(ctx, st)
		if err != nil {
			fail.Err = err
			entry.WithError(err).WithField("occurrence_index", i).Error("Failed to ensure benefit cycle status, skipping benefit")
			r.opts.Metrics.ObserveReconcileFailure(failureReason(err))
			return fail
		}
		r.opts.Metrics.ObserveStatusEnsured(created)
		if created {
			result.Created++
			entry.WithField("occurrence_index", i).Debug("Created benefit cycle status")
		} else {
			result.Existing++
		}
	}
	return nil
}

// resolveWindow applies the missing-anchor policy around cycle.Calculate.
func resolveWindow(e *benefit.Enrollment, now time.Time, policy config.MissingAnchorPolicy) (cycle.Window, error) {
	if err := e.Template.AlignmentErr; err != nil {
		return cycle.Window{}, fmt.Errorf("%w: %w", cycle.ErrInvalidWindow, err)
	}
	in := e.CycleInput(now)
	w, err := cycle.Calculate(in)
	if !errors.Is(err, cycle.ErrMissingAnchor) || policy == config.MissingAnchorDefer {
		return w, err
	}
	anchor := cycle.DefaultAnchor(now)
	in.Anchor = &anchor
	w, err = cycle.Calculate(in)
	if err != nil {
		return w, err
	}
	w.Degraded = true
	return w, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, cycle.ErrMissingAnchor):
		return "missing_anchor"
	case errors.Is(err, cycle.ErrUnsupportedFrequency):
		return "unsupported_frequency"
	case errors.Is(err, cycle.ErrCycleMismatch):
		return "cycle_mismatch"
	case errors.Is(err, cycle.ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "storage"
	}
}

func alignmentLabel(a cycle.Alignment) string {
	if a == nil {
		return "<nil>"
	}
	if s, ok := a.(fmt.Stringer); ok {
		return s.String()
	}
	return string(a.Kind())
}
