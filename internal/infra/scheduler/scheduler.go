package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"benefit_cycle_engine/internal/app"
)

const defaultReconcileTimeout = 30 * time.Minute

// Reconciler is the part of app.Reconciler the scheduler drives.
type Reconciler interface {
	ReconcileAll(ctx context.Context, now time.Time) (*app.ReconcileResult, error)
}

// ReconcileScheduler is the periodic trigger for benefit cycle reconciliation.
// Overlapping runs are skipped rather than queued.
type ReconcileScheduler struct {
	cronEngine *cron.Cron
	reconciler Reconciler
	logger     *logrus.Entry
	cronSpec   string
	timeout    time.Duration
	now        func() time.Time
}

func NewReconcileScheduler(
	reconciler Reconciler,
	logger *logrus.Entry,
	cronSpec string, // e.g., "15 0 * * *" (00:15 UTC daily)
) *ReconcileScheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &ReconcileScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC), // Cycles roll over at midnight UTC
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		reconciler: reconciler,
		logger:     logger,
		cronSpec:   cronSpec,
		timeout:    defaultReconcileTimeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *ReconcileScheduler) Start() error {
	s.logger.Info("Starting reconcile scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Info("Cron job triggered for benefit cycle reconciliation.")
		s.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("could not add reconcile cron job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	s.logger.WithField("spec", s.cronSpec).Info("Reconcile scheduler started.")
	return nil
}

// RunOnce performs one reconciliation pass with the scheduler's timeout.
func (s *ReconcileScheduler) RunOnce(parent context.Context) *app.ReconcileResult {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	res, err := s.reconciler.ReconcileAll(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("Error during benefit cycle reconciliation")
		return res
	}
	if len(res.Failures) > 0 {
		s.logger.WithFields(logrus.Fields{"run_id": res.RunID, "failures": len(res.Failures)}).
			Warn("Reconciliation finished with skipped benefits")
	}
	return res
}

func (s *ReconcileScheduler) Stop() {
	s.logger.Info("Stopping reconcile scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Reconcile scheduler gracefully stopped.")
}
