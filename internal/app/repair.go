// internal/app/repair.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"benefit_cycle_engine/internal/domain/cycle"
	"benefit_cycle_engine/internal/infra/metrics"
)

const (
	defaultRepairBatchSize   = 100
	defaultRepairSampleLimit = 10
)

// ErrConfirmationRequired is returned when a destructive run was requested
// without explicit confirmation.
var ErrConfirmationRequired = errors.New("repair execution requires explicit confirmation")

type RepairOptions struct {
	Execute     bool // false means dry run
	Confirmed   bool
	BatchSize   int
	SampleLimit int
}

// RepairSample describes one group the repair would collapse.
type RepairSample struct {
	BenefitID       int64
	UserID          int64
	OccurrenceIndex int
	Day             time.Time
	SurvivorID      int64
	SurvivorStart   time.Time
	NormalizedStart time.Time
	DeleteIDs       []int64
}

type RepairReport struct {
	RunID           string
	DryRun          bool
	Batches         int
	Scanned         int
	Groups          int
	RowsToDelete    int
	RowsToNormalize int
	Samples         []RepairSample
}

// Render writes a human readable report. The run id is left out so reports of
// identical data compare equal.
func (r *RepairReport) Render(w io.Writer) error {
	mode := "execute"
	if r.DryRun {
		mode = "dry run"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Duplicate cycle repair (%s)\n", mode)
	fmt.Fprintf(&b, "  rows scanned:      %d\n", r.Scanned)
	fmt.Fprintf(&b, "  groups found:      %d\n", r.Groups)
	fmt.Fprintf(&b, "  rows to delete:    %d\n", r.RowsToDelete)
	fmt.Fprintf(&b, "  rows to normalize: %d\n", r.RowsToNormalize)
	if len(r.Samples) > 0 {
		b.WriteString("Samples:\n")
	}
	for _, s := range r.Samples {
		fmt.Fprintf(&b, "  benefit=%d user=%d day=%s occurrence=%d: keep #%d",
			s.BenefitID, s.UserID, s.Day.Format("2006-01-02"), s.OccurrenceIndex, s.SurvivorID)
		if !s.SurvivorStart.Equal(s.NormalizedStart) {
			fmt.Fprintf(&b, " (%s -> %s)", s.SurvivorStart.Format(time.RFC3339Nano), s.NormalizedStart.Format(time.RFC3339))
		}
		if len(s.DeleteIDs) > 0 {
			ids := make([]string, len(s.DeleteIDs))
			for i, id := range s.DeleteIDs {
				ids[i] = fmt.Sprintf("#%d", id)
			}
			fmt.Fprintf(&b, ", delete %s", strings.Join(ids, " "))
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (r *RepairReport) String() string {
	var b strings.Builder
	_ = r.Render(&b)
	return b.String()
}

// Repairer collapses status rows that only differ by the time of day of their
// cycle start onto one survivor with a midnight start.
type Repairer struct {
	statuses cycle.Repository
	log      *logrus.Entry
	metrics  *metrics.Engine
	limiter  *rate.Limiter
}

// NewRepairer paces batches at batchesPerSecond; zero or less disables pacing.
func NewRepairer(sr cycle.Repository, log *logrus.Entry, m *metrics.Engine, batchesPerSecond float64) *Repairer {
	r := &Repairer{statuses: sr, log: log, metrics: m}
	if batchesPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(batchesPerSecond), 1)
	}
	return r
}

type groupKey struct {
	benefitID  int64
	userID     int64
	occurrence int
	day        string
}

func keyOf(st *cycle.Status) groupKey {
	return groupKey{
		benefitID:  st.BenefitID,
		userID:     st.UserID,
		occurrence: st.OccurrenceIndex,
		day:        st.CycleStart.UTC().Format("2006-01-02"),
	}
}

// Run scans every status row in id order. In execute mode each batch's fixes
// commit in one transaction before the next batch is read, so a cancelled run
// leaves only whole batches applied.
func (r *Repairer) Run(ctx context.Context, opts RepairOptions) (*RepairReport, error) {
	if opts.Execute && !opts.Confirmed {
		return nil, ErrConfirmationRequired
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultRepairBatchSize
	}
	if opts.SampleLimit < 0 {
		opts.SampleLimit = 0
	} else if opts.SampleLimit == 0 {
		opts.SampleLimit = defaultRepairSampleLimit
	}

	started := time.Now()
	report := &RepairReport{RunID: uuid.NewString(), DryRun: !opts.Execute}
	log := r.log.WithFields(logrus.Fields{"run_id": report.RunID, "dry_run": report.DryRun})
	log.Infof("Starting duplicate cycle repair with batch size %d", opts.BatchSize)

	seen := make(map[groupKey]bool)
	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("repair cancelled after %d batches: %w", report.Batches, err)
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return report, fmt.Errorf("repair cancelled after %d batches: %w", report.Batches, err)
			}
		}

		batch, err := r.statuses.ScanStatuses(ctx, afterID, opts.BatchSize)
		if err != nil {
			return report, fmt.Errorf("failed to scan statuses after id %d: %w", afterID, err)
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].ID
		report.Batches++
		report.Scanned += len(batch)

		fixes, normalized, err := r.planBatch(ctx, batch, seen, report, opts.SampleLimit)
		if err != nil {
			return report, err
		}
		if len(fixes) == 0 || !opts.Execute {
			continue
		}

		if err := r.statuses.ApplyRepairs(ctx, fixes); err != nil {
			return report, fmt.Errorf("failed to apply repair batch %d: %w", report.Batches, err)
		}
		deleted := countDeletes(fixes)
		r.metrics.ObserveRepair(deleted, normalized)
		log.WithFields(logrus.Fields{
			"batch":      report.Batches,
			"deleted":    deleted,
			"normalized": normalized,
		}).Info("Repair batch committed")
	}

	r.metrics.ObserveRun("repair", time.Since(started).Seconds())
	log.WithFields(logrus.Fields{
		"scanned":      report.Scanned,
		"groups":       report.Groups,
		"to_delete":    report.RowsToDelete,
		"to_normalize": report.RowsToNormalize,
	}).Info("Duplicate cycle repair finished")
	return report, nil
}

func (r *Repairer) planBatch(ctx context.Context, batch []*cycle.Status, seen map[groupKey]bool, report *RepairReport, sampleLimit int) ([]cycle.RepairFix, int, error) {
	var (
		fixes      []cycle.RepairFix
		normalized int
	)
	for _, st := range batch {
		if cycle.IsNormalized(st.CycleStart) {
			continue
		}
		key := keyOf(st)
		if seen[key] {
			continue
		}
		seen[key] = true

		group, err := r.statuses.ListDayGroup(ctx, st.BenefitID, st.UserID, st.OccurrenceIndex, st.CycleStart)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load duplicate group for %s: %w", st.Key(), err)
		}
		fix, ok := planGroup(group)
		if !ok {
			continue
		}
		fixes = append(fixes, fix)
		survivor := findStatus(group, fix.SurvivorID)

		report.Groups++
		report.RowsToDelete += len(fix.DeleteIDs)
		if !cycle.IsNormalized(survivor.CycleStart) {
			report.RowsToNormalize++
			normalized++
		}
		if len(report.Samples) < sampleLimit {
			report.Samples = append(report.Samples, RepairSample{
				BenefitID:       st.BenefitID,
				UserID:          st.UserID,
				OccurrenceIndex: st.OccurrenceIndex,
				Day:             fix.NormalizedStart,
				SurvivorID:      fix.SurvivorID,
				SurvivorStart:   survivor.CycleStart,
				NormalizedStart: fix.NormalizedStart,
				DeleteIDs:       fix.DeleteIDs,
			})
		}
	}
	return fixes, normalized, nil
}

// planGroup picks the survivor of a day group. A group whose only row already
// starts at midnight needs nothing.
func planGroup(group []*cycle.Status) (cycle.RepairFix, bool) {
	if len(group) == 0 {
		return cycle.RepairFix{}, false
	}
	ranked := make([]*cycle.Status, len(group))
	copy(ranked, group)
	sort.SliceStable(ranked, func(i, j int) bool { return survivesOver(ranked[i], ranked[j]) })

	survivor := ranked[0]
	fix := cycle.RepairFix{
		SurvivorID:      survivor.ID,
		NormalizedStart: cycle.Normalize(survivor.CycleStart),
	}
	for _, st := range ranked[1:] {
		fix.DeleteIDs = append(fix.DeleteIDs, st.ID)
	}
	sort.Slice(fix.DeleteIDs, func(i, j int) bool { return fix.DeleteIDs[i] < fix.DeleteIDs[j] })

	if len(fix.DeleteIDs) == 0 && cycle.IsNormalized(survivor.CycleStart) {
		return cycle.RepairFix{}, false
	}
	return fix, true
}

// survivesOver orders candidates: completed first, then rows already at
// midnight, then the most recently updated, then the lowest id.
func survivesOver(a, b *cycle.Status) bool {
	if a.IsCompleted != b.IsCompleted {
		return a.IsCompleted
	}
	an, bn := cycle.IsNormalized(a.CycleStart), cycle.IsNormalized(b.CycleStart)
	if an != bn {
		return an
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}

func findStatus(group []*cycle.Status, id int64) *cycle.Status {
	for _, st := range group {
		if st.ID == id {
			return st
		}
	}
	return nil
}

func countDeletes(fixes []cycle.RepairFix) int {
	n := 0
	for _, f := range fixes {
		n += len(f.DeleteIDs)
	}
	return n
}
