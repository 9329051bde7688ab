package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"benefit_cycle_engine/internal/app"
	"benefit_cycle_engine/internal/infra/logger"
)

type reconcileOptions struct {
	UserID int64
	At     string
}

// ReconcileSummary is the output of the reconcile command.
type ReconcileSummary struct {
	RunID    string   `json:"run_id"`
	Users    int      `json:"users"`
	Created  int      `json:"created"`
	Existing int      `json:"existing"`
	Degraded int      `json:"degraded"`
	Failures []string `json:"failures,omitempty"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &reconcileOptions{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one benefit cycle reconciliation pass",
		Long: `Ensure every active recurring benefit has a status row for each
occurrence of its current cycle. Existing rows keep their progress.
Exits with code 1 when some benefits had to be skipped.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.UserID, "user", 0, "reconcile a single user")
	cmd.Flags().StringVar(&opts.At, "at", "", "reference instant (default now)")

	return cmd
}

func runReconcile(rootOpts *RootOptions, opts *reconcileOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	now, err := parseInstant(opts.At)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --at", err)
	}

	eng, err := openEngine(ctx, cmd, rootOpts)
	if err != nil {
		return err
	}
	defer eng.Close()

	reconciler := app.NewReconciler(eng.benefits, eng.statuses, logger.Component(eng.log, "reconciler"), app.ReconcilerOptions{
		AnchorPolicy:   eng.cfg.MissingAnchorPolicy,
		ValidationMode: eng.cfg.ValidationMode,
		Workers:        eng.cfg.ReconcileWorkers,
	})

	var res *app.ReconcileResult
	if cmd.Flags().Changed("user") {
		res, err = reconciler.ReconcileUser(ctx, opts.UserID, now)
	} else {
		res, err = reconciler.ReconcileAll(ctx, now)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "reconciliation failed", err)
	}

	summary := ReconcileSummary{
		RunID:    res.RunID,
		Users:    res.Users,
		Created:  res.Created,
		Existing: res.Existing,
		Degraded: res.Degraded,
	}
	for _, f := range res.Failures {
		summary.Failures = append(summary.Failures, f.Error())
	}

	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	if err := formatter.Emit(summary, func(out io.Writer) error {
		fmt.Fprintf(out, "run %s: %d users, %d created, %d existing, %d degraded\n",
			summary.RunID, summary.Users, summary.Created, summary.Existing, summary.Degraded)
		for _, f := range summary.Failures {
			fmt.Fprintf(out, "  skipped: %s\n", f)
		}
		return nil
	}); err != nil {
		return err
	}

	if len(summary.Failures) > 0 {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d benefits or users skipped", len(summary.Failures))}
	}
	return nil
}
