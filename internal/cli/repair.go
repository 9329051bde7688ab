package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"benefit_cycle_engine/internal/app"
	"benefit_cycle_engine/internal/infra/logger"
)

type repairOptions struct {
	Execute   bool
	Yes       bool
	BatchSize int
	Samples   int
}

// NewRepairCommand creates the repair command.
func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &repairOptions{}

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Find and collapse duplicate cycle status rows",
		Long: `Scan benefit cycle status rows for duplicates whose cycle start differs
only by time of day. Runs as a dry run unless --execute is given, and
--execute must be confirmed with --yes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepair(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Execute, "execute", false, "apply the fixes instead of reporting them")
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm --execute")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "rows per batch (default REPAIR_BATCH_SIZE)")
	cmd.Flags().IntVar(&opts.Samples, "samples", 10, "number of sample groups to report")

	return cmd
}

func runRepair(rootOpts *RootOptions, opts *repairOptions, cmd *cobra.Command) error {
	if opts.Execute && !opts.Yes {
		return WrapExitError(ExitCommandError, "refusing to modify data", app.ErrConfirmationRequired)
	}

	ctx := cmd.Context()
	eng, err := openEngine(ctx, cmd, rootOpts)
	if err != nil {
		return err
	}
	defer eng.Close()

	batch := opts.BatchSize
	if batch == 0 {
		batch = eng.cfg.RepairBatchSize
	}
	samples := opts.Samples
	if samples == 0 {
		samples = -1 // report counts only
	}

	repairer := app.NewRepairer(eng.statuses, logger.Component(eng.log, "repair"), nil, eng.cfg.RepairBatchesPerSecond)
	report, err := repairer.Run(ctx, app.RepairOptions{
		Execute:     opts.Execute,
		Confirmed:   opts.Yes,
		BatchSize:   batch,
		SampleLimit: samples,
	})
	if err != nil {
		if errors.Is(err, app.ErrConfirmationRequired) {
			return WrapExitError(ExitCommandError, "refusing to modify data", err)
		}
		return WrapExitError(ExitCommandError, "repair failed", err)
	}

	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Emit(report, func(out io.Writer) error {
		if err := report.Render(out); err != nil {
			return err
		}
		if report.DryRun && report.Groups > 0 {
			fmt.Fprintln(out, "Re-run with --execute --yes to apply.")
		}
		return nil
	})
}
