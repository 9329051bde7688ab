package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"benefit_cycle_engine/internal/app"
	"benefit_cycle_engine/internal/infra/catalog"
	"benefit_cycle_engine/internal/infra/logger"
)

// MigrateResult is the output of the migrate command.
type MigrateResult struct {
	Name       string  `json:"name"`
	BenefitIDs []int64 `json:"benefit_ids"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "migrate <file.yaml>",
		Short: "Apply a benefit migration file",
		Long: `Insert the benefits of a migration file in one transaction.
Calendar-fixed benefits are validated against their descriptions first;
any mismatch aborts the migration and nothing is written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, args[0], at, cmd)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "reference instant for validation (default now)")

	return cmd
}

func runMigrate(rootOpts *RootOptions, path, at string, cmd *cobra.Command) error {
	now, err := parseInstant(at)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --at", err)
	}
	migration, err := catalog.LoadMigration(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "could not load migration", err)
	}

	ctx := cmd.Context()
	eng, err := openEngine(ctx, cmd, rootOpts)
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := app.NewMigrator(eng.benefits, logger.Component(eng.log, "migrator")).Apply(ctx, migration, now)
	if err != nil {
		return WrapExitError(ExitFailure, "migration rejected", err)
	}

	out := MigrateResult{Name: res.Name}
	for _, t := range res.Templates {
		out.BenefitIDs = append(out.BenefitIDs, t.ID)
	}
	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Emit(out, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "migration %s applied: %d benefits inserted\n", out.Name, len(out.BenefitIDs))
		return err
	})
}
