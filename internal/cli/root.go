package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose        bool
	Format         string // "json" | "text"
	DatabaseDriver string
	DatabaseURL    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cyclectl CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cyclectl",
		Short: "cyclectl - benefit cycle engine operations",
		Long: `Operate the benefit cycle engine: compute cycle windows, run a
reconciliation pass, repair duplicate cycle rows and apply benefit migrations.

Database settings come from DATABASE_DRIVER and DATABASE_URL (or a .env file)
unless overridden with --db-driver and --db-url.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DatabaseDriver, "db-driver", "", "database driver (postgres|sqlite3)")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "db-url", "", "database connection string or SQLite file")

	// Add subcommands
	cmd.AddCommand(NewWindowCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewRepairCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
