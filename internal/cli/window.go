package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"benefit_cycle_engine/internal/domain/cycle"
)

type windowOptions struct {
	Frequency   string
	Alignment   string
	StartMonth  int
	Duration    int
	Anchor      string
	CreatedAt   string
	At          string
	Description string
}

// WindowResult is the output of the window command.
type WindowResult struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Degraded bool      `json:"degraded,omitempty"`
	Valid    bool      `json:"valid"`
	Mismatch string    `json:"mismatch,omitempty"`
}

// NewWindowCommand creates the window command.
func NewWindowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &windowOptions{}

	cmd := &cobra.Command{
		Use:   "window",
		Short: "Compute the cycle window containing an instant",
		Long: `Compute the benefit cycle window that contains --at (default now) and
check it against the benefit metadata. Does not touch the database.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWindow(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Frequency, "frequency", "", "MONTHLY, QUARTERLY, YEARLY or ONE_TIME")
	cmd.Flags().StringVar(&opts.Alignment, "alignment", "ANNIVERSARY", "ANNIVERSARY or CALENDAR_FIXED")
	cmd.Flags().IntVar(&opts.StartMonth, "start-month", 0, "calendar-fixed start month (1-12)")
	cmd.Flags().IntVar(&opts.Duration, "duration", 0, "calendar-fixed duration in months")
	cmd.Flags().StringVar(&opts.Anchor, "anchor", "", "card opening date for anniversary alignment")
	cmd.Flags().StringVar(&opts.CreatedAt, "created", "", "benefit creation instant for ONE_TIME benefits")
	cmd.Flags().StringVar(&opts.At, "at", "", "reference instant (default now)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "benefit description to validate against")
	_ = cmd.MarkFlagRequired("frequency")

	return cmd
}

func runWindow(rootOpts *RootOptions, opts *windowOptions, cmd *cobra.Command) error {
	in, err := opts.input(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid window arguments", err)
	}

	w, err := cycle.Calculate(in)
	if err != nil {
		return WrapExitError(ExitFailure, "could not compute cycle", err)
	}

	res := WindowResult{Start: w.Start, End: w.End, Degraded: w.Degraded, Valid: true}
	v := cycle.Validate(cycle.Metadata{Frequency: in.Frequency, Alignment: in.Alignment, Description: opts.Description}, w)
	if !v.IsValid {
		res.Valid = false
		res.Mismatch = v.Err.Error()
	}

	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Emit(res, func(out io.Writer) error {
		fmt.Fprintf(out, "start: %s\n", res.Start.Format(time.RFC3339Nano))
		fmt.Fprintf(out, "end:   %s\n", res.End.Format(time.RFC3339Nano))
		if !res.Valid {
			fmt.Fprintf(out, "mismatch: %s\n", res.Mismatch)
		}
		return nil
	})
}

func (o *windowOptions) input(cmd *cobra.Command) (cycle.Input, error) {
	freq, err := cycle.ParseFrequency(o.Frequency)
	if err != nil {
		return cycle.Input{}, err
	}
	var sm, dm *int
	if cmd.Flags().Changed("start-month") {
		sm = &o.StartMonth
	}
	if cmd.Flags().Changed("duration") {
		dm = &o.Duration
	}
	alignment, err := cycle.NewAlignment(o.Alignment, sm, dm)
	if err != nil {
		return cycle.Input{}, err
	}
	at, err := parseInstant(o.At)
	if err != nil {
		return cycle.Input{}, err
	}
	created, err := parseInstant(o.CreatedAt)
	if err != nil {
		return cycle.Input{}, err
	}

	in := cycle.Input{Frequency: freq, Alignment: alignment, Reference: at, CreatedAt: created}
	if o.Anchor != "" {
		anchor, err := parseInstant(o.Anchor)
		if err != nil {
			return cycle.Input{}, err
		}
		in.Anchor = &anchor
	}
	return in, nil
}
