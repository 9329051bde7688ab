// Package usage derives completion state from a used amount and a cap. All
// functions are pure; callers persist the resulting amount and recompute the
// completion flag from CompletionState.
package usage

import (
	"errors"
	"fmt"
	"math"
)

// Tolerance absorbs float noise when an amount slightly overshoots what is left.
const Tolerance = 0.001

var ErrInvalidPartialAmount = errors.New("invalid partial amount")

// State is the completion state of a capped (or uncapped) benefit.
type State string

const (
	StateNotStarted State = "not_started"
	StatePartial    State = "partial"
	StateComplete   State = "complete"
)

// AmountError carries a message that can be shown to the user as-is.
type AmountError struct {
	Amount    float64
	Remaining float64
	Message   string
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidPartialAmount, e.Message)
}

func (e *AmountError) Unwrap() error { return ErrInvalidPartialAmount }

// CompletionState classifies used against limit. A non-positive limit means
// uncapped, so any positive usage completes the benefit. Marking an uncapped
// benefit complete in full records no amount, so such rows read as not started
// here; SummarizeStatus takes the stored completion flag into account.
func CompletionState(used, limit float64) State {
	if math.Max(used, 0) <= 0 {
		return StateNotStarted
	}
	if limit <= 0 || used >= limit {
		return StateComplete
	}
	return StatePartial
}

// ValidatePartialAmount checks amount can be added on top of currentUsed and
// returns the amount to persist. Overshoots within Tolerance are clamped to
// the exact remaining value. Nothing is accepted once the cap is reached.
func ValidatePartialAmount(amount, currentUsed, limit float64) (float64, error) {
	if math.IsNaN(amount) || amount <= 0 {
		return 0, &AmountError{Amount: amount, Message: "amount must be greater than zero"}
	}
	if limit <= 0 {
		return amount, nil
	}
	remaining := limit - currentUsed
	if amount > remaining {
		if remaining > 0 && amount-remaining <= Tolerance {
			return remaining, nil
		}
		return 0, &AmountError{
			Amount:    amount,
			Remaining: math.Max(remaining, 0),
			Message:   fmt.Sprintf("amount %.2f exceeds remaining %.2f", amount, math.Max(remaining, 0)),
		}
	}
	return amount, nil
}

// RemainingAmount is what is left of limit, never negative. Uncapped benefits
// report 0.
func RemainingAmount(used, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Max(0, limit-used)
}

// CompletionPercentage is used/limit as a 0-100 percentage. Uncapped benefits
// are either 0 or 100.
func CompletionPercentage(used, limit float64) float64 {
	if limit <= 0 {
		if used <= 0 {
			return 0
		}
		return 100
	}
	return math.Min(100, math.Max(0, used/limit*100))
}

// Summary bundles the derived figures for display.
type Summary struct {
	State      State
	Percentage float64
	Remaining  float64
}

func Summarize(used, limit float64) Summary {
	return Summary{
		State:      CompletionState(used, limit),
		Percentage: CompletionPercentage(used, limit),
		Remaining:  RemainingAmount(used, limit),
	}
}

// SummarizeStatus is Summarize for a stored row. A row flagged complete is
// complete whatever its used amount.
func SummarizeStatus(used, limit float64, completed bool) Summary {
	s := Summarize(used, limit)
	if completed && s.State != StateComplete {
		s = Summary{State: StateComplete, Percentage: 100}
	}
	return s
}
