package policy

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PctState distinguishes the cases of a relative deviation.
type PctState uint8

const (
	// PctZero means both totals are zero.
	PctZero PctState = iota
	// PctDefined means expected is non-zero and Ratio holds the deviation.
	PctDefined
	// PctUnbounded means expected is zero but something was billed.
	PctUnbounded
)

var unboundedDisplay = decimal.NewFromInt(1)

// PctDiff is the relative deviation (actual - expected) / expected.
type PctDiff struct {
	State PctState
	Ratio decimal.Decimal
}

// NewPctDiff computes the deviation of actual from expected.
func NewPctDiff(expected, actual decimal.Decimal) PctDiff {
	switch {
	case !expected.IsZero():
		return PctDiff{State: PctDefined, Ratio: actual.Sub(expected).Div(expected)}
	case actual.IsZero():
		return PctDiff{State: PctZero, Ratio: decimal.Zero}
	default:
		return PctDiff{State: PctUnbounded}
	}
}

// Value returns the ratio. ok is false when the deviation is unbounded.
func (p PctDiff) Value() (ratio decimal.Decimal, ok bool) {
	if p.State == PctUnbounded {
		return decimal.Zero, false
	}
	return p.Ratio, true
}

// Unbounded reports whether expected was zero and actual was not.
func (p PctDiff) Unbounded() bool {
	return p.State == PctUnbounded
}

// Display returns the ratio used in human-readable output, where an
// unbounded deviation reads as 100%.
func (p PctDiff) Display() decimal.Decimal {
	if p.State == PctUnbounded {
		return unboundedDisplay
	}
	return p.Ratio
}

// Nullable converts the deviation for storage: unbounded becomes NULL.
func (p PctDiff) Nullable() decimal.NullDecimal {
	r, ok := p.Value()
	return decimal.NullDecimal{Decimal: r, Valid: ok}
}

// MarshalJSON renders the ratio, or null when unbounded.
func (p PctDiff) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Nullable())
}

// CategoryPct is the per-category deviation, absent when nothing was
// expected in that category.
func CategoryPct(expected, actual decimal.Decimal) decimal.NullDecimal {
	if expected.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: actual.Sub(expected).Div(expected), Valid: true}
}
