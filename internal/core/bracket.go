// Package core holds the tax domain types and the progressive bracket engine.
//
// This file contains the bracket model and the marginal tax computation. The
// computation is a pure function: callers fetch the income total and the
// current bracket table and pass both in explicitly.
package core

import (
	"errors"
	"slices"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRate  = errors.New("rate percent must be between 0 and 100")
	ErrInvalidBound = errors.New("bracket bounds must be non-negative")
)

var hundred = decimal.NewFromInt(100)

// UpperBound is the top edge of a bracket: either a finite amount or unbounded.
type UpperBound struct {
	amount  decimal.Decimal
	bounded bool
}

// Bounded returns an upper edge at amount.
func Bounded(amount decimal.Decimal) UpperBound {
	return UpperBound{amount: amount, bounded: true}
}

// Unbounded returns an upper edge extending to positive infinity.
func Unbounded() UpperBound {
	return UpperBound{}
}

// UpperFromSentinel converts the stored representation, where zero means
// "no upper limit", into an UpperBound.
func UpperFromSentinel(amount decimal.Decimal) UpperBound {
	if amount.IsZero() {
		return Unbounded()
	}
	return Bounded(amount)
}

// IsBounded reports whether the edge is finite.
func (u UpperBound) IsBounded() bool { return u.bounded }

// Amount returns the finite edge. ok is false for an unbounded edge.
func (u UpperBound) Amount() (amount decimal.Decimal, ok bool) {
	return u.amount, u.bounded
}

// Sentinel returns the stored representation (zero for unbounded).
func (u UpperBound) Sentinel() decimal.Decimal {
	if !u.bounded {
		return decimal.Zero
	}
	return u.amount
}

func (u UpperBound) String() string {
	if !u.bounded {
		return "unbounded"
	}
	return u.amount.String()
}

// TaxBracket is a marginal rate band starting at Lower.
type TaxBracket struct {
	Lower       decimal.Decimal
	Upper       UpperBound
	RatePercent decimal.Decimal
}

// NewTaxBracket builds a bracket, rejecting negative bounds and rates outside [0, 100].
func NewTaxBracket(lower decimal.Decimal, upper UpperBound, ratePercent decimal.Decimal) (TaxBracket, error) {
	b := TaxBracket{Lower: lower, Upper: upper, RatePercent: ratePercent}
	if err := b.Validate(); err != nil {
		return TaxBracket{}, err
	}
	return b, nil
}

// Validate checks the construction constraints. ComputeTax never calls it:
// a table that fails validation is still computed deterministically.
func (b TaxBracket) Validate() error {
	if b.Lower.IsNegative() {
		return ErrInvalidBound
	}
	if upper, ok := b.Upper.Amount(); ok && upper.IsNegative() {
		return ErrInvalidBound
	}
	if b.RatePercent.IsNegative() || b.RatePercent.GreaterThan(hundred) {
		return ErrInvalidRate
	}
	return nil
}

// TaxComputationResult pairs the income total with the unrounded tax owed.
type TaxComputationResult struct {
	TotalIncome decimal.Decimal
	TaxAmount   decimal.Decimal
}

// Compute runs ComputeTax and returns both input total and result.
func Compute(totalIncome decimal.Decimal, brackets []TaxBracket) TaxComputationResult {
	return TaxComputationResult{
		TotalIncome: totalIncome,
		TaxAmount:   ComputeTax(totalIncome, brackets),
	}
}

// ComputeTax applies the brackets to totalIncome in a single ascending sweep.
//
// Brackets are sorted by Lower (the caller's slice is left untouched). Each
// band consumes from the running remainder; a band is skipped when the
// original totalIncome does not exceed its Lower edge. Gaps and overlaps in
// the table are not reconciled. No rounding is applied.
func ComputeTax(totalIncome decimal.Decimal, brackets []TaxBracket) decimal.Decimal {
	sorted := slices.Clone(brackets)
	slices.SortStableFunc(sorted, func(a, b TaxBracket) int {
		return a.Lower.Cmp(b.Lower)
	})

	tax := decimal.Zero
	remaining := totalIncome

	for _, b := range sorted {
		if !remaining.IsPositive() {
			break
		}
		// Gate on the original income, not on remaining.
		if totalIncome.LessThanOrEqual(b.Lower) {
			continue
		}

		taxable := remaining
		if upper, ok := b.Upper.Amount(); ok {
			taxable = decimal.Min(remaining, upper.Sub(b.Lower))
		}
		if !taxable.IsPositive() {
			continue
		}

		tax = tax.Add(taxable.Mul(b.RatePercent.Shift(-2)))
		remaining = remaining.Sub(taxable)
	}

	return tax
}
