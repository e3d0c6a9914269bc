// Package commission applies commission rules to billing line items.
package commission

import (
	"math"

	"github.com/wasteflow/wasteflow/internal/apperr"
)

const (
	TypePercentage  = "PERCENTAGE"
	TypeFixedAmount = "FIXED_AMOUNT"
	TypeManual      = "MANUAL"
)

// ValidType reports whether t is a commission type accepted at the
// boundary. MANUAL is caller-only; resolved rules never carry it.
func ValidType(t string) bool {
	switch t {
	case TypePercentage, TypeFixedAmount, TypeManual:
		return true
	}
	return false
}

// Input is a commission update request for a single item.
type Input struct {
	Type   string
	Rate   *float64
	Amount *int64
	Note   string
}

// Result is the computed commission for an item.
type Result struct {
	Type      string
	Rate      *float64
	Amount    int64
	NetAmount int64
	IsManual  bool
}

// Apply computes the commission for an item with the given base amount.
// PERCENTAGE deductions always round down; a collector is never charged
// more than the exact fraction. Net amount may go negative for manual
// discount scenarios.
func Apply(baseAmount int64, in Input) (Result, error) {
	switch in.Type {
	case TypePercentage:
		if in.Rate == nil {
			return Result{}, apperr.Validation("commission_rate", "required for PERCENTAGE")
		}
		rate := *in.Rate
		if rate <= 0 || rate > 100 {
			return Result{}, apperr.Validation("commission_rate", "must be in (0, 100]")
		}
		amount := int64(math.Floor(float64(baseAmount) * rate / 100))
		return Result{
			Type:      TypePercentage,
			Rate:      in.Rate,
			Amount:    amount,
			NetAmount: baseAmount - amount,
		}, nil

	case TypeFixedAmount:
		if in.Amount == nil {
			return Result{}, apperr.Validation("commission_amount", "required for FIXED_AMOUNT")
		}
		if *in.Amount < 0 {
			return Result{}, apperr.Validation("commission_amount", "must not be negative")
		}
		return Result{
			Type:      TypeFixedAmount,
			Amount:    *in.Amount,
			NetAmount: baseAmount - *in.Amount,
		}, nil

	case TypeManual:
		if in.Amount == nil {
			return Result{}, apperr.Validation("commission_amount", "required for MANUAL")
		}
		if *in.Amount < 0 {
			return Result{}, apperr.Validation("commission_amount", "must not be negative")
		}
		return Result{
			Type:      TypeManual,
			Rate:      in.Rate,
			Amount:    *in.Amount,
			NetAmount: baseAmount - *in.Amount,
			IsManual:  true,
		}, nil

	default:
		return Result{}, apperr.Validation("commission_type", "must be PERCENTAGE, FIXED_AMOUNT or MANUAL")
	}
}
