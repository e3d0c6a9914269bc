// Package tax computes consumption tax for billing amounts. All functions
// are pure; an unrecognized rounding mode falls back to FLOOR instead of
// failing so a bad configuration can never block settlement.
package tax

import (
	"math"
	"strings"
)

// RoundingMode selects how a fractional tax amount becomes an integer.
type RoundingMode string

const (
	RoundingFloor RoundingMode = "FLOOR"
	RoundingCeil  RoundingMode = "CEIL"
	RoundingRound RoundingMode = "ROUND"
)

// ParseRoundingMode normalizes a configured mode, defaulting to FLOOR.
func ParseRoundingMode(raw string) RoundingMode {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(RoundingCeil):
		return RoundingCeil
	case string(RoundingRound):
		return RoundingRound
	default:
		return RoundingFloor
	}
}

// Calculate returns the tax amount for a base amount in the smallest
// currency unit. Rate is a fraction (0.10 for 10%).
func Calculate(amount int64, rate float64, mode RoundingMode) int64 {
	raw := float64(amount) * rate
	switch mode {
	case RoundingCeil:
		return int64(math.Ceil(raw))
	case RoundingRound:
		return int64(math.Floor(raw + 0.5))
	default:
		return int64(math.Trunc(raw))
	}
}

// CalculateIncluded returns the tax amount and the tax-included total.
func CalculateIncluded(amount int64, rate float64, mode RoundingMode) (int64, int64) {
	taxAmount := Calculate(amount, rate, mode)
	return taxAmount, amount + taxAmount
}

// CalculateForItems sums the base amounts and applies a single rounding to
// the subtotal. Rounding once avoids per-item drift across many lines.
func CalculateForItems(amounts []int64, rate float64, mode RoundingMode) (int64, int64) {
	var subtotal int64
	for _, amount := range amounts {
		subtotal += amount
	}
	return subtotal, Calculate(subtotal, rate, mode)
}
