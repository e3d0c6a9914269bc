// Package billing holds the vocabulary shared by billing items, commission
// rules, summaries and collection records: billing types and the settlement
// month. Enum membership is checked once at the boundary; code past it
// trusts these values.
package billing

import (
	"time"

	"github.com/wasteflow/wasteflow/internal/apperr"
)

const (
	TypeFixed   = "FIXED"
	TypeMetered = "METERED"
	TypeOther   = "OTHER"

	// TypeAll is valid on commission rules only, matching every item type.
	TypeAll = "ALL"
)

// ItemTypes lists the concrete billing types an item can carry.
var ItemTypes = []string{TypeFixed, TypeMetered, TypeOther}

func ValidItemType(t string) bool {
	return t == TypeFixed || t == TypeMetered || t == TypeOther
}

func ValidRuleType(t string) bool {
	return ValidItemType(t) || t == TypeAll
}

// MonthLayout is the canonical settlement month format.
const MonthLayout = "2006-01"

// ParseMonth validates and normalizes a settlement month.
func ParseMonth(s string) (string, error) {
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return "", apperr.Validation("billing_month", "must be formatted YYYY-MM")
	}
	return t.Format(MonthLayout), nil
}

// MonthBounds returns the UTC instants [start, end) covering the month.
func MonthBounds(month string) (time.Time, time.Time, error) {
	start, err := time.Parse(MonthLayout, month)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("billing_month", "must be formatted YYYY-MM")
	}
	start = start.UTC()
	return start, start.AddDate(0, 1, 0), nil
}

// PreviousMonth returns the month before t, for jobs that settle the
// month just closed.
func PreviousMonth(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -1, 0).Format(MonthLayout)
}
