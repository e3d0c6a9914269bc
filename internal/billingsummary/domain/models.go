// Package domain contains the billing summary model, its status machine
// and the service contract.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// BillingSummary aggregates one collector's billing items for one
// settlement month. At most one non-deleted summary exists per
// (org, collector, month); the storage layer enforces the key so
// concurrent generation resolves to one insert and one skip.
//
// Invariants: SubtotalAmount = TotalFixedAmount + TotalMeteredAmount +
// TotalOtherAmount; TotalAmount = SubtotalAmount + TaxAmount. Tax and
// total are summed straight from the items so summary figures always
// trace to the item-level rounding already applied.
type BillingSummary struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;uniqueIndex:ux_billing_summaries,priority:1" json:"org_id"`
	CollectorID  snowflake.ID `gorm:"not null;uniqueIndex:ux_billing_summaries,priority:2" json:"collector_id"`
	BillingMonth string       `gorm:"type:text;not null;uniqueIndex:ux_billing_summaries,priority:3" json:"billing_month"`

	TotalFixedAmount   int64 `gorm:"not null;default:0" json:"total_fixed_amount"`
	TotalMeteredAmount int64 `gorm:"not null;default:0" json:"total_metered_amount"`
	TotalOtherAmount   int64 `gorm:"not null;default:0" json:"total_other_amount"`
	FixedCount         int   `gorm:"not null;default:0" json:"fixed_count"`
	MeteredCount       int   `gorm:"not null;default:0" json:"metered_count"`
	OtherCount         int   `gorm:"not null;default:0" json:"other_count"`

	SubtotalAmount int64 `gorm:"not null;default:0" json:"subtotal_amount"`
	TaxAmount      int64 `gorm:"not null;default:0" json:"tax_amount"`
	TotalAmount    int64 `gorm:"not null;default:0" json:"total_amount"`

	Status          string        `gorm:"type:text;not null;index" json:"status"`
	SubmittedAt     *time.Time    `json:"submitted_at,omitempty"`
	SubmittedBy     *snowflake.ID `json:"submitted_by,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	ApprovedBy      *snowflake.ID `json:"approved_by,omitempty"`
	RejectedAt      *time.Time    `json:"rejected_at,omitempty"`
	RejectedBy      *snowflake.ID `json:"rejected_by,omitempty"`
	RejectionReason *string       `gorm:"type:text" json:"rejection_reason,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (BillingSummary) TableName() string { return "billing_summaries" }

const (
	StatusDraft     = "DRAFT"
	StatusSubmitted = "SUBMITTED"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
)

// transitions is the summary status machine. APPROVED is terminal; it
// feeds downstream invoicing.
var transitions = map[string][]string{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusApproved, StatusRejected, StatusDraft},
	StatusRejected:  {StatusDraft},
	StatusApproved:  {},
}

func CanTransition(current, next string) bool {
	for _, allowed := range transitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

func AllowedTransitions(current string) []string {
	return transitions[current]
}

// InvalidTransitionError names the rejected summary move.
type InvalidTransitionError struct {
	Current   string
	Requested string
	Allowed   []string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition billing summary from %s to %s (allowed: %v)", e.Current, e.Requested, e.Allowed)
}

// IncompleteApprovalError gates submission on item approval. It reports
// how many constituent items are approved out of the total.
type IncompleteApprovalError struct {
	Approved int
	Total    int
}

func (e *IncompleteApprovalError) Error() string {
	return fmt.Sprintf("billing summary cannot be submitted: %d of %d items approved", e.Approved, e.Total)
}
