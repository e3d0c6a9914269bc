package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	"github.com/wasteflow/wasteflow/internal/identity"
)

// Generation skip reasons.
const (
	SkipAlreadyGenerated = "already_generated"
	SkipNoItems          = "no_items"
)

// GenerateResult reports one generation attempt. Exactly one of Summary
// and Reason is set; a skip is a normal outcome, not an error.
type GenerateResult struct {
	Summary *BillingSummary `json:"summary,omitempty"`
	Skipped bool            `json:"skipped"`
	Reason  string          `json:"reason,omitempty"`
}

// MonthResult tallies a whole-month generation run.
type MonthResult struct {
	Generated int `json:"generated"`
	Skipped   int `json:"skipped"`
}

type Service interface {
	Generate(ctx context.Context, principal identity.Principal, orgID snowflake.ID, collectorID snowflake.ID, billingMonth string) (*GenerateResult, error)

	// GenerateForMonth generates a summary for every (org, collector)
	// pair that has billing items in the month.
	GenerateForMonth(ctx context.Context, principal identity.Principal, billingMonth string) (*MonthResult, error)

	List(ctx context.Context, principal identity.Principal, req ListSummariesRequest) ([]*BillingSummary, error)
	Get(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) (*BillingSummary, error)

	Submit(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) (*BillingSummary, error)
	ApproveBatch(ctx context.Context, principal identity.Principal, ids []snowflake.ID) (int, error)
	RejectBatch(ctx context.Context, principal identity.Principal, ids []snowflake.ID, reason string) (int, error)
}

type ListSummariesRequest struct {
	OrgID        snowflake.ID
	CollectorID  snowflake.ID
	BillingMonth string
	Status       string
}

var ErrSummaryNotFound = errors.New("billing_summary_not_found")
