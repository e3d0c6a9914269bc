package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	"github.com/wasteflow/wasteflow/internal/commission"
	"github.com/wasteflow/wasteflow/internal/identity"
)

type Service interface {
	List(ctx context.Context, principal identity.Principal, req ListItemsRequest) ([]*BillingItem, error)
	Get(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) (*BillingItem, error)
	Create(ctx context.Context, principal identity.Principal, req CreateItemRequest) (*BillingItem, error)

	UpdateCommission(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID, in commission.Input) (*BillingItem, error)
	BatchUpdateCommission(ctx context.Context, principal identity.Principal, ids []snowflake.ID, in commission.Input) (*BatchResult, error)
	UpdateStatus(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID, status string, note string) (*BillingItem, error)
}

type ListItemsRequest struct {
	OrgID        snowflake.ID
	CollectorID  snowflake.ID
	BillingMonth string
	BillingType  string
	Status       string
}

type CreateItemRequest struct {
	OrgID        snowflake.ID
	CollectorID  snowflake.ID
	StoreID      *snowflake.ID
	BillingMonth string
	BillingType  string
	Description  string
	Quantity     int64
	UnitPrice    int64
	BaseAmount   int64
}

// BatchResult reports a batch commission update: items already
// APPROVED/FINALIZED are counted as skipped, never failed.
type BatchResult struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

var ErrItemNotFound = errors.New("billing_item_not_found")
