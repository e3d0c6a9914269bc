package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/wasteflow/wasteflow/internal/identity"
)

type Service interface {
	Create(ctx context.Context, principal identity.Principal, req CreateRecordRequest) (*CollectionRecord, error)
	List(ctx context.Context, principal identity.Principal, req ListRecordsRequest) ([]*CollectionRecord, error)

	// GenerateItems rolls one org's collection activity for the month
	// into DRAFT billing items: one METERED item per (collector, store)
	// and one FIXED item per collector with a contracted monthly fee.
	// Collectors that already have items for the month are skipped.
	GenerateItems(ctx context.Context, principal identity.Principal, orgID snowflake.ID, billingMonth string) (*GenerateItemsResult, error)

	// GenerateItemsForMonth runs GenerateItems for every org with
	// activity or active collectors in the month.
	GenerateItemsForMonth(ctx context.Context, principal identity.Principal, billingMonth string) (*GenerateItemsResult, error)
}

type CreateRecordRequest struct {
	OrgID       snowflake.ID
	CollectorID snowflake.ID
	StoreID     snowflake.ID
	WasteItem   string
	Quantity    int64
	UnitPrice   int64
	CollectedAt time.Time
}

type ListRecordsRequest struct {
	OrgID        snowflake.ID
	CollectorID  snowflake.ID
	StoreID      snowflake.ID
	BillingMonth string
}

type GenerateItemsResult struct {
	MeteredItems      int `json:"metered_items"`
	FixedItems        int `json:"fixed_items"`
	SkippedCollectors int `json:"skipped_collectors"`
}

var (
	ErrInvalidWasteItem = errors.New("invalid_waste_item")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidUnitPrice = errors.New("invalid_unit_price")
)
