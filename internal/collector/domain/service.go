package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	"github.com/wasteflow/wasteflow/internal/identity"
)

type Service interface {
	Create(ctx context.Context, principal identity.Principal, req CreateCollectorRequest) (*Collector, error)
	Get(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) (*Collector, error)
	List(ctx context.Context, principal identity.Principal, orgID snowflake.ID) ([]*Collector, error)
	Update(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID, req UpdateCollectorRequest) (*Collector, error)
	CreateStore(ctx context.Context, principal identity.Principal, req CreateStoreRequest) (*Store, error)
	ListStores(ctx context.Context, principal identity.Principal, orgID snowflake.ID, collectorID snowflake.ID) ([]*Store, error)
}

type CreateCollectorRequest struct {
	OrgID        snowflake.ID
	Name         string
	Code         string
	ContactName  string
	ContactPhone string
	MonthlyFee   int64
}

type UpdateCollectorRequest struct {
	Name         *string
	ContactName  *string
	ContactPhone *string
	MonthlyFee   *int64
	IsActive     *bool
}

type CreateStoreRequest struct {
	OrgID       snowflake.ID
	CollectorID snowflake.ID
	Name        string
	Address     string
}

var (
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidCode       = errors.New("invalid_code")
	ErrInvalidMonthlyFee = errors.New("invalid_monthly_fee")
	ErrCollectorNotFound = errors.New("collector_not_found")
	ErrDuplicateCode     = errors.New("duplicate_collector_code")
)
