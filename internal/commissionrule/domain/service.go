package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/wasteflow/wasteflow/internal/identity"
)

type Service interface {
	Create(ctx context.Context, principal identity.Principal, req CreateRuleRequest) (*CommissionRule, error)
	List(ctx context.Context, principal identity.Principal, req ListRulesRequest) ([]*CommissionRule, error)
	Update(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID, req UpdateRuleRequest) (*CommissionRule, error)
	Deactivate(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) error
	Delete(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) error

	// ResolveDefaults selects, per concrete billing type, the rule that
	// applies to (org, collector, month). Types with no applicable rule
	// are absent from the map.
	ResolveDefaults(ctx context.Context, principal identity.Principal, orgID snowflake.ID, collectorID snowflake.ID, billingMonth string) (map[string]ResolvedDefault, error)
}

type CreateRuleRequest struct {
	OrgID            snowflake.ID
	CollectorID      *snowflake.ID
	BillingType      string
	CommissionType   string
	CommissionRate   *float64
	CommissionAmount *int64
	EffectiveFrom    *time.Time
	EffectiveTo      *time.Time
	Notes            string
}

type ListRulesRequest struct {
	OrgID       snowflake.ID
	CollectorID *snowflake.ID
	BillingType string
	ActiveOnly  bool
}

// UpdateRuleRequest covers the only mutable rule fields. Commission type
// and value stay fixed for the life of the rule.
type UpdateRuleRequest struct {
	Notes       *string
	IsActive    *bool
	EffectiveTo *time.Time
}

var (
	ErrRuleNotFound = errors.New("commission_rule_not_found")
)
