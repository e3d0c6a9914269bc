// Package authz is the authorization gate. Every org-scoped entry point
// calls Authorize with the caller's Principal and the entity's resolved
// organization before acting. Denials are generic so callers cannot probe
// for entity existence.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"

	"github.com/wasteflow/wasteflow/internal/identity"
)

const (
	ObjectOrganization     = "organization"
	ObjectCollector        = "collector"
	ObjectStore            = "store"
	ObjectCollectionRecord = "collection_record"
	ObjectCommissionRule   = "commission_rule"
	ObjectBillingItem      = "billing_item"
	ObjectBillingSummary   = "billing_summary"
	ObjectAuditLog         = "audit_log"
	ObjectAPIKey           = "api_key"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"

	ActionItemUpdateStatus     = "billing_item.update_status"
	ActionItemUpdateCommission = "billing_item.update_commission"

	ActionSummaryGenerate = "billing_summary.generate"
	ActionSummarySubmit   = "billing_summary.submit"
	ActionSummaryApprove  = "billing_summary.approve"
	ActionSummaryReject   = "billing_summary.reject"

	ActionRuleResolve = "commission_rule.resolve"
)

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
)

// CrossTenantBatchError reports a batch whose targets resolve to more
// than one organization. Raised before any mutation.
type CrossTenantBatchError struct {
	Orgs []snowflake.ID
}

func (e *CrossTenantBatchError) Error() string {
	ids := make([]string, 0, len(e.Orgs))
	for _, id := range e.Orgs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("batch targets span multiple organizations: %s", strings.Join(ids, ", "))
}

// SingleOrg returns the one organization the ids resolve to, or a
// CrossTenantBatchError when they span several.
func SingleOrg(orgIDs []snowflake.ID) (snowflake.ID, error) {
	seen := make(map[snowflake.ID]struct{}, 1)
	order := make([]snowflake.ID, 0, 1)
	for _, id := range orgIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		order = append(order, id)
	}
	switch len(order) {
	case 0:
		return 0, ErrInvalidOrganization
	case 1:
		return order[0], nil
	default:
		return 0, &CrossTenantBatchError{Orgs: order}
	}
}

type Service interface {
	Authorize(ctx context.Context, principal identity.Principal, orgID snowflake.ID, object string, action string) error
}
