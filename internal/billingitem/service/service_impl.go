package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wasteflow/wasteflow/internal/apperr"
	auditdomain "github.com/wasteflow/wasteflow/internal/audit/domain"
	"github.com/wasteflow/wasteflow/internal/authz"
	"github.com/wasteflow/wasteflow/internal/billing"
	"github.com/wasteflow/wasteflow/internal/billingitem/domain"
	"github.com/wasteflow/wasteflow/internal/clock"
	"github.com/wasteflow/wasteflow/internal/commission"
	"github.com/wasteflow/wasteflow/internal/config"
	"github.com/wasteflow/wasteflow/internal/identity"
	"github.com/wasteflow/wasteflow/internal/observability/metrics"
	"github.com/wasteflow/wasteflow/internal/tax"
	"github.com/wasteflow/wasteflow/pkg/db/option"
	"github.com/wasteflow/wasteflow/pkg/repository"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Authz    authz.Service
	Items    repository.Repository[domain.BillingItem]
	Settings *config.BillingSettingsHolder
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	authz    authz.Service
	items    repository.Repository[domain.BillingItem]
	settings *config.BillingSettingsHolder
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("billingitem.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		authz:    p.Authz,
		items:    p.Items,
		settings: p.Settings,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *service) List(ctx context.Context, principal identity.Principal, req domain.ListItemsRequest) ([]*domain.BillingItem, error) {
	if err := s.authz.Authorize(ctx, principal, req.OrgID, authz.ObjectBillingItem, authz.ActionView); err != nil {
		return nil, err
	}

	query := &domain.BillingItem{
		OrgID:        req.OrgID,
		CollectorID:  req.CollectorID,
		BillingMonth: req.BillingMonth,
		BillingType:  req.BillingType,
		Status:       req.Status,
	}
	return s.items.Find(ctx, query, option.WithOrder("id asc"))
}

func (s *service) Get(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) (*domain.BillingItem, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectBillingItem, authz.ActionView); err != nil {
		return nil, err
	}
	return s.find(ctx, orgID, id)
}

func (s *service) find(ctx context.Context, orgID snowflake.ID, id snowflake.ID) (*domain.BillingItem, error) {
	item, err := s.items.FindOne(ctx, &domain.BillingItem{ID: id, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrItemNotFound
	}
	return item, nil
}

func (s *service) Create(ctx context.Context, principal identity.Principal, req domain.CreateItemRequest) (*domain.BillingItem, error) {
	if err := s.authz.Authorize(ctx, principal, req.OrgID, authz.ObjectBillingItem, authz.ActionCreate); err != nil {
		return nil, err
	}

	month, err := billing.ParseMonth(req.BillingMonth)
	if err != nil {
		return nil, err
	}
	if !billing.ValidItemType(req.BillingType) {
		return nil, apperr.Validation("billing_type", "must be FIXED, METERED or OTHER")
	}
	if req.CollectorID == 0 {
		return nil, apperr.Validation("collector_id", "must be a valid id")
	}
	if req.BaseAmount < 0 {
		return nil, apperr.Validation("base_amount", "must not be negative")
	}

	settings := s.settings.Get()
	taxAmount, totalAmount := tax.CalculateIncluded(req.BaseAmount, settings.DefaultTaxRate, tax.ParseRoundingMode(settings.TaxRounding))

	now := s.clock.Now()
	item := &domain.BillingItem{
		ID:           s.genID.Generate(),
		OrgID:        req.OrgID,
		CollectorID:  req.CollectorID,
		StoreID:      req.StoreID,
		BillingMonth: month,
		BillingType:  req.BillingType,
		Description:  strings.TrimSpace(req.Description),
		Quantity:     req.Quantity,
		UnitPrice:    req.UnitPrice,
		BaseAmount:   req.BaseAmount,
		TaxAmount:    taxAmount,
		TotalAmount:  totalAmount,
		NetAmount:    req.BaseAmount,
		Status:       domain.StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}

	s.audit(ctx, principal, item, "billing_item.created", map[string]any{
		"billing_month": item.BillingMonth,
		"billing_type":  item.BillingType,
		"base_amount":   item.BaseAmount,
	})
	return item, nil
}

func (s *service) UpdateCommission(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID, in commission.Input) (*domain.BillingItem, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectBillingItem, authz.ActionItemUpdateCommission); err != nil {
		return nil, err
	}

	item, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if domain.Immutable(item.Status) {
		return nil, &domain.ImmutableStateError{ItemID: item.ID.String(), Status: item.Status}
	}

	result, err := commission.Apply(item.BaseAmount, in)
	if err != nil {
		return nil, err
	}

	if err := s.items.Update(ctx, id.String(), s.commissionUpdates(result, in.Note)); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordCommissionUpdate(ctx, result.Type)
	}
	s.audit(ctx, principal, item, "billing_item.commission_updated", map[string]any{
		"commission_type":   result.Type,
		"commission_amount": result.Amount,
		"net_amount":        result.NetAmount,
		"is_manual":         result.IsManual,
	})
	return s.find(ctx, orgID, id)
}

// commissionUpdates maps an applied commission onto item columns. A
// manual update severs the link to whatever rule filled the defaults.
func (s *service) commissionUpdates(result commission.Result, note string) map[string]any {
	return map[string]any{
		"commission_type":      result.Type,
		"commission_rate":      result.Rate,
		"commission_amount":    result.Amount,
		"net_amount":           result.NetAmount,
		"is_manual_commission": result.IsManual,
		"commission_note":      strings.TrimSpace(note),
		"source_rule_id":       nil,
		"updated_at":           s.clock.Now(),
	}
}

func (s *service) BatchUpdateCommission(ctx context.Context, principal identity.Principal, ids []snowflake.ID, in commission.Input) (*domain.BatchResult, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("item_ids", "must not be empty")
	}

	items, err := s.items.Find(ctx, &domain.BillingItem{}, option.WithCondition("id IN ?", ids))
	if err != nil {
		return nil, err
	}
	if len(items) != len(uniqueIDs(ids)) {
		return nil, domain.ErrItemNotFound
	}

	orgIDs := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		orgIDs = append(orgIDs, item.OrgID)
	}
	// The whole batch fails before any write when targets span orgs.
	orgID, err := authz.SingleOrg(orgIDs)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectBillingItem, authz.ActionItemUpdateCommission); err != nil {
		return nil, err
	}

	result := &domain.BatchResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.items.WithTrx(tx)
		for _, item := range items {
			if domain.Immutable(item.Status) {
				result.Skipped++
				continue
			}
			applied, err := commission.Apply(item.BaseAmount, in)
			if err != nil {
				return err
			}
			if err := repo.Update(ctx, item.ID.String(), s.commissionUpdates(applied, in.Note)); err != nil {
				return err
			}
			result.Updated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordCommissionUpdate(ctx, in.Type)
	}
	s.auditBatch(ctx, principal, orgID, "billing_item.commission_batch_updated", map[string]any{
		"commission_type": in.Type,
		"updated":         result.Updated,
		"skipped":         result.Skipped,
	})
	return result, nil
}

func (s *service) UpdateStatus(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID, status string, note string) (*domain.BillingItem, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectBillingItem, authz.ActionItemUpdateStatus); err != nil {
		return nil, err
	}
	if !domain.ValidStatus(status) {
		return nil, apperr.Validation("status", "unknown status")
	}

	item, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(item.Status, status) {
		return nil, &domain.InvalidTransitionError{
			Current:   item.Status,
			Requested: status,
			Allowed:   domain.AllowedTransitions(item.Status),
		}
	}

	updates := map[string]any{
		"status":     status,
		"updated_at": s.clock.Now(),
	}
	if err := s.items.Update(ctx, id.String(), updates); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordItemStatusChange(ctx, status)
	}
	s.audit(ctx, principal, item, "billing_item.status_changed", map[string]any{
		"from": item.Status,
		"to":   status,
		"note": strings.TrimSpace(note),
	})
	return s.find(ctx, orgID, id)
}

func (s *service) audit(ctx context.Context, principal identity.Principal, item *domain.BillingItem, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actorID := principal.ActorID.String()
	targetID := item.ID.String()
	_ = s.auditSvc.AuditLog(ctx, &item.OrgID, principal.ActorType, &actorID, action, "billing_item", &targetID, metadata)
}

func (s *service) auditBatch(ctx context.Context, principal identity.Principal, orgID snowflake.ID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actorID := principal.ActorID.String()
	_ = s.auditSvc.AuditLog(ctx, &orgID, principal.ActorType, &actorID, action, "billing_item", nil, metadata)
}

func uniqueIDs(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
