package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wasteflow/wasteflow/internal/apperr"
	"github.com/wasteflow/wasteflow/internal/authz"
	"github.com/wasteflow/wasteflow/internal/billing"
	"github.com/wasteflow/wasteflow/internal/cache"
	"github.com/wasteflow/wasteflow/internal/clock"
	"github.com/wasteflow/wasteflow/internal/commission"
	"github.com/wasteflow/wasteflow/internal/commissionrule/domain"
	"github.com/wasteflow/wasteflow/internal/config"
	"github.com/wasteflow/wasteflow/internal/identity"
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
	Rules    repository.Repository[domain.CommissionRule]
	Settings *config.BillingSettingsHolder
	Cache    cache.DefaultsCache
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	authz    authz.Service
	rules    repository.Repository[domain.CommissionRule]
	settings *config.BillingSettingsHolder
	cache    cache.DefaultsCache
}

func NewService(p Params) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("commissionrule.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		authz:    p.Authz,
		rules:    p.Rules,
		settings: p.Settings,
		cache:    p.Cache,
	}
}

func (s *service) Create(ctx context.Context, principal identity.Principal, req domain.CreateRuleRequest) (*domain.CommissionRule, error) {
	if err := s.authz.Authorize(ctx, principal, req.OrgID, authz.ObjectCommissionRule, authz.ActionCreate); err != nil {
		return nil, err
	}
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rule := &domain.CommissionRule{
		ID:               s.genID.Generate(),
		OrgID:            req.OrgID,
		CollectorID:      req.CollectorID,
		BillingType:      req.BillingType,
		CommissionType:   req.CommissionType,
		CommissionRate:   req.CommissionRate,
		CommissionAmount: req.CommissionAmount,
		IsActive:         true,
		EffectiveFrom:    req.EffectiveFrom,
		EffectiveTo:      req.EffectiveTo,
		Notes:            strings.TrimSpace(req.Notes),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.cache.InvalidateOrg(req.OrgID)
	s.log.Info("commission rule created",
		zap.String("org_id", req.OrgID.String()),
		zap.String("rule_id", rule.ID.String()),
		zap.String("billing_type", rule.BillingType),
		zap.String("commission_type", rule.CommissionType),
	)
	return rule, nil
}

func (s *service) validateCreate(req domain.CreateRuleRequest) error {
	if !billing.ValidRuleType(req.BillingType) {
		return apperr.Validation("billing_type", "must be FIXED, METERED, OTHER or ALL")
	}
	if req.CollectorID != nil && *req.CollectorID == 0 {
		return apperr.Validation("collector_id", "must be a valid id")
	}
	if req.EffectiveFrom != nil && req.EffectiveTo != nil && req.EffectiveFrom.After(*req.EffectiveTo) {
		return apperr.Validation("effective_to", "must not precede effective_from")
	}

	switch req.CommissionType {
	case commission.TypePercentage:
		if req.CommissionRate == nil {
			return apperr.Validation("commission_rate", "required for PERCENTAGE")
		}
		maxRate := s.settings.Get().MaxCommissionRate
		if *req.CommissionRate <= 0 || *req.CommissionRate > maxRate {
			return apperr.Validation("commission_rate", "out of range")
		}
		if req.CommissionAmount != nil {
			return apperr.Validation("commission_amount", "not allowed for PERCENTAGE")
		}
	case commission.TypeFixedAmount:
		if req.CommissionAmount == nil {
			return apperr.Validation("commission_amount", "required for FIXED_AMOUNT")
		}
		if *req.CommissionAmount < 0 {
			return apperr.Validation("commission_amount", "must not be negative")
		}
		if req.CommissionRate != nil {
			return apperr.Validation("commission_rate", "not allowed for FIXED_AMOUNT")
		}
	default:
		return apperr.Validation("commission_type", "must be PERCENTAGE or FIXED_AMOUNT")
	}
	return nil
}

func (s *service) List(ctx context.Context, principal identity.Principal, req domain.ListRulesRequest) ([]*domain.CommissionRule, error) {
	if err := s.authz.Authorize(ctx, principal, req.OrgID, authz.ObjectCommissionRule, authz.ActionView); err != nil {
		return nil, err
	}

	opts := []option.QueryOption{option.WithOrder("id desc")}
	if req.CollectorID != nil {
		if *req.CollectorID == 0 {
			opts = append(opts, option.WithCondition("collector_id IS NULL"))
		} else {
			opts = append(opts, option.WithCondition("collector_id = ?", *req.CollectorID))
		}
	}
	if req.BillingType != "" {
		opts = append(opts, option.WithCondition("billing_type = ?", req.BillingType))
	}
	if req.ActiveOnly {
		opts = append(opts, option.WithCondition("is_active = ?", true))
	}
	return s.rules.Find(ctx, &domain.CommissionRule{OrgID: req.OrgID}, opts...)
}

func (s *service) Update(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID, req domain.UpdateRuleRequest) (*domain.CommissionRule, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectCommissionRule, authz.ActionUpdate); err != nil {
		return nil, err
	}

	rule, err := s.rules.FindOne(ctx, &domain.CommissionRule{ID: id, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, domain.ErrRuleNotFound
	}

	updates := map[string]any{"updated_at": s.clock.Now()}
	if req.Notes != nil {
		updates["notes"] = strings.TrimSpace(*req.Notes)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.EffectiveTo != nil {
		if rule.EffectiveFrom != nil && req.EffectiveTo.Before(*rule.EffectiveFrom) {
			return nil, apperr.Validation("effective_to", "must not precede effective_from")
		}
		updates["effective_to"] = *req.EffectiveTo
	}

	if err := s.rules.Update(ctx, id.String(), updates); err != nil {
		return nil, err
	}

	s.cache.InvalidateOrg(orgID)
	return s.rules.FindOne(ctx, &domain.CommissionRule{ID: id, OrgID: orgID})
}

func (s *service) Deactivate(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) error {
	inactive := false
	_, err := s.Update(ctx, principal, orgID, id, domain.UpdateRuleRequest{IsActive: &inactive})
	return err
}

func (s *service) Delete(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) error {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectCommissionRule, authz.ActionDelete); err != nil {
		return err
	}

	rule, err := s.rules.FindOne(ctx, &domain.CommissionRule{ID: id, OrgID: orgID})
	if err != nil {
		return err
	}
	if rule == nil {
		return domain.ErrRuleNotFound
	}

	if err := s.rules.Delete(ctx, id.String()); err != nil {
		return err
	}
	s.cache.InvalidateOrg(orgID)
	return nil
}

func (s *service) ResolveDefaults(ctx context.Context, principal identity.Principal, orgID snowflake.ID, collectorID snowflake.ID, billingMonth string) (map[string]domain.ResolvedDefault, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectCommissionRule, authz.ActionRuleResolve); err != nil {
		return nil, err
	}

	month, err := billing.ParseMonth(billingMonth)
	if err != nil {
		return nil, err
	}
	if collectorID == 0 {
		return nil, apperr.Validation("collector_id", "must be a valid id")
	}

	if cached, ok := s.cache.Get(orgID, collectorID, month); ok {
		return cached, nil
	}

	candidates, err := s.candidates(ctx, orgID, collectorID, month)
	if err != nil {
		return nil, err
	}

	defaults := resolve(candidates, collectorID)
	s.cache.Set(orgID, collectorID, month, defaults)
	return defaults, nil
}

// candidates fetches active rules scoped to the collector or the whole
// org whose effective window covers the first of the month, newest
// first. A rule taking effect mid-month applies from the next month on.
func (s *service) candidates(ctx context.Context, orgID, collectorID snowflake.ID, month string) ([]*domain.CommissionRule, error) {
	monthStart, _, err := billing.MonthBounds(month)
	if err != nil {
		return nil, err
	}

	return s.rules.Find(ctx, &domain.CommissionRule{OrgID: orgID},
		option.WithCondition("(collector_id = ? OR collector_id IS NULL)", collectorID),
		option.WithCondition("is_active = ?", true),
		option.WithCondition("(effective_from IS NULL OR effective_from <= ?)", monthStart),
		option.WithCondition("(effective_to IS NULL OR effective_to >= ?)", monthStart),
		option.WithOrder("id desc"),
	)
}

// resolve picks the winning rule per concrete billing type. Collector
// specificity is evaluated before type specificity: a collector-scoped
// ALL rule outranks an org-wide type-specific rule.
func resolve(candidates []*domain.CommissionRule, collectorID snowflake.ID) map[string]domain.ResolvedDefault {
	var collectorRules, orgRules []*domain.CommissionRule
	for _, rule := range candidates {
		if rule.CollectorID != nil && *rule.CollectorID == collectorID {
			collectorRules = append(collectorRules, rule)
		} else if rule.CollectorID == nil {
			orgRules = append(orgRules, rule)
		}
	}

	defaults := make(map[string]domain.ResolvedDefault, len(billing.ItemTypes))
	for _, billingType := range billing.ItemTypes {
		rule := selectForType(collectorRules, billingType)
		if rule == nil {
			rule = selectForType(orgRules, billingType)
		}
		if rule == nil {
			continue
		}
		defaults[billingType] = domain.ResolvedDefault{
			CommissionType:   rule.CommissionType,
			CommissionRate:   rule.CommissionRate,
			CommissionAmount: rule.CommissionAmount,
			SourceRuleID:     rule.ID.String(),
		}
	}
	return defaults
}

// selectForType expects rules ordered newest first and prefers an exact
// type match over an ALL rule within the same specificity group.
func selectForType(rules []*domain.CommissionRule, billingType string) *domain.CommissionRule {
	for _, rule := range rules {
		if rule.BillingType == billingType {
			return rule
		}
	}
	for _, rule := range rules {
		if rule.BillingType == billing.TypeAll {
			return rule
		}
	}
	return nil
}
