package authz

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/wasteflow/wasteflow/internal/audit/domain"
	"github.com/wasteflow/wasteflow/internal/identity"
	"github.com/wasteflow/wasteflow/internal/observability/metrics"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authz.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, principal identity.Principal, orgID snowflake.ID, object string, action string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	// System administrators bypass org scoping entirely.
	if principal.IsSystemAdmin {
		return nil
	}

	if orgID == 0 {
		return ErrInvalidOrganization
	}
	if principal.ActorID == 0 {
		return ErrInvalidActor
	}
	if !principal.MemberOf(orgID) {
		s.denied(ctx, principal, orgID, object, action)
		return ErrForbidden
	}

	roleName, err := s.roleName(ctx, principal, orgID)
	if err != nil {
		s.denied(ctx, principal, orgID, object, action)
		return err
	}

	subject := principal.Subject()
	domain := fmt.Sprintf("org:%s", orgID.String())
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.denied(ctx, principal, orgID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) roleName(ctx context.Context, principal identity.Principal, orgID snowflake.ID) (string, error) {
	// Org-scoped API keys act with admin rights inside their org.
	if principal.ActorType == identity.ActorTypeAPIKey {
		return "role:admin", nil
	}

	role, err := s.roleForUser(ctx, orgID, principal.ActorID)
	if err != nil {
		return "", err
	}
	if role == "" {
		return "", ErrForbidden
	}
	return fmt.Sprintf("role:%s", strings.ToLower(role)), nil
}

func (s *ServiceImpl) roleForUser(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM organization_members
		 WHERE org_id = ? AND user_id = ?
		 LIMIT 1`,
		orgID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}
	return strings.TrimSpace(row.Role), nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) denied(ctx context.Context, principal identity.Principal, orgID snowflake.ID, object string, action string) {
	if s.metrics != nil {
		s.metrics.RecordAuthzDenied(ctx, orgID.String(), object, action)
	}
	if s.auditSvc == nil {
		return
	}
	var actorID *string
	if principal.ActorID != 0 {
		id := principal.ActorID.String()
		actorID = &id
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &orgID, principal.ActorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"subject": principal.Subject(),
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	view := [][]string{
		{ObjectOrganization, ActionView},
		{ObjectCollector, ActionView},
		{ObjectStore, ActionView},
		{ObjectCollectionRecord, ActionView},
		{ObjectCommissionRule, ActionView},
		{ObjectCommissionRule, ActionRuleResolve},
		{ObjectBillingItem, ActionView},
		{ObjectBillingSummary, ActionView},
	}

	manage := [][]string{
		{ObjectCollector, ActionCreate},
		{ObjectCollector, ActionUpdate},
		{ObjectCollector, ActionDelete},
		{ObjectStore, ActionCreate},
		{ObjectStore, ActionUpdate},
		{ObjectCollectionRecord, ActionCreate},
		{ObjectCommissionRule, ActionCreate},
		{ObjectCommissionRule, ActionUpdate},
		{ObjectCommissionRule, ActionDelete},
		{ObjectBillingItem, ActionCreate},
		{ObjectBillingItem, ActionItemUpdateStatus},
		{ObjectBillingItem, ActionItemUpdateCommission},
		{ObjectBillingSummary, ActionSummaryGenerate},
		{ObjectBillingSummary, ActionSummarySubmit},
		{ObjectAuditLog, ActionView},
		{ObjectAPIKey, ActionView},
		{ObjectAPIKey, ActionCreate},
		{ObjectAPIKey, ActionDelete},
	}

	// Summary approval is reserved for system administrators, who bypass
	// the enforcer; the system role exists for in-process jobs running
	// without the bypass flag.
	system := [][]string{
		{ObjectBillingItem, ActionCreate},
		{ObjectBillingItem, ActionItemUpdateCommission},
		{ObjectBillingSummary, ActionSummaryGenerate},
		{ObjectBillingSummary, ActionSummaryApprove},
		{ObjectBillingSummary, ActionSummaryReject},
		{ObjectCommissionRule, ActionRuleResolve},
	}

	policies := make([][]string, 0, len(view)*2+len(manage)+len(system))
	for _, rule := range view {
		policies = append(policies, []string{"role:member", "*", rule[0], rule[1]})
		policies = append(policies, []string{"role:admin", "*", rule[0], rule[1]})
	}
	for _, rule := range manage {
		policies = append(policies, []string{"role:admin", "*", rule[0], rule[1]})
	}
	for _, rule := range system {
		policies = append(policies, []string{"role:system", "*", rule[0], rule[1]})
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
