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
	itemdomain "github.com/wasteflow/wasteflow/internal/billingitem/domain"
	"github.com/wasteflow/wasteflow/internal/billingsummary/domain"
	"github.com/wasteflow/wasteflow/internal/clock"
	"github.com/wasteflow/wasteflow/internal/identity"
	"github.com/wasteflow/wasteflow/internal/observability/metrics"
	"github.com/wasteflow/wasteflow/pkg/db"
	"github.com/wasteflow/wasteflow/pkg/db/option"
	"github.com/wasteflow/wasteflow/pkg/repository"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Authz     authz.Service
	Summaries repository.Repository[domain.BillingSummary]
	AuditSvc  auditdomain.Service `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	authz     authz.Service
	summaries repository.Repository[domain.BillingSummary]
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("billingsummary.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		authz:     p.Authz,
		summaries: p.Summaries,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *service) Generate(ctx context.Context, principal identity.Principal, orgID snowflake.ID, collectorID snowflake.ID, billingMonth string) (*domain.GenerateResult, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectBillingSummary, authz.ActionSummaryGenerate); err != nil {
		return nil, err
	}
	month, err := billing.ParseMonth(billingMonth)
	if err != nil {
		return nil, err
	}
	if collectorID == 0 {
		return nil, apperr.Validation("collector_id", "must be a valid id")
	}

	key := &domain.BillingSummary{OrgID: orgID, CollectorID: collectorID, BillingMonth: month}
	existing, err := s.summaries.FindOne(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.skip(ctx, domain.SkipAlreadyGenerated), nil
	}

	var result *domain.GenerateResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []*itemdomain.BillingItem
		if err := tx.WithContext(ctx).
			Where("org_id = ? AND collector_id = ? AND billing_month = ?", orgID, collectorID, month).
			Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			result = s.skip(ctx, domain.SkipNoItems)
			return nil
		}

		summary := s.aggregate(orgID, collectorID, month, items)
		if err := tx.WithContext(ctx).Create(summary).Error; err != nil {
			// A concurrent generator won the insert; that is the
			// idempotent outcome, not a failure.
			if db.IsDuplicateKeyErr(err) {
				result = s.skip(ctx, domain.SkipAlreadyGenerated)
				return nil
			}
			return err
		}
		result = &domain.GenerateResult{Summary: summary}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Summary != nil {
		if s.metrics != nil {
			s.metrics.RecordSummaryGenerated(ctx, "generated")
		}
		s.audit(ctx, principal, orgID, result.Summary.ID.String(), "billing_summary.generated", map[string]any{
			"collector_id":  collectorID.String(),
			"billing_month": month,
			"total_amount":  result.Summary.TotalAmount,
		})
	}
	return result, nil
}

func (s *service) skip(ctx context.Context, reason string) *domain.GenerateResult {
	if s.metrics != nil {
		s.metrics.RecordSummaryGenerated(ctx, "skipped")
	}
	return &domain.GenerateResult{Skipped: true, Reason: reason}
}

func (s *service) aggregate(orgID, collectorID snowflake.ID, month string, items []*itemdomain.BillingItem) *domain.BillingSummary {
	now := s.clock.Now()
	summary := &domain.BillingSummary{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		CollectorID:  collectorID,
		BillingMonth: month,
		Status:       domain.StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, item := range items {
		switch item.BillingType {
		case billing.TypeFixed:
			summary.TotalFixedAmount += item.BaseAmount
			summary.FixedCount++
		case billing.TypeMetered:
			summary.TotalMeteredAmount += item.BaseAmount
			summary.MeteredCount++
		default:
			summary.TotalOtherAmount += item.BaseAmount
			summary.OtherCount++
		}
		summary.TaxAmount += item.TaxAmount
		summary.TotalAmount += item.TotalAmount
	}
	summary.SubtotalAmount = summary.TotalFixedAmount + summary.TotalMeteredAmount + summary.TotalOtherAmount
	return summary
}

func (s *service) GenerateForMonth(ctx context.Context, principal identity.Principal, billingMonth string) (*domain.MonthResult, error) {
	month, err := billing.ParseMonth(billingMonth)
	if err != nil {
		return nil, err
	}

	var keys []struct {
		OrgID       snowflake.ID `gorm:"column:org_id"`
		CollectorID snowflake.ID `gorm:"column:collector_id"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT org_id, collector_id
		 FROM billing_items
		 WHERE billing_month = ? AND deleted_at IS NULL
		 ORDER BY org_id, collector_id`,
		month,
	).Scan(&keys).Error; err != nil {
		return nil, err
	}

	result := &domain.MonthResult{}
	for _, key := range keys {
		generated, err := s.Generate(ctx, principal, key.OrgID, key.CollectorID, month)
		if err != nil {
			return nil, err
		}
		if generated.Skipped {
			result.Skipped++
		} else {
			result.Generated++
		}
	}
	return result, nil
}

func (s *service) List(ctx context.Context, principal identity.Principal, req domain.ListSummariesRequest) ([]*domain.BillingSummary, error) {
	if err := s.authz.Authorize(ctx, principal, req.OrgID, authz.ObjectBillingSummary, authz.ActionView); err != nil {
		return nil, err
	}

	query := &domain.BillingSummary{
		OrgID:        req.OrgID,
		CollectorID:  req.CollectorID,
		BillingMonth: req.BillingMonth,
		Status:       req.Status,
	}
	return s.summaries.Find(ctx, query, option.WithOrder("id asc"))
}

func (s *service) Get(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) (*domain.BillingSummary, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectBillingSummary, authz.ActionView); err != nil {
		return nil, err
	}
	return s.find(ctx, orgID, id)
}

func (s *service) find(ctx context.Context, orgID snowflake.ID, id snowflake.ID) (*domain.BillingSummary, error) {
	summary, err := s.summaries.FindOne(ctx, &domain.BillingSummary{ID: id, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, domain.ErrSummaryNotFound
	}
	return summary, nil
}

func (s *service) Submit(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) (*domain.BillingSummary, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectBillingSummary, authz.ActionSummarySubmit); err != nil {
		return nil, err
	}

	summary, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if summary.Status != domain.StatusDraft {
		return nil, &domain.InvalidTransitionError{
			Current:   summary.Status,
			Requested: domain.StatusSubmitted,
			Allowed:   domain.AllowedTransitions(summary.Status),
		}
	}

	// Cross-entity gate: every constituent item must be APPROVED.
	var counts struct {
		Total    int `gorm:"column:total"`
		Approved int `gorm:"column:approved"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS total,
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS approved
		 FROM billing_items
		 WHERE org_id = ? AND collector_id = ? AND billing_month = ? AND deleted_at IS NULL`,
		itemdomain.StatusApproved,
		summary.OrgID,
		summary.CollectorID,
		summary.BillingMonth,
	).Scan(&counts).Error; err != nil {
		return nil, err
	}
	if counts.Approved != counts.Total {
		if s.metrics != nil {
			s.metrics.RecordSummarySubmission(ctx, "blocked")
		}
		return nil, &domain.IncompleteApprovalError{Approved: counts.Approved, Total: counts.Total}
	}

	now := s.clock.Now()
	updates := map[string]any{
		"status":       domain.StatusSubmitted,
		"submitted_at": now,
		"submitted_by": actorRef(principal),
		"updated_at":   now,
	}
	if err := s.summaries.Update(ctx, id.String(), updates); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordSummarySubmission(ctx, "submitted")
	}
	s.audit(ctx, principal, orgID, id.String(), "billing_summary.submitted", map[string]any{
		"billing_month": summary.BillingMonth,
		"total_amount":  summary.TotalAmount,
	})
	return s.find(ctx, orgID, id)
}

func (s *service) ApproveBatch(ctx context.Context, principal identity.Principal, ids []snowflake.ID) (int, error) {
	if !principal.IsSystemAdmin {
		return 0, authz.ErrForbidden
	}
	if len(ids) == 0 {
		return 0, apperr.Validation("summary_ids", "must not be empty")
	}

	now := s.clock.Now()
	return s.batchTransition(ctx, principal, ids, domain.StatusApproved, "billing_summary.approved", map[string]any{
		"approved_at": now,
		"approved_by": actorRef(principal),
	}, nil)
}

func (s *service) RejectBatch(ctx context.Context, principal identity.Principal, ids []snowflake.ID, reason string) (int, error) {
	if !principal.IsSystemAdmin {
		return 0, authz.ErrForbidden
	}
	if len(ids) == 0 {
		return 0, apperr.Validation("summary_ids", "must not be empty")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return 0, apperr.Validation("rejection_reason", "required when rejecting")
	}

	now := s.clock.Now()
	return s.batchTransition(ctx, principal, ids, domain.StatusRejected, "billing_summary.rejected", map[string]any{
		"rejected_at":      now,
		"rejected_by":      actorRef(principal),
		"rejection_reason": reason,
	}, map[string]any{"reason": reason})
}

// batchTransition moves every SUBMITTED summary in ids to next; other
// summaries in the list are silently left untouched.
func (s *service) batchTransition(ctx context.Context, principal identity.Principal, ids []snowflake.ID, next string, auditAction string, extraUpdates map[string]any, auditMeta map[string]any) (int, error) {
	var affected []*domain.BillingSummary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.summaries.WithTrx(tx)
		summaries, err := repo.Find(ctx, &domain.BillingSummary{}, option.WithCondition("id IN ?", ids))
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, summary := range summaries {
			if summary.Status != domain.StatusSubmitted {
				continue
			}
			updates := map[string]any{
				"status":     next,
				"updated_at": now,
			}
			for column, value := range extraUpdates {
				updates[column] = value
			}
			if err := repo.Update(ctx, summary.ID.String(), updates); err != nil {
				return err
			}
			affected = append(affected, summary)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, summary := range affected {
		if s.metrics != nil {
			s.metrics.RecordSummarySubmission(ctx, strings.ToLower(next))
		}
		meta := map[string]any{"billing_month": summary.BillingMonth}
		for key, value := range auditMeta {
			meta[key] = value
		}
		s.audit(ctx, principal, summary.OrgID, summary.ID.String(), auditAction, meta)
	}
	return len(affected), nil
}

func (s *service) audit(ctx context.Context, principal identity.Principal, orgID snowflake.ID, targetID string, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	var actorID *string
	if principal.ActorID != 0 {
		id := principal.ActorID.String()
		actorID = &id
	}
	_ = s.auditSvc.AuditLog(ctx, &orgID, principal.ActorType, actorID, action, "billing_summary", &targetID, metadata)
}

func actorRef(principal identity.Principal) *snowflake.ID {
	if principal.ActorID == 0 {
		return nil
	}
	id := principal.ActorID
	return &id
}
