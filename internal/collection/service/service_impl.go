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
	"github.com/wasteflow/wasteflow/internal/clock"
	collectordomain "github.com/wasteflow/wasteflow/internal/collector/domain"
	"github.com/wasteflow/wasteflow/internal/collection/domain"
	"github.com/wasteflow/wasteflow/internal/commission"
	ruledomain "github.com/wasteflow/wasteflow/internal/commissionrule/domain"
	"github.com/wasteflow/wasteflow/internal/config"
	"github.com/wasteflow/wasteflow/internal/identity"
	"github.com/wasteflow/wasteflow/internal/tax"
	"github.com/wasteflow/wasteflow/pkg/db/option"
	"github.com/wasteflow/wasteflow/pkg/repository"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Authz      authz.Service
	Records    repository.Repository[domain.CollectionRecord]
	Collectors repository.Repository[collectordomain.Collector]
	Rules      ruledomain.Service
	Settings   *config.BillingSettingsHolder
	AuditSvc   auditdomain.Service `optional:"true"`
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	authz      authz.Service
	records    repository.Repository[domain.CollectionRecord]
	collectors repository.Repository[collectordomain.Collector]
	rules      ruledomain.Service
	settings   *config.BillingSettingsHolder
	auditSvc   auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("collection.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		authz:      p.Authz,
		records:    p.Records,
		collectors: p.Collectors,
		rules:      p.Rules,
		settings:   p.Settings,
		auditSvc:   p.AuditSvc,
	}
}

func (s *service) Create(ctx context.Context, principal identity.Principal, req domain.CreateRecordRequest) (*domain.CollectionRecord, error) {
	if err := s.authz.Authorize(ctx, principal, req.OrgID, authz.ObjectCollectionRecord, authz.ActionCreate); err != nil {
		return nil, err
	}

	wasteItem := strings.TrimSpace(req.WasteItem)
	if wasteItem == "" {
		return nil, domain.ErrInvalidWasteItem
	}
	if req.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if req.UnitPrice < 0 {
		return nil, domain.ErrInvalidUnitPrice
	}
	if req.CollectorID == 0 {
		return nil, apperr.Validation("collector_id", "must be a valid id")
	}
	if req.StoreID == 0 {
		return nil, apperr.Validation("store_id", "must be a valid id")
	}

	collectedAt := req.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = s.clock.Now()
	}

	record := &domain.CollectionRecord{
		ID:           s.genID.Generate(),
		OrgID:        req.OrgID,
		CollectorID:  req.CollectorID,
		StoreID:      req.StoreID,
		WasteItem:    wasteItem,
		Quantity:     req.Quantity,
		UnitPrice:    req.UnitPrice,
		Amount:       req.Quantity * req.UnitPrice,
		BillingMonth: collectedAt.UTC().Format(billing.MonthLayout),
		CollectedAt:  collectedAt.UTC(),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) List(ctx context.Context, principal identity.Principal, req domain.ListRecordsRequest) ([]*domain.CollectionRecord, error) {
	if err := s.authz.Authorize(ctx, principal, req.OrgID, authz.ObjectCollectionRecord, authz.ActionView); err != nil {
		return nil, err
	}

	query := &domain.CollectionRecord{
		OrgID:        req.OrgID,
		CollectorID:  req.CollectorID,
		StoreID:      req.StoreID,
		BillingMonth: req.BillingMonth,
	}
	return s.records.Find(ctx, query, option.WithOrder("collected_at asc, id asc"))
}

// storeActivity is one (collector, store) roll-up for the month.
type storeActivity struct {
	CollectorID snowflake.ID `gorm:"column:collector_id"`
	StoreID     snowflake.ID `gorm:"column:store_id"`
	Quantity    int64        `gorm:"column:quantity"`
	Amount      int64        `gorm:"column:amount"`
}

func (s *service) GenerateItems(ctx context.Context, principal identity.Principal, orgID snowflake.ID, billingMonth string) (*domain.GenerateItemsResult, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectBillingItem, authz.ActionCreate); err != nil {
		return nil, err
	}
	month, err := billing.ParseMonth(billingMonth)
	if err != nil {
		return nil, err
	}

	collectors, err := s.collectors.Find(ctx, &collectordomain.Collector{OrgID: orgID},
		option.WithCondition("is_active = ?", true),
		option.WithOrder("id asc"),
	)
	if err != nil {
		return nil, err
	}

	var activity []storeActivity
	if err := s.db.WithContext(ctx).Raw(
		`SELECT collector_id, store_id, SUM(quantity) AS quantity, SUM(amount) AS amount
		 FROM collection_records
		 WHERE org_id = ? AND billing_month = ? AND deleted_at IS NULL
		 GROUP BY collector_id, store_id
		 ORDER BY collector_id, store_id`,
		orgID, month,
	).Scan(&activity).Error; err != nil {
		return nil, err
	}
	activityByCollector := make(map[snowflake.ID][]storeActivity)
	for _, row := range activity {
		activityByCollector[row.CollectorID] = append(activityByCollector[row.CollectorID], row)
	}

	result := &domain.GenerateItemsResult{}
	settings := s.settings.Get()
	mode := tax.ParseRoundingMode(settings.TaxRounding)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, collector := range collectors {
			rows := activityByCollector[collector.ID]
			if len(rows) == 0 && collector.MonthlyFee <= 0 {
				continue
			}

			// Re-running generation must not double-bill a collector.
			var existing int64
			if err := tx.WithContext(ctx).Model(&itemdomain.BillingItem{}).
				Where("org_id = ? AND collector_id = ? AND billing_month = ?", orgID, collector.ID, month).
				Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				result.SkippedCollectors++
				continue
			}

			defaults, err := s.rules.ResolveDefaults(ctx, principal, orgID, collector.ID, month)
			if err != nil {
				return err
			}

			for _, row := range rows {
				storeID := row.StoreID
				item := s.buildItem(orgID, collector.ID, &storeID, month, billing.TypeMetered,
					"metered collections", row.Quantity, row.Amount, settings.DefaultTaxRate, mode)
				if err := applyDefault(item, defaults[billing.TypeMetered]); err != nil {
					return err
				}
				if err := tx.WithContext(ctx).Create(item).Error; err != nil {
					return err
				}
				result.MeteredItems++
			}

			if collector.MonthlyFee > 0 {
				item := s.buildItem(orgID, collector.ID, nil, month, billing.TypeFixed,
					"monthly contract fee", 1, collector.MonthlyFee, settings.DefaultTaxRate, mode)
				if err := applyDefault(item, defaults[billing.TypeFixed]); err != nil {
					return err
				}
				if err := tx.WithContext(ctx).Create(item).Error; err != nil {
					return err
				}
				result.FixedItems++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("billing items generated",
		zap.String("org_id", orgID.String()),
		zap.String("billing_month", month),
		zap.Int("metered_items", result.MeteredItems),
		zap.Int("fixed_items", result.FixedItems),
		zap.Int("skipped_collectors", result.SkippedCollectors),
	)
	if s.auditSvc != nil && (result.MeteredItems > 0 || result.FixedItems > 0) {
		_ = s.auditSvc.AuditLog(ctx, &orgID, principal.ActorType, nil, "billing_item.generated", "billing_item", nil, map[string]any{
			"billing_month": month,
			"metered_items": result.MeteredItems,
			"fixed_items":   result.FixedItems,
		})
	}
	return result, nil
}

func (s *service) buildItem(orgID, collectorID snowflake.ID, storeID *snowflake.ID, month, billingType, description string, quantity, baseAmount int64, taxRate float64, mode tax.RoundingMode) *itemdomain.BillingItem {
	taxAmount, totalAmount := tax.CalculateIncluded(baseAmount, taxRate, mode)
	now := s.clock.Now()
	return &itemdomain.BillingItem{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		CollectorID:  collectorID,
		StoreID:      storeID,
		BillingMonth: month,
		BillingType:  billingType,
		Description:  description,
		Quantity:     quantity,
		BaseAmount:   baseAmount,
		TaxAmount:    taxAmount,
		TotalAmount:  totalAmount,
		NetAmount:    baseAmount,
		Status:       itemdomain.StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// applyDefault fills an item's commission from a resolved rule. A zero
// default leaves the commission unset for manual review.
func applyDefault(item *itemdomain.BillingItem, def ruledomain.ResolvedDefault) error {
	if def.CommissionType == "" {
		return nil
	}

	applied, err := commission.Apply(item.BaseAmount, commission.Input{
		Type:   def.CommissionType,
		Rate:   def.CommissionRate,
		Amount: def.CommissionAmount,
	})
	if err != nil {
		return err
	}

	commissionType := applied.Type
	item.CommissionType = &commissionType
	item.CommissionRate = applied.Rate
	item.CommissionAmount = applied.Amount
	item.NetAmount = applied.NetAmount

	if sourceID, err := snowflake.ParseString(def.SourceRuleID); err == nil && sourceID != 0 {
		item.SourceRuleID = &sourceID
	}
	return nil
}

func (s *service) GenerateItemsForMonth(ctx context.Context, principal identity.Principal, billingMonth string) (*domain.GenerateItemsResult, error) {
	month, err := billing.ParseMonth(billingMonth)
	if err != nil {
		return nil, err
	}

	var orgIDs []snowflake.ID
	if err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT org_id FROM collectors WHERE is_active = ? AND deleted_at IS NULL ORDER BY org_id`,
		true,
	).Scan(&orgIDs).Error; err != nil {
		return nil, err
	}

	total := &domain.GenerateItemsResult{}
	for _, orgID := range orgIDs {
		result, err := s.GenerateItems(ctx, principal, orgID, month)
		if err != nil {
			return nil, err
		}
		total.MeteredItems += result.MeteredItems
		total.FixedItems += result.FixedItems
		total.SkippedCollectors += result.SkippedCollectors
	}
	return total, nil
}
