// Package seed bootstraps a demo organization so a fresh install has
// data to explore.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/wasteflow/wasteflow/internal/billing"
	collectiondomain "github.com/wasteflow/wasteflow/internal/collection/domain"
	collectordomain "github.com/wasteflow/wasteflow/internal/collector/domain"
	"github.com/wasteflow/wasteflow/internal/commission"
	ruledomain "github.com/wasteflow/wasteflow/internal/commissionrule/domain"
	organizationdomain "github.com/wasteflow/wasteflow/internal/organization/domain"
)

const (
	demoOrgName = "Demo Waste Co"
	demoOrgSlug = "demo-waste-co"
)

// EnsureDemoData seeds a demo organization with collectors, stores,
// commission rules and last month's collection records. Safe to run on
// every startup; an existing demo org is left untouched.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing organizationdomain.Organization
		err := tx.WithContext(ctx).Where("slug = ?", demoOrgSlug).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		org := organizationdomain.Organization{
			ID:           node.Generate(),
			Name:         demoOrgName,
			Slug:         demoOrgSlug,
			TimezoneName: "UTC",
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
			return err
		}

		member := organizationdomain.OrganizationMember{
			ID:        node.Generate(),
			OrgID:     org.ID,
			UserID:    node.Generate(),
			Role:      organizationdomain.RoleAdmin,
			CreatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&member).Error; err != nil {
			return err
		}

		contracted := collectordomain.Collector{
			ID:         node.Generate(),
			OrgID:      org.ID,
			Name:       "Greenline Hauling",
			Code:       "GREENLINE",
			MonthlyFee: 150000,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		metered := collectordomain.Collector{
			ID:        node.Generate(),
			OrgID:     org.ID,
			Name:      "City Recyclers",
			Code:      "CITYREC",
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&contracted).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Create(&metered).Error; err != nil {
			return err
		}

		stores := []collectordomain.Store{
			{ID: node.Generate(), OrgID: org.ID, CollectorID: contracted.ID, Name: "Central Market", IsActive: true, CreatedAt: now, UpdatedAt: now},
			{ID: node.Generate(), OrgID: org.ID, CollectorID: contracted.ID, Name: "North Depot", IsActive: true, CreatedAt: now, UpdatedAt: now},
			{ID: node.Generate(), OrgID: org.ID, CollectorID: metered.ID, Name: "Harbor Plaza", IsActive: true, CreatedAt: now, UpdatedAt: now},
		}
		for i := range stores {
			if err := tx.WithContext(ctx).Create(&stores[i]).Error; err != nil {
				return err
			}
		}

		rate := 8.5
		feeCommission := int64(10000)
		rules := []ruledomain.CommissionRule{
			{
				ID:             node.Generate(),
				OrgID:          org.ID,
				BillingType:    billing.TypeMetered,
				CommissionType: commission.TypePercentage,
				CommissionRate: &rate,
				IsActive:       true,
				Notes:          "org default for metered activity",
				CreatedAt:      now,
				UpdatedAt:      now,
			},
			{
				ID:               node.Generate(),
				OrgID:            org.ID,
				CollectorID:      &contracted.ID,
				BillingType:      billing.TypeFixed,
				CommissionType:   commission.TypeFixedAmount,
				CommissionAmount: &feeCommission,
				IsActive:         true,
				Notes:            "contracted flat deduction",
				CreatedAt:        now,
				UpdatedAt:        now,
			},
		}
		for i := range rules {
			if err := tx.WithContext(ctx).Create(&rules[i]).Error; err != nil {
				return err
			}
		}

		month := billing.PreviousMonth(now)
		monthStart, _, err := billing.MonthBounds(month)
		if err != nil {
			return err
		}
		records := []struct {
			Collector snowflake.ID
			Store     snowflake.ID
			Item      string
			Qty       int64
			Price     int64
			Day       int
		}{
			{contracted.ID, stores[0].ID, "cardboard", 40, 1200, 3},
			{contracted.ID, stores[0].ID, "mixed waste", 25, 2000, 10},
			{contracted.ID, stores[1].ID, "glass", 12, 1500, 17},
			{metered.ID, stores[2].ID, "organic", 60, 900, 8},
		}
		for _, r := range records {
			collectedAt := monthStart.AddDate(0, 0, r.Day)
			record := collectiondomain.CollectionRecord{
				ID:           node.Generate(),
				OrgID:        org.ID,
				CollectorID:  r.Collector,
				StoreID:      r.Store,
				WasteItem:    r.Item,
				Quantity:     r.Qty,
				UnitPrice:    r.Price,
				Amount:       r.Qty * r.Price,
				BillingMonth: month,
				CollectedAt:  collectedAt,
				CreatedAt:    now,
			}
			if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
				return err
			}
		}

		return nil
	})
}
