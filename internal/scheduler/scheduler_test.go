package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wasteflow/wasteflow/internal/authz"
	itemdomain "github.com/wasteflow/wasteflow/internal/billingitem/domain"
	summarydomain "github.com/wasteflow/wasteflow/internal/billingsummary/domain"
	summaryservice "github.com/wasteflow/wasteflow/internal/billingsummary/service"
	"github.com/wasteflow/wasteflow/internal/cache"
	"github.com/wasteflow/wasteflow/internal/clock"
	collectiondomain "github.com/wasteflow/wasteflow/internal/collection/domain"
	collectionservice "github.com/wasteflow/wasteflow/internal/collection/service"
	collectordomain "github.com/wasteflow/wasteflow/internal/collector/domain"
	ruledomain "github.com/wasteflow/wasteflow/internal/commissionrule/domain"
	ruleservice "github.com/wasteflow/wasteflow/internal/commissionrule/service"
	"github.com/wasteflow/wasteflow/internal/config"
	"github.com/wasteflow/wasteflow/internal/identity"
	"github.com/wasteflow/wasteflow/pkg/db"
	"github.com/wasteflow/wasteflow/pkg/repository"
)

type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, principal identity.Principal, orgID snowflake.ID, object, action string) error {
	return nil
}

var _ authz.Service = allowAll{}

func newTestScheduler(t *testing.T) (*Scheduler, *gorm.DB, *snowflake.Node, *clock.FakeClock) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&collectiondomain.CollectionRecord{},
		&collectordomain.Collector{},
		&itemdomain.BillingItem{},
		&summarydomain.BillingSummary{},
		&ruledomain.CommissionRule{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 5, 2, 0, 0, 0, time.UTC))
	settings := config.NewStaticBillingSettingsHolder(config.DefaultBillingSettings())

	rules := ruleservice.NewService(ruleservice.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Authz:    allowAll{},
		Rules:    repository.ProvideStore[ruledomain.CommissionRule](conn),
		Settings: settings,
		Cache:    cache.NewDefaultsCache(),
	})
	collectionSvc := collectionservice.NewService(collectionservice.Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		Authz:      allowAll{},
		Records:    repository.ProvideStore[collectiondomain.CollectionRecord](conn),
		Collectors: repository.ProvideStore[collectordomain.Collector](conn),
		Rules:      rules,
		Settings:   settings,
	})
	summarySvc := summaryservice.NewService(summaryservice.Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fake,
		Authz:     allowAll{},
		Summaries: repository.ProvideStore[summarydomain.BillingSummary](conn),
	})

	sched, err := New(Params{
		DB:            conn,
		Log:           zap.NewNop(),
		Clock:         fake,
		CollectionSvc: collectionSvc,
		SummarySvc:    summarySvc,
	})
	require.NoError(t, err)
	return sched, conn, node, fake
}

func TestRunOnceProcessesPreviousMonth(t *testing.T) {
	sched, conn, node, _ := newTestScheduler(t)
	ctx := context.Background()
	orgID := node.Generate()

	collector := &collectordomain.Collector{
		ID:         node.Generate(),
		OrgID:      orgID,
		Name:       "Acme Hauling",
		Code:       "ACME",
		MonthlyFee: 20000,
		IsActive:   true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, conn.Create(collector).Error)

	record := &collectiondomain.CollectionRecord{
		ID:           node.Generate(),
		OrgID:        orgID,
		CollectorID:  collector.ID,
		StoreID:      node.Generate(),
		WasteItem:    "mixed waste",
		Quantity:     4,
		UnitPrice:    2500,
		Amount:       10000,
		BillingMonth: "2026-02",
		CollectedAt:  time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, conn.Create(record).Error)

	require.NoError(t, sched.RunOnce(ctx))

	var itemCount int64
	require.NoError(t, conn.Model(&itemdomain.BillingItem{}).
		Where("org_id = ? AND billing_month = ?", orgID, "2026-02").
		Count(&itemCount).Error)
	assert.Equal(t, int64(2), itemCount)

	var summaryCount int64
	require.NoError(t, conn.Model(&summarydomain.BillingSummary{}).
		Where("org_id = ? AND billing_month = ?", orgID, "2026-02").
		Count(&summaryCount).Error)
	assert.Equal(t, int64(1), summaryCount)

	// Idempotent: a second tick changes nothing.
	require.NoError(t, sched.RunOnce(ctx))

	require.NoError(t, conn.Model(&itemdomain.BillingItem{}).
		Where("org_id = ? AND billing_month = ?", orgID, "2026-02").
		Count(&itemCount).Error)
	assert.Equal(t, int64(2), itemCount)
	require.NoError(t, conn.Model(&summarydomain.BillingSummary{}).
		Where("org_id = ? AND billing_month = ?", orgID, "2026-02").
		Count(&summaryCount).Error)
	assert.Equal(t, int64(1), summaryCount)
}

func TestJobSelection(t *testing.T) {
	sched, conn, node, _ := newTestScheduler(t)
	sched.cfg.EnabledJobs = []string{"generate_summaries"}
	ctx := context.Background()
	orgID := node.Generate()

	collector := &collectordomain.Collector{
		ID:        node.Generate(),
		OrgID:     orgID,
		Name:      "Acme Hauling",
		Code:      "ACME",
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, conn.Create(collector).Error)
	record := &collectiondomain.CollectionRecord{
		ID:           node.Generate(),
		OrgID:        orgID,
		CollectorID:  collector.ID,
		StoreID:      node.Generate(),
		WasteItem:    "mixed waste",
		Quantity:     1,
		UnitPrice:    100,
		Amount:       100,
		BillingMonth: "2026-02",
		CollectedAt:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, conn.Create(record).Error)

	require.NoError(t, sched.RunOnce(ctx))

	var itemCount int64
	require.NoError(t, conn.Model(&itemdomain.BillingItem{}).Count(&itemCount).Error)
	assert.Equal(t, int64(0), itemCount)
}
