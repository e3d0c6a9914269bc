package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wasteflow/wasteflow/internal/billing"
	itemdomain "github.com/wasteflow/wasteflow/internal/billingitem/domain"
	"github.com/wasteflow/wasteflow/internal/cache"
	"github.com/wasteflow/wasteflow/internal/clock"
	collectordomain "github.com/wasteflow/wasteflow/internal/collector/domain"
	"github.com/wasteflow/wasteflow/internal/collection/domain"
	"github.com/wasteflow/wasteflow/internal/commission"
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

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

type fixture struct {
	svc   domain.Service
	rules ruledomain.Service
	conn  *gorm.DB
	node  *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&domain.CollectionRecord{},
		&collectordomain.Collector{},
		&collectordomain.Store{},
		&itemdomain.BillingItem{},
		&ruledomain.CommissionRule{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	settings := config.NewStaticBillingSettingsHolder(config.DefaultBillingSettings())
	rules := ruleservice.NewService(ruleservice.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewSystemClock(),
		Authz:    allowAll{},
		Rules:    repository.ProvideStore[ruledomain.CommissionRule](conn),
		Settings: settings,
		Cache:    cache.NewDefaultsCache(),
	})
	svc := NewService(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewSystemClock(),
		Authz:      allowAll{},
		Records:    repository.ProvideStore[domain.CollectionRecord](conn),
		Collectors: repository.ProvideStore[collectordomain.Collector](conn),
		Rules:      rules,
		Settings:   settings,
	})
	return &fixture{svc: svc, rules: rules, conn: conn, node: node}
}

func (f *fixture) addCollector(t *testing.T, orgID snowflake.ID, code string, monthlyFee int64) snowflake.ID {
	t.Helper()
	collector := &collectordomain.Collector{
		ID:         f.node.Generate(),
		OrgID:      orgID,
		Name:       code,
		Code:       code,
		MonthlyFee: monthlyFee,
		IsActive:   true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, f.conn.Create(collector).Error)
	return collector.ID
}

func (f *fixture) addRecord(t *testing.T, orgID, collectorID, storeID snowflake.ID, quantity, unitPrice int64, collectedAt time.Time) {
	t.Helper()
	_, err := f.svc.Create(context.Background(), identity.System(), domain.CreateRecordRequest{
		OrgID:       orgID,
		CollectorID: collectorID,
		StoreID:     storeID,
		WasteItem:   "mixed waste",
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		CollectedAt: collectedAt,
	})
	require.NoError(t, err)
}

func (f *fixture) itemsFor(t *testing.T, orgID snowflake.ID, month string) []*itemdomain.BillingItem {
	t.Helper()
	var items []*itemdomain.BillingItem
	require.NoError(t, f.conn.
		Where("org_id = ? AND billing_month = ?", orgID, month).
		Order("id asc").
		Find(&items).Error)
	return items
}

func TestCreateRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := f.node.Generate()
	collectorID := f.addCollector(t, orgID, "ACME", 0)
	storeID := f.node.Generate()

	collectedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	record, err := f.svc.Create(ctx, principal, domain.CreateRecordRequest{
		OrgID:       orgID,
		CollectorID: collectorID,
		StoreID:     storeID,
		WasteItem:   "cardboard",
		Quantity:    12,
		UnitPrice:   150,
		CollectedAt: collectedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1800), record.Amount)
	assert.Equal(t, "2026-03", record.BillingMonth)

	_, err = f.svc.Create(ctx, principal, domain.CreateRecordRequest{
		OrgID: orgID, CollectorID: collectorID, StoreID: storeID,
		WasteItem: "  ", Quantity: 1, UnitPrice: 100,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidWasteItem)

	_, err = f.svc.Create(ctx, principal, domain.CreateRecordRequest{
		OrgID: orgID, CollectorID: collectorID, StoreID: storeID,
		WasteItem: "cardboard", Quantity: 0, UnitPrice: 100,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.svc.Create(ctx, principal, domain.CreateRecordRequest{
		OrgID: orgID, CollectorID: collectorID, StoreID: storeID,
		WasteItem: "cardboard", Quantity: 1, UnitPrice: -1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidUnitPrice)
}

func TestGenerateItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := f.node.Generate()

	contracted := f.addCollector(t, orgID, "CONTRACTED", 50000)
	metered := f.addCollector(t, orgID, "METERED-ONLY", 0)
	storeA := f.node.Generate()
	storeB := f.node.Generate()
	storeC := f.node.Generate()

	day := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	f.addRecord(t, orgID, contracted, storeA, 10, 1000, day)
	f.addRecord(t, orgID, contracted, storeA, 5, 1000, day.Add(24*time.Hour))
	f.addRecord(t, orgID, contracted, storeB, 2, 3000, day)
	f.addRecord(t, orgID, metered, storeC, 4, 2500, day)

	// Org-wide 10% on metered activity, flat 2000 on the contracted fee.
	meteredRule, err := f.rules.Create(ctx, principal, ruledomain.CreateRuleRequest{
		OrgID:          orgID,
		BillingType:    billing.TypeMetered,
		CommissionType: commission.TypePercentage,
		CommissionRate: f64(10),
	})
	require.NoError(t, err)
	fixedRule, err := f.rules.Create(ctx, principal, ruledomain.CreateRuleRequest{
		OrgID:            orgID,
		CollectorID:      &contracted,
		BillingType:      billing.TypeFixed,
		CommissionType:   commission.TypeFixedAmount,
		CommissionAmount: i64(2000),
	})
	require.NoError(t, err)

	result, err := f.svc.GenerateItems(ctx, principal, orgID, "2026-02")
	require.NoError(t, err)
	assert.Equal(t, 3, result.MeteredItems)
	assert.Equal(t, 1, result.FixedItems)
	assert.Equal(t, 0, result.SkippedCollectors)

	items := f.itemsFor(t, orgID, "2026-02")
	require.Len(t, items, 4)

	byKey := make(map[string]*itemdomain.BillingItem)
	for _, item := range items {
		assert.Equal(t, itemdomain.StatusDraft, item.Status)
		assert.Equal(t, item.BaseAmount+item.TaxAmount, item.TotalAmount)
		key := item.BillingType
		if item.StoreID != nil {
			key += ":" + item.StoreID.String()
		}
		byKey[key] = item
	}

	lineA := byKey[billing.TypeMetered+":"+storeA.String()]
	require.NotNil(t, lineA)
	assert.Equal(t, int64(15), lineA.Quantity)
	assert.Equal(t, int64(15000), lineA.BaseAmount)
	assert.Equal(t, int64(1500), lineA.TaxAmount)
	require.NotNil(t, lineA.CommissionType)
	assert.Equal(t, commission.TypePercentage, *lineA.CommissionType)
	assert.Equal(t, int64(1500), lineA.CommissionAmount)
	assert.Equal(t, int64(13500), lineA.NetAmount)
	require.NotNil(t, lineA.SourceRuleID)
	assert.Equal(t, meteredRule.ID, *lineA.SourceRuleID)
	assert.False(t, lineA.IsManualCommission)

	lineB := byKey[billing.TypeMetered+":"+storeB.String()]
	require.NotNil(t, lineB)
	assert.Equal(t, int64(6000), lineB.BaseAmount)
	assert.Equal(t, int64(600), lineB.CommissionAmount)

	fee := byKey[billing.TypeFixed]
	require.NotNil(t, fee)
	assert.Equal(t, contracted, fee.CollectorID)
	assert.Nil(t, fee.StoreID)
	assert.Equal(t, int64(50000), fee.BaseAmount)
	assert.Equal(t, int64(5000), fee.TaxAmount)
	require.NotNil(t, fee.SourceRuleID)
	assert.Equal(t, fixedRule.ID, *fee.SourceRuleID)
	assert.Equal(t, int64(2000), fee.CommissionAmount)
	assert.Equal(t, int64(48000), fee.NetAmount)
}

func TestGenerateItemsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := f.node.Generate()

	collectorID := f.addCollector(t, orgID, "ACME", 30000)
	f.addRecord(t, orgID, collectorID, f.node.Generate(), 3, 1000,
		time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC))

	first, err := f.svc.GenerateItems(ctx, principal, orgID, "2026-02")
	require.NoError(t, err)
	assert.Equal(t, 1, first.MeteredItems)
	assert.Equal(t, 1, first.FixedItems)

	second, err := f.svc.GenerateItems(ctx, principal, orgID, "2026-02")
	require.NoError(t, err)
	assert.Equal(t, 0, second.MeteredItems)
	assert.Equal(t, 0, second.FixedItems)
	assert.Equal(t, 1, second.SkippedCollectors)
	assert.Len(t, f.itemsFor(t, orgID, "2026-02"), 2)
}

func TestGenerateItemsWithoutDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := f.node.Generate()

	collectorID := f.addCollector(t, orgID, "NORULES", 0)
	f.addRecord(t, orgID, collectorID, f.node.Generate(), 2, 500,
		time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC))

	result, err := f.svc.GenerateItems(ctx, identity.System(), orgID, "2026-02")
	require.NoError(t, err)
	assert.Equal(t, 1, result.MeteredItems)

	items := f.itemsFor(t, orgID, "2026-02")
	require.Len(t, items, 1)
	assert.Nil(t, items[0].CommissionType)
	assert.Nil(t, items[0].SourceRuleID)
	assert.Equal(t, int64(0), items[0].CommissionAmount)
	assert.Equal(t, items[0].BaseAmount, items[0].NetAmount)
}

func TestGenerateItemsForMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	principal := identity.System()
	orgA := f.node.Generate()
	orgB := f.node.Generate()

	day := time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC)
	f.addRecord(t, orgA, f.addCollector(t, orgA, "A1", 0), f.node.Generate(), 1, 100, day)
	f.addRecord(t, orgB, f.addCollector(t, orgB, "B1", 0), f.node.Generate(), 1, 200, day)
	f.addCollector(t, orgB, "B2", 40000)

	result, err := f.svc.GenerateItemsForMonth(ctx, principal, "2026-02")
	require.NoError(t, err)
	assert.Equal(t, 2, result.MeteredItems)
	assert.Equal(t, 1, result.FixedItems)

	rerun, err := f.svc.GenerateItemsForMonth(ctx, principal, "2026-02")
	require.NoError(t, err)
	assert.Equal(t, 0, rerun.MeteredItems+rerun.FixedItems)
	assert.Equal(t, 3, rerun.SkippedCollectors)
}
