package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wasteflow/wasteflow/internal/authz"
	"github.com/wasteflow/wasteflow/internal/billing"
	"github.com/wasteflow/wasteflow/internal/billingitem/domain"
	"github.com/wasteflow/wasteflow/internal/clock"
	"github.com/wasteflow/wasteflow/internal/commission"
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

func newTestService(t *testing.T) (domain.Service, *snowflake.Node) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.BillingItem{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewSystemClock(),
		Authz:    allowAll{},
		Items:    repository.ProvideStore[domain.BillingItem](conn),
		Settings: config.NewStaticBillingSettingsHolder(config.DefaultBillingSettings()),
	})
	return svc, node
}

func createItem(t *testing.T, svc domain.Service, orgID, collectorID snowflake.ID, baseAmount int64) *domain.BillingItem {
	t.Helper()
	item, err := svc.Create(context.Background(), identity.System(), domain.CreateItemRequest{
		OrgID:        orgID,
		CollectorID:  collectorID,
		BillingMonth: "2026-01",
		BillingType:  billing.TypeMetered,
		Description:  "january pickups",
		BaseAmount:   baseAmount,
	})
	require.NoError(t, err)
	return item
}

func TestCreateComputesTax(t *testing.T) {
	svc, node := newTestService(t)

	item := createItem(t, svc, node.Generate(), node.Generate(), 10000)
	assert.Equal(t, domain.StatusDraft, item.Status)
	assert.Equal(t, int64(1000), item.TaxAmount)
	assert.Equal(t, int64(11000), item.TotalAmount)
	assert.Equal(t, int64(10000), item.NetAmount)
	assert.Nil(t, item.CommissionType)
}

func TestUpdateCommissionPercentage(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := node.Generate()

	item := createItem(t, svc, orgID, node.Generate(), 10000)

	updated, err := svc.UpdateCommission(ctx, principal, orgID, item.ID, commission.Input{
		Type: commission.TypePercentage,
		Rate: f64(8.5),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(850), updated.CommissionAmount)
	assert.Equal(t, int64(9150), updated.NetAmount)
	require.NotNil(t, updated.CommissionType)
	assert.Equal(t, commission.TypePercentage, *updated.CommissionType)
	assert.False(t, updated.IsManualCommission)
	// Invariant: totals never change with commission.
	assert.Equal(t, int64(11000), updated.TotalAmount)
}

func TestUpdateCommissionImmutableStates(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := node.Generate()

	item := createItem(t, svc, orgID, node.Generate(), 10000)
	_, err := svc.UpdateStatus(ctx, principal, orgID, item.ID, domain.StatusSubmitted, "")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, principal, orgID, item.ID, domain.StatusApproved, "")
	require.NoError(t, err)

	_, err = svc.UpdateCommission(ctx, principal, orgID, item.ID, commission.Input{
		Type: commission.TypePercentage,
		Rate: f64(5),
	})
	var immErr *domain.ImmutableStateError
	require.ErrorAs(t, err, &immErr)
	assert.Equal(t, domain.StatusApproved, immErr.Status)
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := node.Generate()

	item := createItem(t, svc, orgID, node.Generate(), 5000)

	_, err := svc.UpdateStatus(ctx, principal, orgID, item.ID, domain.StatusApproved, "")
	var trErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, domain.StatusDraft, trErr.Current)
	assert.Equal(t, domain.StatusApproved, trErr.Requested)
	assert.ElementsMatch(t, []string{domain.StatusSubmitted, domain.StatusCancelled}, trErr.Allowed)
}

func TestUpdateStatusRoundTrip(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := node.Generate()

	item := createItem(t, svc, orgID, node.Generate(), 5000)

	for _, status := range []string{
		domain.StatusSubmitted,
		domain.StatusRejected,
		domain.StatusDraft,
		domain.StatusSubmitted,
		domain.StatusApproved,
		domain.StatusFinalized,
	} {
		updated, err := svc.UpdateStatus(ctx, principal, orgID, item.ID, status, "")
		require.NoError(t, err, status)
		assert.Equal(t, status, updated.Status)
	}

	// FINALIZED is terminal.
	_, err := svc.UpdateStatus(ctx, principal, orgID, item.ID, domain.StatusDraft, "")
	var trErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Empty(t, trErr.Allowed)
}

func TestBatchUpdateCommissionSkipsImmutable(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := node.Generate()
	collectorID := node.Generate()

	editable := createItem(t, svc, orgID, collectorID, 10000)
	approved := createItem(t, svc, orgID, collectorID, 20000)
	_, err := svc.UpdateStatus(ctx, principal, orgID, approved.ID, domain.StatusSubmitted, "")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, principal, orgID, approved.ID, domain.StatusApproved, "")
	require.NoError(t, err)

	result, err := svc.BatchUpdateCommission(ctx, principal, []snowflake.ID{editable.ID, approved.ID}, commission.Input{
		Type: commission.TypePercentage,
		Rate: f64(10),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)

	got, err := svc.Get(ctx, principal, orgID, editable.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.CommissionAmount)

	untouched, err := svc.Get(ctx, principal, orgID, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), untouched.CommissionAmount)
}

func TestBatchUpdateCommissionCrossTenant(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()
	principal := identity.System()

	orgA := node.Generate()
	orgB := node.Generate()
	itemA := createItem(t, svc, orgA, node.Generate(), 10000)
	itemB := createItem(t, svc, orgB, node.Generate(), 10000)

	_, err := svc.BatchUpdateCommission(ctx, principal, []snowflake.ID{itemA.ID, itemB.ID}, commission.Input{
		Type: commission.TypePercentage,
		Rate: f64(10),
	})
	var crossErr *authz.CrossTenantBatchError
	require.ErrorAs(t, err, &crossErr)

	// No mutation happened on either side.
	got, err := svc.Get(ctx, principal, orgA, itemA.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CommissionType)
	got, err = svc.Get(ctx, principal, orgB, itemB.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CommissionType)
}

func TestBatchUpdateCommissionMissingItem(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := node.Generate()

	item := createItem(t, svc, orgID, node.Generate(), 10000)

	_, err := svc.BatchUpdateCommission(ctx, principal, []snowflake.ID{item.ID, node.Generate()}, commission.Input{
		Type: commission.TypePercentage,
		Rate: f64(10),
	})
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}
