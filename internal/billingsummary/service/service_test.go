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

	"github.com/wasteflow/wasteflow/internal/apperr"
	"github.com/wasteflow/wasteflow/internal/authz"
	"github.com/wasteflow/wasteflow/internal/billing"
	itemdomain "github.com/wasteflow/wasteflow/internal/billingitem/domain"
	"github.com/wasteflow/wasteflow/internal/billingsummary/domain"
	"github.com/wasteflow/wasteflow/internal/clock"
	"github.com/wasteflow/wasteflow/internal/identity"
	"github.com/wasteflow/wasteflow/pkg/db"
	"github.com/wasteflow/wasteflow/pkg/db/option"
	"github.com/wasteflow/wasteflow/pkg/repository"
)

type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, principal identity.Principal, orgID snowflake.ID, object, action string) error {
	return nil
}

type fixture struct {
	svc  domain.Service
	conn *gorm.DB
	node *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&itemdomain.BillingItem{}, &domain.BillingSummary{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewSystemClock(),
		Authz:     allowAll{},
		Summaries: repository.ProvideStore[domain.BillingSummary](conn),
	})
	return &fixture{svc: svc, conn: conn, node: node}
}

func (f *fixture) addItem(t *testing.T, orgID, collectorID snowflake.ID, billingType string, base, taxAmount int64, status string) *itemdomain.BillingItem {
	t.Helper()
	now := time.Now().UTC()
	item := &itemdomain.BillingItem{
		ID:           f.node.Generate(),
		OrgID:        orgID,
		CollectorID:  collectorID,
		BillingMonth: "2026-01",
		BillingType:  billingType,
		BaseAmount:   base,
		TaxAmount:    taxAmount,
		TotalAmount:  base + taxAmount,
		NetAmount:    base,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.conn.Create(item).Error)
	return item
}

func TestGenerateAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := f.node.Generate()
	collectorID := f.node.Generate()

	f.addItem(t, orgID, collectorID, billing.TypeFixed, 50000, 5000, itemdomain.StatusDraft)
	f.addItem(t, orgID, collectorID, billing.TypeMetered, 10000, 1000, itemdomain.StatusDraft)
	f.addItem(t, orgID, collectorID, billing.TypeMetered, 25000, 2500, itemdomain.StatusDraft)
	f.addItem(t, orgID, collectorID, billing.TypeOther, 3000, 300, itemdomain.StatusDraft)

	result, err := f.svc.Generate(ctx, principal, orgID, collectorID, "2026-01")
	require.NoError(t, err)
	require.False(t, result.Skipped)
	summary := result.Summary

	assert.Equal(t, domain.StatusDraft, summary.Status)
	assert.Equal(t, int64(50000), summary.TotalFixedAmount)
	assert.Equal(t, int64(35000), summary.TotalMeteredAmount)
	assert.Equal(t, int64(3000), summary.TotalOtherAmount)
	assert.Equal(t, 1, summary.FixedCount)
	assert.Equal(t, 2, summary.MeteredCount)
	assert.Equal(t, 1, summary.OtherCount)
	assert.Equal(t, int64(88000), summary.SubtotalAmount)
	assert.Equal(t, int64(8800), summary.TaxAmount)
	assert.Equal(t, int64(96800), summary.TotalAmount)

	// The summary figures trace to the items exactly.
	assert.Equal(t, summary.SubtotalAmount, summary.TotalFixedAmount+summary.TotalMeteredAmount+summary.TotalOtherAmount)
	assert.Equal(t, summary.TotalAmount, summary.SubtotalAmount+summary.TaxAmount)
}

func TestGenerateIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := f.node.Generate()
	collectorID := f.node.Generate()

	f.addItem(t, orgID, collectorID, billing.TypeMetered, 10000, 1000, itemdomain.StatusDraft)

	first, err := f.svc.Generate(ctx, principal, orgID, collectorID, "2026-01")
	require.NoError(t, err)
	require.False(t, first.Skipped)

	second, err := f.svc.Generate(ctx, principal, orgID, collectorID, "2026-01")
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, domain.SkipAlreadyGenerated, second.Reason)

	var count int64
	require.NoError(t, f.conn.Model(&domain.BillingSummary{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// staleSummaryRepo misses a configurable number of FindOne lookups,
// simulating a generator racing another instance whose insert is not
// yet visible at pre-check time.
type staleSummaryRepo struct {
	repository.Repository[domain.BillingSummary]
	misses int
}

func (r *staleSummaryRepo) FindOne(ctx context.Context, query *domain.BillingSummary, opts ...option.QueryOption) (*domain.BillingSummary, error) {
	if r.misses > 0 {
		r.misses--
		return nil, nil
	}
	return r.Repository.FindOne(ctx, query, opts...)
}

func TestGenerateConcurrentDuplicateSkips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := f.node.Generate()
	collectorID := f.node.Generate()

	// The uniqueness index normally comes from the migrations.
	require.NoError(t, f.conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_billing_summaries ON billing_summaries (org_id, collector_id, billing_month) WHERE deleted_at IS NULL`,
	).Error)

	f.addItem(t, orgID, collectorID, billing.TypeMetered, 10000, 1000, itemdomain.StatusDraft)

	first, err := f.svc.Generate(ctx, principal, orgID, collectorID, "2026-01")
	require.NoError(t, err)
	require.False(t, first.Skipped)

	racing := NewService(Params{
		DB:    f.conn,
		Log:   zap.NewNop(),
		GenID: f.node,
		Clock: clock.NewSystemClock(),
		Authz: allowAll{},
		Summaries: &staleSummaryRepo{
			Repository: repository.ProvideStore[domain.BillingSummary](f.conn),
			misses:     1,
		},
	})

	// The pre-check misses, so the insert runs and hits the unique
	// index; the conflict is reported as an idempotent skip.
	second, err := racing.Generate(ctx, principal, orgID, collectorID, "2026-01")
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, domain.SkipAlreadyGenerated, second.Reason)

	var count int64
	require.NoError(t, f.conn.Model(&domain.BillingSummary{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGenerateNoItems(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Generate(context.Background(), identity.System(), f.node.Generate(), f.node.Generate(), "2026-01")
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, domain.SkipNoItems, result.Reason)
}

func TestGenerateForMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := f.node.Generate()
	collectorA := f.node.Generate()
	collectorB := f.node.Generate()

	f.addItem(t, orgID, collectorA, billing.TypeMetered, 10000, 1000, itemdomain.StatusDraft)
	f.addItem(t, orgID, collectorB, billing.TypeFixed, 20000, 2000, itemdomain.StatusDraft)

	result, err := f.svc.GenerateForMonth(ctx, principal, "2026-01")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Generated)
	assert.Equal(t, 0, result.Skipped)

	// Re-running the job is safe.
	result, err = f.svc.GenerateForMonth(ctx, principal, "2026-01")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Generated)
	assert.Equal(t, 2, result.Skipped)
}

func TestSubmitGatedOnItemApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	principal := identity.System()
	orgID := f.node.Generate()
	collectorID := f.node.Generate()

	f.addItem(t, orgID, collectorID, billing.TypeMetered, 10000, 1000, itemdomain.StatusApproved)
	pending := f.addItem(t, orgID, collectorID, billing.TypeMetered, 5000, 500, itemdomain.StatusSubmitted)

	result, err := f.svc.Generate(ctx, principal, orgID, collectorID, "2026-01")
	require.NoError(t, err)
	summaryID := result.Summary.ID

	_, err = f.svc.Submit(ctx, principal, orgID, summaryID)
	var gateErr *domain.IncompleteApprovalError
	require.ErrorAs(t, err, &gateErr)
	assert.Equal(t, 1, gateErr.Approved)
	assert.Equal(t, 2, gateErr.Total)

	require.NoError(t, f.conn.Model(pending).Update("status", itemdomain.StatusApproved).Error)

	submitted, err := f.svc.Submit(ctx, principal, orgID, summaryID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, submitted.Status)
	assert.NotNil(t, submitted.SubmittedAt)

	// Submitting twice is an invalid transition.
	_, err = f.svc.Submit(ctx, principal, orgID, summaryID)
	var trErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, domain.StatusSubmitted, trErr.Current)
}

func submittedSummary(t *testing.T, f *fixture, orgID snowflake.ID) *domain.BillingSummary {
	t.Helper()
	ctx := context.Background()
	principal := identity.System()
	collectorID := f.node.Generate()
	f.addItem(t, orgID, collectorID, billing.TypeMetered, 10000, 1000, itemdomain.StatusApproved)

	result, err := f.svc.Generate(ctx, principal, orgID, collectorID, "2026-01")
	require.NoError(t, err)
	summary, err := f.svc.Submit(ctx, principal, orgID, result.Summary.ID)
	require.NoError(t, err)
	return summary
}

func TestApproveBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := f.node.Generate()

	submitted := submittedSummary(t, f, orgID)
	rejected := submittedSummary(t, f, orgID)
	_, err := f.svc.RejectBatch(ctx, identity.System(), []snowflake.ID{rejected.ID}, "resubmit with corrected tonnage")
	require.NoError(t, err)

	// The rejected summary and the unknown id are silently left alone.
	count, err := f.svc.ApproveBatch(ctx, identity.System(), []snowflake.ID{submitted.ID, rejected.ID, f.node.Generate()})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := f.svc.Get(ctx, identity.System(), orgID, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.Status)
	assert.NotNil(t, got.ApprovedAt)
}

func TestApproveBatchSystemAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := f.node.Generate()

	orgAdmin := identity.Principal{
		ActorID:   f.node.Generate(),
		ActorType: identity.ActorTypeUser,
		OrgIDs:    []snowflake.ID{orgID},
	}
	_, err := f.svc.ApproveBatch(ctx, orgAdmin, []snowflake.ID{f.node.Generate()})
	assert.ErrorIs(t, err, authz.ErrForbidden)
	_, err = f.svc.RejectBatch(ctx, orgAdmin, []snowflake.ID{f.node.Generate()}, "no")
	assert.ErrorIs(t, err, authz.ErrForbidden)
}

func TestRejectBatchRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := f.node.Generate()
	submitted := submittedSummary(t, f, orgID)

	_, err := f.svc.RejectBatch(ctx, identity.System(), []snowflake.ID{submitted.ID}, "  ")
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rejection_reason", verr.Field)

	count, err := f.svc.RejectBatch(ctx, identity.System(), []snowflake.ID{submitted.ID}, "duplicate manifest")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := f.svc.Get(ctx, identity.System(), orgID, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, got.Status)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, "duplicate manifest", *got.RejectionReason)
}
