package authz

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wasteflow/wasteflow/internal/identity"
	orgdomain "github.com/wasteflow/wasteflow/internal/organization/domain"
	"github.com/wasteflow/wasteflow/pkg/db"
)

func newTestService(t *testing.T) (*ServiceImpl, *snowflake.Node) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&orgdomain.Organization{}, &orgdomain.OrganizationMember{}))

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	}).(*ServiceImpl)
	return svc, node
}

func addMember(t *testing.T, svc *ServiceImpl, node *snowflake.Node, orgID, userID snowflake.ID, role string) {
	t.Helper()
	require.NoError(t, svc.db.Create(&orgdomain.OrganizationMember{
		ID:     node.Generate(),
		OrgID:  orgID,
		UserID: userID,
		Role:   role,
	}).Error)
}

func TestAuthorizeMemberRoles(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	orgID := node.Generate()
	admin := node.Generate()
	member := node.Generate()
	addMember(t, svc, node, orgID, admin, orgdomain.RoleAdmin)
	addMember(t, svc, node, orgID, member, orgdomain.RoleMember)

	adminPrincipal := identity.Principal{
		ActorID:   admin,
		ActorType: identity.ActorTypeUser,
		OrgIDs:    []snowflake.ID{orgID},
	}
	memberPrincipal := identity.Principal{
		ActorID:   member,
		ActorType: identity.ActorTypeUser,
		OrgIDs:    []snowflake.ID{orgID},
	}

	assert.NoError(t, svc.Authorize(ctx, adminPrincipal, orgID, ObjectBillingItem, ActionItemUpdateCommission))
	assert.NoError(t, svc.Authorize(ctx, memberPrincipal, orgID, ObjectBillingItem, ActionView))

	err := svc.Authorize(ctx, memberPrincipal, orgID, ObjectBillingItem, ActionItemUpdateCommission)
	assert.ErrorIs(t, err, ErrForbidden)

	// Summary approval is never granted to org roles.
	err = svc.Authorize(ctx, adminPrincipal, orgID, ObjectBillingSummary, ActionSummaryApprove)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeNonMemberDenied(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	orgID := node.Generate()
	otherOrg := node.Generate()
	user := node.Generate()
	addMember(t, svc, node, orgID, user, orgdomain.RoleAdmin)

	principal := identity.Principal{
		ActorID:   user,
		ActorType: identity.ActorTypeUser,
		OrgIDs:    []snowflake.ID{orgID},
	}

	// The denial carries no hint of whether the org exists.
	err := svc.Authorize(ctx, principal, otherOrg, ObjectBillingItem, ActionView)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeSystemAdminBypass(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	orgID := node.Generate()
	admin := identity.Principal{
		ActorID:       node.Generate(),
		ActorType:     identity.ActorTypeUser,
		IsSystemAdmin: true,
	}

	assert.NoError(t, svc.Authorize(ctx, admin, orgID, ObjectBillingSummary, ActionSummaryApprove))
	assert.NoError(t, svc.Authorize(ctx, identity.System(), orgID, ObjectBillingSummary, ActionSummaryReject))
}

func TestAuthorizeAPIKeyActsAsAdmin(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	orgID := node.Generate()
	principal := identity.Principal{
		ActorID:   node.Generate(),
		ActorType: identity.ActorTypeAPIKey,
		OrgIDs:    []snowflake.ID{orgID},
	}

	assert.NoError(t, svc.Authorize(ctx, principal, orgID, ObjectBillingSummary, ActionSummaryGenerate))
	err := svc.Authorize(ctx, principal, orgID, ObjectBillingSummary, ActionSummaryApprove)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSingleOrg(t *testing.T) {
	a := snowflake.ID(101)
	b := snowflake.ID(202)

	org, err := SingleOrg([]snowflake.ID{a, a, a})
	require.NoError(t, err)
	assert.Equal(t, a, org)

	_, err = SingleOrg(nil)
	assert.ErrorIs(t, err, ErrInvalidOrganization)

	_, err = SingleOrg([]snowflake.ID{a, b})
	var crossErr *CrossTenantBatchError
	require.ErrorAs(t, err, &crossErr)
	assert.Len(t, crossErr.Orgs, 2)
}
