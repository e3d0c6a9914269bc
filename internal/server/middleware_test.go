package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	apikeydomain "github.com/wasteflow/wasteflow/internal/apikey/domain"
	itemdomain "github.com/wasteflow/wasteflow/internal/billingitem/domain"
	"github.com/wasteflow/wasteflow/internal/commission"
	"github.com/wasteflow/wasteflow/internal/config"
	"github.com/wasteflow/wasteflow/internal/identity"
	organizationdomain "github.com/wasteflow/wasteflow/internal/organization/domain"
)

type fakeAPIKeyService struct {
	principal identity.Principal
	resolved  string
}

func (f *fakeAPIKeyService) List(ctx context.Context, principal identity.Principal, orgID snowflake.ID) ([]apikeydomain.Response, error) {
	_ = ctx
	_ = principal
	_ = orgID
	return nil, nil
}

func (f *fakeAPIKeyService) Create(ctx context.Context, principal identity.Principal, orgID snowflake.ID, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	_ = ctx
	_ = principal
	_ = orgID
	_ = req
	return nil, nil
}

func (f *fakeAPIKeyService) Rotate(ctx context.Context, principal identity.Principal, orgID snowflake.ID, keyID string) (*apikeydomain.SecretResponse, error) {
	_ = ctx
	_ = principal
	_ = orgID
	_ = keyID
	return nil, nil
}

func (f *fakeAPIKeyService) Revoke(ctx context.Context, principal identity.Principal, orgID snowflake.ID, keyID string) error {
	_ = ctx
	_ = principal
	_ = orgID
	_ = keyID
	return nil
}

func (f *fakeAPIKeyService) Resolve(ctx context.Context, raw string) (identity.Principal, error) {
	_ = ctx
	f.resolved = raw
	if raw != "wf_live_key_good" {
		return identity.Principal{}, apikeydomain.ErrInvalidAPIKey
	}
	return f.principal, nil
}

type fakeOrgService struct {
	memberships []organizationdomain.OrganizationMember
}

func (f *fakeOrgService) Create(ctx context.Context, userID snowflake.ID, req organizationdomain.CreateOrganizationRequest) (*organizationdomain.OrganizationResponse, error) {
	_ = ctx
	_ = userID
	_ = req
	return nil, nil
}

func (f *fakeOrgService) GetByID(ctx context.Context, id string) (*organizationdomain.OrganizationResponse, error) {
	_ = ctx
	_ = id
	return nil, nil
}

func (f *fakeOrgService) ListByUser(ctx context.Context, userID snowflake.ID) ([]organizationdomain.OrganizationListItem, error) {
	_ = ctx
	_ = userID
	return nil, nil
}

func (f *fakeOrgService) AddMember(ctx context.Context, orgID snowflake.ID, userID snowflake.ID, role string) error {
	_ = ctx
	_ = orgID
	_ = userID
	_ = role
	return nil
}

func (f *fakeOrgService) MembershipsByUser(ctx context.Context, userID snowflake.ID) ([]organizationdomain.OrganizationMember, error) {
	_ = ctx
	_ = userID
	return f.memberships, nil
}

type fakeItemService struct {
	listCalls     int
	lastListReq   itemdomain.ListItemsRequest
	lastPrincipal identity.Principal
	statusErr     error
}

func (f *fakeItemService) List(ctx context.Context, principal identity.Principal, req itemdomain.ListItemsRequest) ([]*itemdomain.BillingItem, error) {
	_ = ctx
	f.listCalls++
	f.lastPrincipal = principal
	f.lastListReq = req
	return []*itemdomain.BillingItem{}, nil
}

func (f *fakeItemService) Get(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) (*itemdomain.BillingItem, error) {
	_ = ctx
	_ = principal
	_ = orgID
	_ = id
	return nil, itemdomain.ErrItemNotFound
}

func (f *fakeItemService) Create(ctx context.Context, principal identity.Principal, req itemdomain.CreateItemRequest) (*itemdomain.BillingItem, error) {
	_ = ctx
	_ = principal
	_ = req
	return nil, nil
}

func (f *fakeItemService) UpdateCommission(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID, in commission.Input) (*itemdomain.BillingItem, error) {
	_ = ctx
	_ = principal
	_ = orgID
	_ = id
	_ = in
	return nil, nil
}

func (f *fakeItemService) BatchUpdateCommission(ctx context.Context, principal identity.Principal, ids []snowflake.ID, in commission.Input) (*itemdomain.BatchResult, error) {
	_ = ctx
	_ = principal
	_ = ids
	_ = in
	return &itemdomain.BatchResult{}, nil
}

func (f *fakeItemService) UpdateStatus(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID, status string, note string) (*itemdomain.BillingItem, error) {
	_ = ctx
	_ = principal
	_ = orgID
	_ = note
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &itemdomain.BillingItem{ID: id, OrgID: orgID, Status: status}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeAPIKeyService, *fakeOrgService, *fakeItemService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orgID := snowflake.ID(100)
	apiKeySvc := &fakeAPIKeyService{
		principal: identity.Principal{
			ActorID:   snowflake.ID(900),
			ActorType: identity.ActorTypeAPIKey,
			OrgIDs:    []snowflake.ID{orgID},
		},
	}
	orgSvc := &fakeOrgService{
		memberships: []organizationdomain.OrganizationMember{
			{OrgID: orgID, UserID: snowflake.ID(42), Role: organizationdomain.RoleAdmin},
		},
	}
	itemSvc := &fakeItemService{}

	srv := &Server{
		engine:          gin.New(),
		cfg:             config.Config{AdminUserIDs: []string{"7"}},
		apiKeySvc:       apiKeySvc,
		organizationSvc: orgSvc,
		itemSvc:         itemSvc,
	}
	srv.engine.Use(ErrorHandlingMiddleware())

	api := srv.engine.Group("/api", srv.AuthRequired())
	api.GET("/billing_items", srv.ListBillingItems)
	api.PUT("/billing_items/:id/status", srv.UpdateItemStatus)

	return srv, apiKeySvc, orgSvc, itemSvc
}

func TestAuthRequiredRejectsAnonymous(t *testing.T) {
	srv, _, _, itemSvc := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/billing_items", nil)
	resp := httptest.NewRecorder()
	srv.engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if itemSvc.listCalls != 0 {
		t.Fatal("expected item service not to be called")
	}
}

func TestAuthRequiredRejectsUnknownAPIKey(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/billing_items", nil)
	req.Header.Set("Authorization", "Bearer wf_live_key_bogus")
	resp := httptest.NewRecorder()
	srv.engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestAuthRequiredBearerAPIKey(t *testing.T) {
	srv, _, _, itemSvc := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/billing_items", nil)
	req.Header.Set("Authorization", "Bearer wf_live_key_good")
	resp := httptest.NewRecorder()
	srv.engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if itemSvc.listCalls != 1 {
		t.Fatalf("expected one list call, got %d", itemSvc.listCalls)
	}
	if itemSvc.lastPrincipal.ActorType != identity.ActorTypeAPIKey {
		t.Fatalf("unexpected actor type %q", itemSvc.lastPrincipal.ActorType)
	}
	// Single-org principal, so the org resolves without an X-Org-ID header.
	if itemSvc.lastListReq.OrgID != snowflake.ID(100) {
		t.Fatalf("unexpected org id %s", itemSvc.lastListReq.OrgID)
	}
}

func TestAuthRequiredTrustedUserHeader(t *testing.T) {
	srv, _, _, itemSvc := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/billing_items", nil)
	req.Header.Set(HeaderUser, "42")
	req.Header.Set(HeaderOrg, "100")
	resp := httptest.NewRecorder()
	srv.engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if itemSvc.lastPrincipal.ActorID != snowflake.ID(42) {
		t.Fatalf("unexpected actor id %s", itemSvc.lastPrincipal.ActorID)
	}
	if itemSvc.lastPrincipal.IsSystemAdmin {
		t.Fatal("expected regular member, not system admin")
	}
}

func TestAuthRequiredAdminUser(t *testing.T) {
	srv, _, orgSvc, itemSvc := newTestServer(t)
	orgSvc.memberships = nil

	req := httptest.NewRequest(http.MethodGet, "/api/billing_items", nil)
	req.Header.Set(HeaderUser, "7")
	req.Header.Set(HeaderOrg, "100")
	resp := httptest.NewRecorder()
	srv.engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !itemSvc.lastPrincipal.IsSystemAdmin {
		t.Fatal("expected system admin principal")
	}
}

func TestOrgIDHeaderRequiredForMultiOrgPrincipal(t *testing.T) {
	srv, _, orgSvc, _ := newTestServer(t)
	orgSvc.memberships = append(orgSvc.memberships, organizationdomain.OrganizationMember{
		OrgID: snowflake.ID(200), UserID: snowflake.ID(42), Role: organizationdomain.RoleMember,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/billing_items", nil)
	req.Header.Set(HeaderUser, "42")
	resp := httptest.NewRecorder()
	srv.engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUpdateItemStatusMapsTransitionConflict(t *testing.T) {
	srv, _, _, itemSvc := newTestServer(t)
	itemSvc.statusErr = &itemdomain.InvalidTransitionError{
		Current:   "FINALIZED",
		Requested: "DRAFT",
		Allowed:   []string{},
	}

	body, _ := json.Marshal(map[string]string{"status": "DRAFT"})
	req := httptest.NewRequest(http.MethodPut, "/api/billing_items/123/status", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer wf_live_key_good")
	resp := httptest.NewRecorder()
	srv.engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", resp.Code, resp.Body.String())
	}
}
