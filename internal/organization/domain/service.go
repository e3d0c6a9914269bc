package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleAdmin  = "ADMIN"  // manage rules, items, collectors
	RoleMember = "MEMBER" // read-only
)

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleMember
}

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*OrganizationResponse, error)
	GetByID(ctx context.Context, id string) (*OrganizationResponse, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)
	AddMember(ctx context.Context, orgID snowflake.ID, userID snowflake.ID, role string) error
	MembershipsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationMember, error)
}

type CreateOrganizationRequest struct {
	Name         string
	ContactEmail string
	CountryCode  string
	TimezoneName string
}

type OrganizationResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	ContactEmail string `json:"contact_email"`
	CountryCode  string `json:"country_code"`
	TimezoneName string `json:"timezone_name"`
}

type OrganizationListItem struct {
	ID        snowflake.ID `json:"id"`
	Name      string       `json:"name"`
	Role      string       `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrOrganizationNotFound = errors.New("organization_not_found")
)
