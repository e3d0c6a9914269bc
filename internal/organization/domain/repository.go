package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
	AddMember(ctx context.Context, member OrganizationMember) error
	ListByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)
	MembershipsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationMember, error)
	MemberRole(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (string, error)
}
