package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wasteflow/wasteflow/internal/clock"
	"github.com/wasteflow/wasteflow/internal/organization/domain"
)

type service struct {
	db    *gorm.DB
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) domain.Service {
	return &service{
		db:    db,
		repo:  repo,
		genID: genID,
		clock: clk,
		log:   log.Named("organization.service"),
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	orgID := s.genID.Generate()
	org := domain.Organization{
		ID:           orgID,
		Name:         name,
		Slug:         slug.Make(name),
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		CountryCode:  strings.TrimSpace(req.CountryCode),
		TimezoneName: strings.TrimSpace(req.TimezoneName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}

		member := domain.OrganizationMember{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			UserID:    userID,
			Role:      domain.RoleAdmin,
			CreatedAt: now,
		}
		return repo.AddMember(ctx, member)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", orgID.String()),
		zap.String("slug", org.Slug),
	)

	return &domain.OrganizationResponse{
		ID:           orgID.String(),
		Name:         org.Name,
		Slug:         org.Slug,
		ContactEmail: org.ContactEmail,
		CountryCode:  org.CountryCode,
		TimezoneName: org.TimezoneName,
	}, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.OrganizationResponse, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}

	return &domain.OrganizationResponse{
		ID:           org.ID.String(),
		Name:         org.Name,
		Slug:         org.Slug,
		ContactEmail: org.ContactEmail,
		CountryCode:  org.CountryCode,
		TimezoneName: org.TimezoneName,
	}, nil
}

func (s *service) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) AddMember(ctx context.Context, orgID snowflake.ID, userID snowflake.ID, role string) error {
	if orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	if !domain.ValidRole(role) {
		return domain.ErrInvalidRole
	}

	member := domain.OrganizationMember{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		UserID:    userID,
		Role:      role,
		CreatedAt: s.clock.Now(),
	}
	return s.repo.AddMember(ctx, member)
}

func (s *service) MembershipsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationMember, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.MembershipsByUser(ctx, userID)
}
