package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wasteflow/wasteflow/internal/authz"
	"github.com/wasteflow/wasteflow/internal/clock"
	"github.com/wasteflow/wasteflow/internal/collector/domain"
	"github.com/wasteflow/wasteflow/internal/identity"
	"github.com/wasteflow/wasteflow/pkg/db"
	"github.com/wasteflow/wasteflow/pkg/db/option"
	"github.com/wasteflow/wasteflow/pkg/repository"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Authz      authz.Service
	Collectors repository.Repository[domain.Collector]
	Stores     repository.Repository[domain.Store]
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	authz      authz.Service
	collectors repository.Repository[domain.Collector]
	stores     repository.Repository[domain.Store]
}

func NewService(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("collector.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		authz:      p.Authz,
		collectors: p.Collectors,
		stores:     p.Stores,
	}
}

func (s *service) Create(ctx context.Context, principal identity.Principal, req domain.CreateCollectorRequest) (*domain.Collector, error) {
	if err := s.authz.Authorize(ctx, principal, req.OrgID, authz.ObjectCollector, authz.ActionCreate); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	if req.MonthlyFee < 0 {
		return nil, domain.ErrInvalidMonthlyFee
	}

	now := s.clock.Now()
	collector := &domain.Collector{
		ID:           s.genID.Generate(),
		OrgID:        req.OrgID,
		Name:         name,
		Code:         code,
		ContactName:  strings.TrimSpace(req.ContactName),
		ContactPhone: strings.TrimSpace(req.ContactPhone),
		MonthlyFee:   req.MonthlyFee,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.collectors.Create(ctx, collector); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateCode
		}
		return nil, err
	}
	return collector, nil
}

func (s *service) Get(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID) (*domain.Collector, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectCollector, authz.ActionView); err != nil {
		return nil, err
	}

	collector, err := s.collectors.FindOne(ctx, &domain.Collector{ID: id, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if collector == nil {
		return nil, domain.ErrCollectorNotFound
	}
	return collector, nil
}

func (s *service) List(ctx context.Context, principal identity.Principal, orgID snowflake.ID) ([]*domain.Collector, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectCollector, authz.ActionView); err != nil {
		return nil, err
	}
	return s.collectors.Find(ctx, &domain.Collector{OrgID: orgID}, option.WithOrder("code asc"))
}

func (s *service) Update(ctx context.Context, principal identity.Principal, orgID snowflake.ID, id snowflake.ID, req domain.UpdateCollectorRequest) (*domain.Collector, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectCollector, authz.ActionUpdate); err != nil {
		return nil, err
	}

	collector, err := s.collectors.FindOne(ctx, &domain.Collector{ID: id, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if collector == nil {
		return nil, domain.ErrCollectorNotFound
	}

	updates := map[string]any{"updated_at": s.clock.Now()}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		updates["name"] = name
	}
	if req.ContactName != nil {
		updates["contact_name"] = strings.TrimSpace(*req.ContactName)
	}
	if req.ContactPhone != nil {
		updates["contact_phone"] = strings.TrimSpace(*req.ContactPhone)
	}
	if req.MonthlyFee != nil {
		if *req.MonthlyFee < 0 {
			return nil, domain.ErrInvalidMonthlyFee
		}
		updates["monthly_fee"] = *req.MonthlyFee
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if err := s.collectors.Update(ctx, id.String(), updates); err != nil {
		return nil, err
	}
	return s.collectors.FindOne(ctx, &domain.Collector{ID: id, OrgID: orgID})
}

func (s *service) CreateStore(ctx context.Context, principal identity.Principal, req domain.CreateStoreRequest) (*domain.Store, error) {
	if err := s.authz.Authorize(ctx, principal, req.OrgID, authz.ObjectStore, authz.ActionCreate); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	collector, err := s.collectors.FindOne(ctx, &domain.Collector{ID: req.CollectorID, OrgID: req.OrgID})
	if err != nil {
		return nil, err
	}
	if collector == nil {
		return nil, domain.ErrCollectorNotFound
	}

	now := s.clock.Now()
	store := &domain.Store{
		ID:          s.genID.Generate(),
		OrgID:       req.OrgID,
		CollectorID: req.CollectorID,
		Name:        name,
		Address:     strings.TrimSpace(req.Address),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.stores.Create(ctx, store); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *service) ListStores(ctx context.Context, principal identity.Principal, orgID snowflake.ID, collectorID snowflake.ID) ([]*domain.Store, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectStore, authz.ActionView); err != nil {
		return nil, err
	}

	query := &domain.Store{OrgID: orgID}
	if collectorID != 0 {
		query.CollectorID = collectorID
	}
	return s.stores.Find(ctx, query, option.WithOrder("name asc"))
}
