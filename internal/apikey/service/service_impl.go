package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apikeydomain "github.com/wasteflow/wasteflow/internal/apikey/domain"
	auditdomain "github.com/wasteflow/wasteflow/internal/audit/domain"
	"github.com/wasteflow/wasteflow/internal/authz"
	"github.com/wasteflow/wasteflow/internal/clock"
	"github.com/wasteflow/wasteflow/internal/identity"
)

const (
	apiKeyPrefix              = "wf_live_key_"
	apiKeySecretBytes         = 32
	apiKeyRotationGracePeriod = 24 * time.Hour
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Authz    authz.Service
	Repo     apikeydomain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	authz    authz.Service
	repo     apikeydomain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("apikey.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		authz:    p.Authz,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) List(ctx context.Context, principal identity.Principal, orgID snowflake.ID) ([]apikeydomain.Response, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectAPIKey, authz.ActionView); err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, principal identity.Principal, orgID snowflake.ID, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectAPIKey, authz.ActionCreate); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	keyID := newKeyID(id)
	plain, hash, err := generateAPIKey(keyID)
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        id,
		OrgID:     orgID,
		KeyID:     keyID,
		Name:      name,
		KeyHash:   hash,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.audit(ctx, orgID, principal, "api_key.created", keyID)
	return &apikeydomain.SecretResponse{KeyID: key.KeyID, APIKey: plain}, nil
}

func (s *Service) Rotate(ctx context.Context, principal identity.Principal, orgID snowflake.ID, keyID string) (*apikeydomain.SecretResponse, error) {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectAPIKey, authz.ActionCreate); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return nil, apikeydomain.ErrInvalidKeyID
	}

	var result *apikeydomain.SecretResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByKeyID(ctx, tx, orgID, trimmed)
		if err != nil {
			return err
		}
		if current == nil || !current.IsActive || s.isExpired(current.ExpiresAt) {
			return apikeydomain.ErrNotFound
		}

		// The old key keeps working through a grace window so callers
		// can swap credentials without an outage.
		now := s.clock.Now()
		graceEnd := now.Add(apiKeyRotationGracePeriod)
		current.ExpiresAt = &graceEnd
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}

		id := s.genID.Generate()
		nextKeyID := newKeyID(id)
		plain, hash, err := generateAPIKey(nextKeyID)
		if err != nil {
			return err
		}

		rotatedFrom := current.KeyID
		next := &apikeydomain.APIKey{
			ID:               id,
			OrgID:            orgID,
			KeyID:            nextKeyID,
			Name:             current.Name,
			KeyHash:          hash,
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
			RotatedFromKeyID: &rotatedFrom,
		}
		if err := s.repo.Insert(ctx, tx, next); err != nil {
			return err
		}

		result = &apikeydomain.SecretResponse{KeyID: next.KeyID, APIKey: plain}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, orgID, principal, "api_key.rotated", trimmed)
	return result, nil
}

func (s *Service) Revoke(ctx context.Context, principal identity.Principal, orgID snowflake.ID, keyID string) error {
	if err := s.authz.Authorize(ctx, principal, orgID, authz.ObjectAPIKey, authz.ActionDelete); err != nil {
		return err
	}

	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return apikeydomain.ErrInvalidKeyID
	}

	key, err := s.repo.FindByKeyID(ctx, s.db, orgID, trimmed)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrNotFound
	}

	now := s.clock.Now()
	key.IsActive = false
	key.UpdatedAt = now
	if key.ExpiresAt == nil || key.ExpiresAt.After(now) {
		key.ExpiresAt = &now
	}
	if err := s.repo.Update(ctx, s.db, key); err != nil {
		return err
	}

	s.audit(ctx, orgID, principal, "api_key.revoked", trimmed)
	return nil
}

func (s *Service) Resolve(ctx context.Context, raw string) (identity.Principal, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, apiKeyPrefix) {
		return identity.Principal{}, apikeydomain.ErrInvalidAPIKey
	}

	key, err := s.repo.FindByHash(ctx, s.db, apikeydomain.HashAPIKey(trimmed))
	if err != nil {
		return identity.Principal{}, err
	}
	if key == nil || !key.IsActive || s.isExpired(key.ExpiresAt) {
		return identity.Principal{}, apikeydomain.ErrInvalidAPIKey
	}

	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, s.clock.Now()); err != nil {
		s.log.Warn("touch last_used_at failed", zap.String("key_id", key.KeyID), zap.Error(err))
	}

	return identity.Principal{
		ActorID:   key.ID,
		ActorType: identity.ActorTypeAPIKey,
		OrgIDs:    []snowflake.ID{key.OrgID},
	}, nil
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, principal identity.Principal, action, keyID string) {
	if s.auditSvc == nil {
		return
	}
	actorID := principal.ActorID.String()
	_ = s.auditSvc.AuditLog(ctx, &orgID, principal.ActorType, &actorID, action, "api_key", &keyID, nil)
}

func (s *Service) isExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return s.clock.Now().After(*expiresAt)
}

func generateAPIKey(keyID string) (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	secretPart := hex.EncodeToString(secret)
	trimmed := strings.TrimPrefix(keyID, "key_")
	plain := fmt.Sprintf("%s%s_%s", apiKeyPrefix, trimmed, secretPart)
	return plain, apikeydomain.HashAPIKey(plain), nil
}

func newKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}

func toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	return apikeydomain.Response{
		KeyID:            key.KeyID,
		Name:             key.Name,
		IsActive:         key.IsActive,
		CreatedAt:        key.CreatedAt,
		LastUsedAt:       key.LastUsedAt,
		ExpiresAt:        key.ExpiresAt,
		RotatedFromKeyID: key.RotatedFromKeyID,
	}
}
