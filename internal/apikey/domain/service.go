package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/wasteflow/wasteflow/internal/identity"
)

type Service interface {
	List(ctx context.Context, principal identity.Principal, orgID snowflake.ID) ([]Response, error)
	Create(ctx context.Context, principal identity.Principal, orgID snowflake.ID, req CreateRequest) (*SecretResponse, error)
	Rotate(ctx context.Context, principal identity.Principal, orgID snowflake.ID, keyID string) (*SecretResponse, error)
	Revoke(ctx context.Context, principal identity.Principal, orgID snowflake.ID, keyID string) error

	// Resolve authenticates a raw API key and returns the principal it
	// acts as. Inactive and expired keys resolve to ErrInvalidAPIKey.
	Resolve(ctx context.Context, raw string) (identity.Principal, error)
}

type CreateRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type Response struct {
	KeyID            string     `json:"key_id"`
	Name             string     `json:"name"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       *time.Time `json:"last_used_at"`
	ExpiresAt        *time.Time `json:"expires_at"`
	RotatedFromKeyID *string    `json:"rotated_from_key_id"`
}

type SecretResponse struct {
	KeyID  string `json:"key_id"`
	APIKey string `json:"api_key"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidKeyID        = errors.New("invalid_key_id")
	ErrInvalidAPIKey       = errors.New("invalid_api_key")
	ErrNotFound            = errors.New("not_found")
)
