package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apikeydomain "github.com/wasteflow/wasteflow/internal/apikey/domain"
)

func (s *Server) ListAPIKeys(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.apiKeySvc.List(c.Request.Context(), s.principal(c), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createAPIKeyRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Server) CreateAPIKey(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.apiKeySvc.Create(c.Request.Context(), s.principal(c), orgID, apikeydomain.CreateRequest{
		Name:      strings.TrimSpace(req.Name),
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RotateAPIKey(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.apiKeySvc.Rotate(c.Request.Context(), s.principal(c), orgID, strings.TrimSpace(c.Param("keyId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	keyID := strings.TrimSpace(c.Param("keyId"))
	if err := s.apiKeySvc.Revoke(c.Request.Context(), s.principal(c), orgID, keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"key_id": keyID}})
}
