package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wasteflow/wasteflow/internal/authz"
	"github.com/wasteflow/wasteflow/internal/identity"
	organizationdomain "github.com/wasteflow/wasteflow/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
	CountryCode  string `json:"country_code"`
	TimezoneName string `json:"timezone_name"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	principal := s.principal(c)
	if principal.ActorType != identity.ActorTypeUser {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.Create(c.Request.Context(), principal.ActorID, organizationdomain.CreateOrganizationRequest{
		Name:         strings.TrimSpace(req.Name),
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		CountryCode:  strings.TrimSpace(req.CountryCode),
		TimezoneName: strings.TrimSpace(req.TimezoneName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListOrganizations(c *gin.Context) {
	principal := s.principal(c)
	if principal.ActorType != identity.ActorTypeUser {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.organizationSvc.ListByUser(c.Request.Context(), principal.ActorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOrganization(c *gin.Context) {
	orgID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, organizationdomain.ErrOrganizationNotFound)
		return
	}
	if !s.principal(c).MemberOf(orgID) {
		AbortWithError(c, organizationdomain.ErrOrganizationNotFound)
		return
	}

	resp, err := s.organizationSvc.GetByID(c.Request.Context(), orgID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (s *Server) AddOrganizationMember(c *gin.Context) {
	orgID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, organizationdomain.ErrOrganizationNotFound)
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := parseSnowflakeID(req.UserID)
	if err != nil {
		AbortWithError(c, organizationdomain.ErrInvalidUser)
		return
	}

	if err := s.authorize(c, orgID, authz.ObjectOrganization, authz.ActionUpdate); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.organizationSvc.AddMember(c.Request.Context(), orgID, userID, strings.ToUpper(strings.TrimSpace(req.Role))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"org_id": orgID.String(), "user_id": userID.String()}})
}
