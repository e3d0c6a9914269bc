package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wasteflow/wasteflow/internal/apperr"
	collectordomain "github.com/wasteflow/wasteflow/internal/collector/domain"
	ruledomain "github.com/wasteflow/wasteflow/internal/commissionrule/domain"
)

type listCommissionRulesQuery struct {
	CollectorID string `form:"collector_id"`
	BillingType string `form:"billing_type"`
	ActiveOnly  bool   `form:"active_only"`
}

func (s *Server) ListCommissionRules(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query listCommissionRulesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	collectorID, err := parseOptionalSnowflakeID(query.CollectorID)
	if err != nil {
		AbortWithError(c, apperr.Validation("collector_id", "must be a valid id"))
		return
	}

	resp, err := s.ruleSvc.List(c.Request.Context(), s.principal(c), ruledomain.ListRulesRequest{
		OrgID:       orgID,
		CollectorID: collectorID,
		BillingType: strings.ToUpper(strings.TrimSpace(query.BillingType)),
		ActiveOnly:  query.ActiveOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createCommissionRuleRequest struct {
	CollectorID      string     `json:"collector_id"`
	BillingType      string     `json:"billing_type"`
	CommissionType   string     `json:"commission_type"`
	CommissionRate   *float64   `json:"commission_rate"`
	CommissionAmount *int64     `json:"commission_amount"`
	EffectiveFrom    *time.Time `json:"effective_from"`
	EffectiveTo      *time.Time `json:"effective_to"`
	Notes            string     `json:"notes"`
}

func (s *Server) CreateCommissionRule(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createCommissionRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	collectorID, err := parseOptionalSnowflakeID(req.CollectorID)
	if err != nil {
		AbortWithError(c, apperr.Validation("collector_id", "must be a valid id"))
		return
	}

	resp, err := s.ruleSvc.Create(c.Request.Context(), s.principal(c), ruledomain.CreateRuleRequest{
		OrgID:            orgID,
		CollectorID:      collectorID,
		BillingType:      strings.ToUpper(strings.TrimSpace(req.BillingType)),
		CommissionType:   strings.ToUpper(strings.TrimSpace(req.CommissionType)),
		CommissionRate:   req.CommissionRate,
		CommissionAmount: req.CommissionAmount,
		EffectiveFrom:    req.EffectiveFrom,
		EffectiveTo:      req.EffectiveTo,
		Notes:            strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateCommissionRuleRequest struct {
	Notes       *string    `json:"notes"`
	IsActive    *bool      `json:"is_active"`
	EffectiveTo *time.Time `json:"effective_to"`
}

func (s *Server) UpdateCommissionRule(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ruleID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ruledomain.ErrRuleNotFound)
		return
	}

	var req updateCommissionRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.Update(c.Request.Context(), s.principal(c), orgID, ruleID, ruledomain.UpdateRuleRequest{
		Notes:       req.Notes,
		IsActive:    req.IsActive,
		EffectiveTo: req.EffectiveTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteCommissionRule(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ruleID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ruledomain.ErrRuleNotFound)
		return
	}

	if err := s.ruleSvc.Delete(c.Request.Context(), s.principal(c), orgID, ruleID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": ruleID.String()}})
}

type resolveDefaultsQuery struct {
	CollectorID  string `form:"collector_id"`
	BillingMonth string `form:"billing_month"`
}

func (s *Server) ResolveCommissionDefaults(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query resolveDefaultsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	collectorID, err := parseSnowflakeID(query.CollectorID)
	if err != nil {
		AbortWithError(c, collectordomain.ErrCollectorNotFound)
		return
	}

	resp, err := s.ruleSvc.ResolveDefaults(c.Request.Context(), s.principal(c), orgID, collectorID, strings.TrimSpace(query.BillingMonth))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
