package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wasteflow/wasteflow/internal/apperr"
	summarydomain "github.com/wasteflow/wasteflow/internal/billingsummary/domain"
	collectordomain "github.com/wasteflow/wasteflow/internal/collector/domain"
)

type listBillingSummariesQuery struct {
	CollectorID  string `form:"collector_id"`
	BillingMonth string `form:"billing_month"`
	Status       string `form:"status"`
}

func (s *Server) ListBillingSummaries(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query listBillingSummariesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := summarydomain.ListSummariesRequest{
		OrgID:        orgID,
		BillingMonth: strings.TrimSpace(query.BillingMonth),
		Status:       strings.ToUpper(strings.TrimSpace(query.Status)),
	}
	if query.CollectorID != "" {
		req.CollectorID, err = parseSnowflakeID(query.CollectorID)
		if err != nil {
			AbortWithError(c, apperr.Validation("collector_id", "must be a valid id"))
			return
		}
	}

	resp, err := s.summarySvc.List(c.Request.Context(), s.principal(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type generateBillingSummaryRequest struct {
	CollectorID  string `json:"collector_id"`
	BillingMonth string `json:"billing_month"`
}

func (s *Server) GenerateBillingSummary(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req generateBillingSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	collectorID, err := parseSnowflakeID(req.CollectorID)
	if err != nil {
		AbortWithError(c, collectordomain.ErrCollectorNotFound)
		return
	}

	resp, err := s.summarySvc.Generate(c.Request.Context(), s.principal(c), orgID, collectorID, strings.TrimSpace(req.BillingMonth))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type approveSummariesRequest struct {
	SummaryIDs []string `json:"summary_ids"`
}

func (s *Server) ApproveBillingSummaries(c *gin.Context) {
	var req approveSummariesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.SummaryIDs) == 0 {
		AbortWithError(c, apperr.Validation("summary_ids", "must not be empty"))
		return
	}
	ids, err := parseIDList(req.SummaryIDs)
	if err != nil {
		AbortWithError(c, apperr.Validation("summary_ids", "must be valid ids"))
		return
	}

	approved, err := s.summarySvc.ApproveBatch(c.Request.Context(), s.principal(c), ids)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"approved": approved}})
}

type rejectSummariesRequest struct {
	SummaryIDs []string `json:"summary_ids"`
	Reason     string   `json:"reason"`
}

func (s *Server) RejectBillingSummaries(c *gin.Context) {
	var req rejectSummariesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.SummaryIDs) == 0 {
		AbortWithError(c, apperr.Validation("summary_ids", "must not be empty"))
		return
	}
	ids, err := parseIDList(req.SummaryIDs)
	if err != nil {
		AbortWithError(c, apperr.Validation("summary_ids", "must be valid ids"))
		return
	}

	rejected, err := s.summarySvc.RejectBatch(c.Request.Context(), s.principal(c), ids, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"rejected": rejected}})
}

func (s *Server) GetBillingSummary(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	summaryID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, summarydomain.ErrSummaryNotFound)
		return
	}

	resp, err := s.summarySvc.Get(c.Request.Context(), s.principal(c), orgID, summaryID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SubmitBillingSummary(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	summaryID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, summarydomain.ErrSummaryNotFound)
		return
	}

	resp, err := s.summarySvc.Submit(c.Request.Context(), s.principal(c), orgID, summaryID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
