package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	collectordomain "github.com/wasteflow/wasteflow/internal/collector/domain"
)

func (s *Server) ListCollectors(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.collectorSvc.List(c.Request.Context(), s.principal(c), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createCollectorRequest struct {
	Name         string `json:"name"`
	Code         string `json:"code"`
	ContactName  string `json:"contact_name"`
	ContactPhone string `json:"contact_phone"`
	MonthlyFee   int64  `json:"monthly_fee"`
}

func (s *Server) CreateCollector(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createCollectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.collectorSvc.Create(c.Request.Context(), s.principal(c), collectordomain.CreateCollectorRequest{
		OrgID:        orgID,
		Name:         strings.TrimSpace(req.Name),
		Code:         strings.TrimSpace(req.Code),
		ContactName:  strings.TrimSpace(req.ContactName),
		ContactPhone: strings.TrimSpace(req.ContactPhone),
		MonthlyFee:   req.MonthlyFee,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCollector(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	collectorID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, collectordomain.ErrCollectorNotFound)
		return
	}

	resp, err := s.collectorSvc.Get(c.Request.Context(), s.principal(c), orgID, collectorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateCollectorRequest struct {
	Name         *string `json:"name"`
	ContactName  *string `json:"contact_name"`
	ContactPhone *string `json:"contact_phone"`
	MonthlyFee   *int64  `json:"monthly_fee"`
	IsActive     *bool   `json:"is_active"`
}

func (s *Server) UpdateCollector(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	collectorID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, collectordomain.ErrCollectorNotFound)
		return
	}

	var req updateCollectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.collectorSvc.Update(c.Request.Context(), s.principal(c), orgID, collectorID, collectordomain.UpdateCollectorRequest{
		Name:         req.Name,
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		MonthlyFee:   req.MonthlyFee,
		IsActive:     req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListStores(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	collectorID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, collectordomain.ErrCollectorNotFound)
		return
	}

	resp, err := s.collectorSvc.ListStores(c.Request.Context(), s.principal(c), orgID, collectorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createStoreRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (s *Server) CreateStore(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	collectorID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, collectordomain.ErrCollectorNotFound)
		return
	}

	var req createStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.collectorSvc.CreateStore(c.Request.Context(), s.principal(c), collectordomain.CreateStoreRequest{
		OrgID:       orgID,
		CollectorID: collectorID,
		Name:        strings.TrimSpace(req.Name),
		Address:     strings.TrimSpace(req.Address),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
