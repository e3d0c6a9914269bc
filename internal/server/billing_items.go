package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wasteflow/wasteflow/internal/apperr"
	itemdomain "github.com/wasteflow/wasteflow/internal/billingitem/domain"
	collectordomain "github.com/wasteflow/wasteflow/internal/collector/domain"
	"github.com/wasteflow/wasteflow/internal/commission"
)

type listBillingItemsQuery struct {
	CollectorID  string `form:"collector_id"`
	BillingMonth string `form:"billing_month"`
	BillingType  string `form:"billing_type"`
	Status       string `form:"status"`
}

func (s *Server) ListBillingItems(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query listBillingItemsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := itemdomain.ListItemsRequest{
		OrgID:        orgID,
		BillingMonth: strings.TrimSpace(query.BillingMonth),
		BillingType:  strings.ToUpper(strings.TrimSpace(query.BillingType)),
		Status:       strings.ToUpper(strings.TrimSpace(query.Status)),
	}
	if query.CollectorID != "" {
		req.CollectorID, err = parseSnowflakeID(query.CollectorID)
		if err != nil {
			AbortWithError(c, apperr.Validation("collector_id", "must be a valid id"))
			return
		}
	}

	resp, err := s.itemSvc.List(c.Request.Context(), s.principal(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createBillingItemRequest struct {
	CollectorID  string `json:"collector_id"`
	StoreID      string `json:"store_id"`
	BillingMonth string `json:"billing_month"`
	BillingType  string `json:"billing_type"`
	Description  string `json:"description"`
	Quantity     int64  `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	BaseAmount   int64  `json:"base_amount"`
}

func (s *Server) CreateBillingItem(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createBillingItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	collectorID, err := parseSnowflakeID(req.CollectorID)
	if err != nil {
		AbortWithError(c, collectordomain.ErrCollectorNotFound)
		return
	}
	storeID, err := parseOptionalSnowflakeID(req.StoreID)
	if err != nil {
		AbortWithError(c, apperr.Validation("store_id", "must be a valid id"))
		return
	}

	resp, err := s.itemSvc.Create(c.Request.Context(), s.principal(c), itemdomain.CreateItemRequest{
		OrgID:        orgID,
		CollectorID:  collectorID,
		StoreID:      storeID,
		BillingMonth: strings.TrimSpace(req.BillingMonth),
		BillingType:  strings.ToUpper(strings.TrimSpace(req.BillingType)),
		Description:  strings.TrimSpace(req.Description),
		Quantity:     req.Quantity,
		UnitPrice:    req.UnitPrice,
		BaseAmount:   req.BaseAmount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type generateBillingItemsRequest struct {
	BillingMonth string `json:"billing_month"`
}

func (s *Server) GenerateBillingItems(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req generateBillingItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.collectionSvc.GenerateItems(c.Request.Context(), s.principal(c), orgID, strings.TrimSpace(req.BillingMonth))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type commissionInputRequest struct {
	CommissionType   string   `json:"commission_type"`
	CommissionRate   *float64 `json:"commission_rate"`
	CommissionAmount *int64   `json:"commission_amount"`
	Note             string   `json:"note"`
}

func (r commissionInputRequest) toInput() commission.Input {
	return commission.Input{
		Type:   strings.ToUpper(strings.TrimSpace(r.CommissionType)),
		Rate:   r.CommissionRate,
		Amount: r.CommissionAmount,
		Note:   strings.TrimSpace(r.Note),
	}
}

type batchUpdateCommissionRequest struct {
	ItemIDs []string `json:"item_ids"`
	commissionInputRequest
}

func (s *Server) BatchUpdateItemCommission(c *gin.Context) {
	var req batchUpdateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.ItemIDs) == 0 {
		AbortWithError(c, apperr.Validation("item_ids", "must not be empty"))
		return
	}
	ids, err := parseIDList(req.ItemIDs)
	if err != nil {
		AbortWithError(c, apperr.Validation("item_ids", "must be valid ids"))
		return
	}

	resp, err := s.itemSvc.BatchUpdateCommission(c.Request.Context(), s.principal(c), ids, req.toInput())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBillingItem(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	itemID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, itemdomain.ErrItemNotFound)
		return
	}

	resp, err := s.itemSvc.Get(c.Request.Context(), s.principal(c), orgID, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateItemCommission(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	itemID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, itemdomain.ErrItemNotFound)
		return
	}

	var req commissionInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.itemSvc.UpdateCommission(c.Request.Context(), s.principal(c), orgID, itemID, req.toInput())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateItemStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (s *Server) UpdateItemStatus(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	itemID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, itemdomain.ErrItemNotFound)
		return
	}

	var req updateItemStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.itemSvc.UpdateStatus(c.Request.Context(), s.principal(c), orgID, itemID,
		strings.ToUpper(strings.TrimSpace(req.Status)), strings.TrimSpace(req.Note))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
