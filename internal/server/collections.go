package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wasteflow/wasteflow/internal/apperr"
	collectiondomain "github.com/wasteflow/wasteflow/internal/collection/domain"
	collectordomain "github.com/wasteflow/wasteflow/internal/collector/domain"
)

type listCollectionRecordsQuery struct {
	CollectorID  string `form:"collector_id"`
	StoreID      string `form:"store_id"`
	BillingMonth string `form:"billing_month"`
}

func (s *Server) ListCollectionRecords(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query listCollectionRecordsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := collectiondomain.ListRecordsRequest{
		OrgID:        orgID,
		BillingMonth: strings.TrimSpace(query.BillingMonth),
	}
	if query.CollectorID != "" {
		req.CollectorID, err = parseSnowflakeID(query.CollectorID)
		if err != nil {
			AbortWithError(c, apperr.Validation("collector_id", "must be a valid id"))
			return
		}
	}
	if query.StoreID != "" {
		req.StoreID, err = parseSnowflakeID(query.StoreID)
		if err != nil {
			AbortWithError(c, apperr.Validation("store_id", "must be a valid id"))
			return
		}
	}

	resp, err := s.collectionSvc.List(c.Request.Context(), s.principal(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createCollectionRecordRequest struct {
	CollectorID string    `json:"collector_id"`
	StoreID     string    `json:"store_id"`
	WasteItem   string    `json:"waste_item"`
	Quantity    int64     `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
	CollectedAt time.Time `json:"collected_at"`
}

func (s *Server) CreateCollectionRecord(c *gin.Context) {
	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createCollectionRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	collectorID, err := parseSnowflakeID(req.CollectorID)
	if err != nil {
		AbortWithError(c, collectordomain.ErrCollectorNotFound)
		return
	}
	storeID, err := parseSnowflakeID(req.StoreID)
	if err != nil {
		AbortWithError(c, apperr.Validation("store_id", "must be a valid id"))
		return
	}
	if req.CollectedAt.IsZero() {
		AbortWithError(c, apperr.Validation("collected_at", "is required"))
		return
	}

	resp, err := s.collectionSvc.Create(c.Request.Context(), s.principal(c), collectiondomain.CreateRecordRequest{
		OrgID:       orgID,
		CollectorID: collectorID,
		StoreID:     storeID,
		WasteItem:   strings.TrimSpace(req.WasteItem),
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		CollectedAt: req.CollectedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
