package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	apikeydomain "github.com/wasteflow/wasteflow/internal/apikey/domain"
	auditdomain "github.com/wasteflow/wasteflow/internal/audit/domain"
	"github.com/wasteflow/wasteflow/internal/authz"
	itemdomain "github.com/wasteflow/wasteflow/internal/billingitem/domain"
	summarydomain "github.com/wasteflow/wasteflow/internal/billingsummary/domain"
	collectiondomain "github.com/wasteflow/wasteflow/internal/collection/domain"
	collectordomain "github.com/wasteflow/wasteflow/internal/collector/domain"
	ruledomain "github.com/wasteflow/wasteflow/internal/commissionrule/domain"
	"github.com/wasteflow/wasteflow/internal/config"
	"github.com/wasteflow/wasteflow/internal/observability"
	obsmiddleware "github.com/wasteflow/wasteflow/internal/observability/logger"
	obsmetrics "github.com/wasteflow/wasteflow/internal/observability/metrics"
	obstracing "github.com/wasteflow/wasteflow/internal/observability/tracing"
	organizationdomain "github.com/wasteflow/wasteflow/internal/organization/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	authzSvc        authz.Service
	auditSvc        auditdomain.Service
	apiKeySvc       apikeydomain.Service
	organizationSvc organizationdomain.Service
	collectorSvc    collectordomain.Service
	collectionSvc   collectiondomain.Service
	ruleSvc         ruledomain.Service
	itemSvc         itemdomain.Service
	summarySvc      summarydomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	AuthzSvc        authz.Service
	AuditSvc        auditdomain.Service
	APIKeySvc       apikeydomain.Service
	OrganizationSvc organizationdomain.Service
	CollectorSvc    collectordomain.Service
	CollectionSvc   collectiondomain.Service
	RuleSvc         ruledomain.Service
	ItemSvc         itemdomain.Service
	SummarySvc      summarydomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		apiKeySvc:       p.APIKeySvc,
		organizationSvc: p.OrganizationSvc,
		collectorSvc:    p.CollectorSvc,
		collectionSvc:   p.CollectionSvc,
		ruleSvc:         p.RuleSvc,
		itemSvc:         p.ItemSvc,
		summarySvc:      p.SummarySvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Organizations --------
	api.POST("/organizations", s.CreateOrganization)
	api.GET("/organizations", s.ListOrganizations)
	api.GET("/organizations/:id", s.GetOrganization)
	api.POST("/organizations/:id/members", s.AddOrganizationMember)

	// -------- Collectors & stores --------
	api.GET("/collectors", s.ListCollectors)
	api.POST("/collectors", s.CreateCollector)
	api.GET("/collectors/:id", s.GetCollector)
	api.PATCH("/collectors/:id", s.UpdateCollector)
	api.GET("/collectors/:id/stores", s.ListStores)
	api.POST("/collectors/:id/stores", s.CreateStore)

	// -------- Collection records --------
	api.GET("/collection_records", s.ListCollectionRecords)
	api.POST("/collection_records", s.CreateCollectionRecord)

	// -------- Commission rules --------
	api.GET("/commission_rules", s.ListCommissionRules)
	api.POST("/commission_rules", s.CreateCommissionRule)
	api.PATCH("/commission_rules/:id", s.UpdateCommissionRule)
	api.DELETE("/commission_rules/:id", s.DeleteCommissionRule)
	api.GET("/commission_rules/defaults", s.ResolveCommissionDefaults)

	// -------- Billing items --------
	api.GET("/billing_items", s.ListBillingItems)
	api.POST("/billing_items", s.CreateBillingItem)
	api.POST("/billing_items/generate", s.GenerateBillingItems)
	api.POST("/billing_items/commission/batch", s.BatchUpdateItemCommission)
	api.GET("/billing_items/:id", s.GetBillingItem)
	api.PUT("/billing_items/:id/commission", s.UpdateItemCommission)
	api.PUT("/billing_items/:id/status", s.UpdateItemStatus)

	// -------- Billing summaries --------
	api.GET("/billing_summaries", s.ListBillingSummaries)
	api.POST("/billing_summaries/generate", s.GenerateBillingSummary)
	api.POST("/billing_summaries/approve", s.ApproveBillingSummaries)
	api.POST("/billing_summaries/reject", s.RejectBillingSummaries)
	api.GET("/billing_summaries/:id", s.GetBillingSummary)
	api.POST("/billing_summaries/:id/submit", s.SubmitBillingSummary)

	// -------- Audit logs --------
	api.GET("/audit_logs", s.ListAuditLogs)

	// -------- API keys --------
	api.GET("/api_keys", s.ListAPIKeys)
	api.POST("/api_keys", s.CreateAPIKey)
	api.POST("/api_keys/:keyId/rotate", s.RotateAPIKey)
	api.DELETE("/api_keys/:keyId", s.RevokeAPIKey)
}
