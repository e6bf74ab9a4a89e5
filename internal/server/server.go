// Package server wires the HTTP surface: tenant administration, the
// service catalog, obligations, periods, invoices and the ledger.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/cadencehq/cadence/internal/billing/domain"
	catalogdomain "github.com/cadencehq/cadence/internal/catalog/domain"
	"github.com/cadencehq/cadence/internal/config"
	customerdomain "github.com/cadencehq/cadence/internal/customer/domain"
	invoicedomain "github.com/cadencehq/cadence/internal/invoice/domain"
	ledgerdomain "github.com/cadencehq/cadence/internal/ledger/domain"
	obligationdomain "github.com/cadencehq/cadence/internal/obligation/domain"
	perioddomain "github.com/cadencehq/cadence/internal/period/domain"
	tenantdomain "github.com/cadencehq/cadence/internal/tenant/domain"
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

type ServerParams struct {
	fx.In

	Engine        *gin.Engine
	Config        config.Config
	DB            *gorm.DB
	TenantSvc     tenantdomain.Service
	CustomerSvc   customerdomain.Service
	CatalogSvc    catalogdomain.Service
	ObligationSvc obligationdomain.Service
	PeriodSvc     perioddomain.Service
	InvoiceSvc    invoicedomain.Service
	BillingSvc    billingdomain.Automation
	LedgerSvc     ledgerdomain.Service
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	tenantSvc     tenantdomain.Service
	customerSvc   customerdomain.Service
	catalogSvc    catalogdomain.Service
	obligationSvc obligationdomain.Service
	periodSvc     perioddomain.Service
	invoiceSvc    invoicedomain.Service
	billingSvc    billingdomain.Automation
	ledgerSvc     ledgerdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Engine,
		cfg:           p.Config,
		db:            p.DB,
		tenantSvc:     p.TenantSvc,
		customerSvc:   p.CustomerSvc,
		catalogSvc:    p.CatalogSvc,
		obligationSvc: p.ObligationSvc,
		periodSvc:     p.PeriodSvc,
		invoiceSvc:    p.InvoiceSvc,
		billingSvc:    p.BillingSvc,
		ledgerSvc:     p.LedgerSvc,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")

	tenants := v1.Group("/tenants")
	tenants.POST("", s.createTenant)
	tenants.GET("", s.listTenants)
	tenants.GET("/:id", s.getTenant)
	tenants.PATCH("/:id/settings", s.updateTenantSettings)

	org := v1.Group("", OrgContext())

	org.POST("/customers", s.createCustomer)
	org.GET("/customers", s.listCustomers)
	org.GET("/customers/:id", s.getCustomer)
	org.GET("/customers/:id/prices", s.listCustomerPrices)

	org.POST("/service-templates", s.createServiceTemplate)
	org.GET("/service-templates", s.listServiceTemplates)
	org.GET("/service-templates/:id", s.getServiceTemplate)
	org.POST("/customer-prices", s.setCustomerPrice)

	org.POST("/obligations", s.createObligation)
	org.GET("/obligations", s.listObligations)
	org.GET("/obligations/:id", s.getObligation)
	org.GET("/obligations/:id/tasks", s.listObligationTasks)
	org.POST("/obligations/:id/backfill", s.backfillObligation)
	org.POST("/obligations/:id/cancel", s.cancelObligation)
	org.POST("/obligations/:id/invoice", s.invoiceObligation)
	org.PATCH("/obligation-tasks/:id", s.setObligationTaskStatus)

	org.GET("/periods", s.listPeriods)
	org.GET("/periods/:id/tasks", s.listPeriodTasks)
	org.POST("/periods/:id/invoice", s.invoicePeriod)
	org.PATCH("/period-tasks/:id", s.setPeriodTaskStatus)

	org.GET("/invoices", s.listInvoices)
	org.GET("/invoices/:id", s.getInvoice)
	org.GET("/invoices/:id/lines", s.listInvoiceLines)
	org.PATCH("/invoices/:id/status", s.setInvoiceStatus)

	org.GET("/ledger/accounts", s.listLedgerAccounts)
	org.POST("/ledger/vouchers", s.postVoucher)
}

func RunHTTP(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: s.Engine(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", srv.Addr))
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
