package server

import (
	"context"
	"net/http"
	"time"

	"github.com/fieldpass/checkout/internal/checkout"
	checkoutservice "github.com/fieldpass/checkout/internal/checkout/service"
	"github.com/fieldpass/checkout/internal/config"
	"github.com/fieldpass/checkout/internal/notify"
	"github.com/fieldpass/checkout/internal/observability"
	obsmiddleware "github.com/fieldpass/checkout/internal/observability/logger"
	obsmetrics "github.com/fieldpass/checkout/internal/observability/metrics"
	obstracing "github.com/fieldpass/checkout/internal/observability/tracing"
	"github.com/fieldpass/checkout/internal/order"
	orderdomain "github.com/fieldpass/checkout/internal/order/domain"
	"github.com/fieldpass/checkout/internal/payment"
	"github.com/fieldpass/checkout/internal/ratelimit"
	"github.com/fieldpass/checkout/internal/referral"
	referraldomain "github.com/fieldpass/checkout/internal/referral/domain"
	"github.com/fieldpass/checkout/internal/settlement"
	settlementservice "github.com/fieldpass/checkout/internal/settlement/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	notify.Module,
	payment.Module,
	referral.Module,
	order.Module,
	checkout.Module,
	settlement.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
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

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	catalog       *config.CatalogHolder
	checkoutSvc   *checkoutservice.Service
	settlementSvc *settlementservice.Service
	referralSvc   referraldomain.Service
	orderRepo     orderdomain.Repository
	limiter       *ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Catalog       *config.CatalogHolder
	CheckoutSvc   *checkoutservice.Service
	SettlementSvc *settlementservice.Service
	ReferralSvc   referraldomain.Service
	OrderRepo     orderdomain.Repository
	Limiter       *ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		catalog:       p.Catalog,
		checkoutSvc:   p.CheckoutSvc,
		settlementSvc: p.SettlementSvc,
		referralSvc:   p.ReferralSvc,
		orderRepo:     p.OrderRepo,
		limiter:       p.Limiter,
	}

	svc.RegisterAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Catalog --------
	api.GET("/catalog/packs", s.ListCampPacks)

	// -------- Checkout --------
	api.POST("/checkout/sessions", s.CreateCheckoutSession)
	api.GET("/checkout/sessions/:id", s.GetCheckoutSession)
	api.PUT("/checkout/sessions/:id", s.SaveRateLimit(), s.SaveCheckoutSession)
	api.POST("/checkout/sessions/:id/quote", s.QuoteCheckoutSession)
	api.POST("/checkout/sessions/:id/submit", s.SubmitCheckoutSession)
	api.POST("/checkout/sessions/:id/complete", s.CompleteCheckoutSession)

	// -------- Orders --------
	api.GET("/orders", s.ListOrders)
	api.GET("/orders/:id", s.GetOrderByID)

	// -------- Referral codes --------
	api.GET("/referral-codes", s.ListReferralCodes)
	api.POST("/referral-codes/validate", s.ValidateReferralCode)

	// -------- Payment Webhooks --------
	api.POST("/payments/webhooks/:provider", s.WebhookRateLimit(), s.HandlePaymentWebhook)
}

// SaveRateLimit gates draft saves per session so a runaway client
// cannot hammer the snapshot row.
func (s *Server) SaveRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter != nil && !s.limiter.AllowSave(c.Request.Context(), c.Param("id")) {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// WebhookRateLimit gates inbound webhook deliveries per source address.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter != nil && !s.limiter.AllowWebhook(c.Request.Context(), c.ClientIP()) {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
