package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	"github.com/smallbiznis/martpos/internal/auth/session"
	"github.com/smallbiznis/martpos/internal/authorization"
	billingdomain "github.com/smallbiznis/martpos/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/martpos/internal/catalog/domain"
	"github.com/smallbiznis/martpos/internal/config"
	"github.com/smallbiznis/martpos/internal/observability"
	obsmiddleware "github.com/smallbiznis/martpos/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/martpos/internal/observability/metrics"
	obstracing "github.com/smallbiznis/martpos/internal/observability/tracing"
	"github.com/smallbiznis/martpos/internal/ratelimit"
	scannerdomain "github.com/smallbiznis/martpos/internal/scanner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	authsvc  authdomain.Service
	sessions *session.Manager
	authzSvc authorization.Service
	scanner  scannerdomain.Service
	catalog  catalogdomain.Service
	billing  billingdomain.Service

	mobileLimiter *ratelimit.MobileLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	Authsvc  authdomain.Service
	Sessions *session.Manager
	AuthzSvc authorization.Service
	Scanner  scannerdomain.Service
	Catalog  catalogdomain.Service
	Billing  billingdomain.Service

	MobileLimiter *ratelimit.MobileLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		authsvc:       p.Authsvc,
		sessions:      p.Sessions,
		authzSvc:      p.AuthzSvc,
		scanner:       p.Scanner,
		catalog:       p.Catalog,
		billing:       p.Billing,
		mobileLimiter: p.MobileLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerScannerRoutes()
	svc.registerAPIRoutes()
	svc.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/login", s.Login)
	auth.POST("/logout", s.SessionRequired(), s.CSRFProtect(), s.Logout)
	auth.GET("/me", s.SessionRequired(), s.Me)
	auth.POST("/change-password", s.SessionRequired(), s.CSRFProtect(), s.ChangePassword)
}

func (s *Server) registerScannerRoutes() {
	scanner := s.engine.Group("/scanner")

	// Desktop POS: the scanner service runs the role check itself.
	desktop := scanner.Group("", s.SessionRequired(), s.CSRFProtect())
	{
		desktop.POST("/activate-pos", s.ActivatePOS)
		desktop.POST("/deactivate-pos", s.DeactivatePOS)
		desktop.GET("/check-pos-activation", s.CheckPOSActivation)
		desktop.GET("/items", s.PollItems)
	}

	// Mobile scanner: authenticated by the activation token only.
	mobile := scanner.Group("", s.MobileRateLimit())
	{
		mobile.POST("/activate-mobile", s.ActivateMobile)
		mobile.POST("/submit-scan", s.SubmitScan)
	}
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.SessionRequired(), s.CSRFProtect())

	staff := s.RequireRole(authdomain.RoleStaff, authdomain.RoleAdmin)
	admin := s.RequireRole(authdomain.RoleAdmin)

	// -------- Products --------
	api.GET("/products", staff, s.authorizeAction(authorization.ObjectProduct, authorization.ActionProductView), s.ListProducts)
	api.GET("/products/barcode/:code", staff, s.authorizeAction(authorization.ObjectProduct, authorization.ActionProductView), s.GetProductByBarcode)
	api.GET("/products/:id", staff, s.authorizeAction(authorization.ObjectProduct, authorization.ActionProductView), s.GetProductByID)
	api.POST("/products", admin, s.authorizeAction(authorization.ObjectProduct, authorization.ActionProductManage), s.CreateProduct)
	api.PATCH("/products/:id", admin, s.authorizeAction(authorization.ObjectProduct, authorization.ActionProductManage), s.UpdateProduct)
	api.POST("/products/:id/archive", admin, s.authorizeAction(authorization.ObjectProduct, authorization.ActionProductManage), s.ArchiveProduct)

	// -------- Bills --------
	api.POST("/bills", staff, s.authorizeAction(authorization.ObjectBill, authorization.ActionBillCreate), s.CreateBill)
	api.GET("/bills", admin, s.authorizeAction(authorization.ObjectBill, authorization.ActionBillList), s.ListBills)
	api.GET("/bills/:id", staff, s.authorizeAction(authorization.ObjectBill, authorization.ActionBillView), s.GetBill)
	api.GET("/bills/:id/receipt", staff, s.authorizeAction(authorization.ObjectBill, authorization.ActionBillView), s.GetBillReceipt)

	// -------- Sales --------
	api.GET("/sales", admin, s.authorizeAction(authorization.ObjectSales, authorization.ActionSalesView), s.GetSalesSummary)

	// -------- Users --------
	api.GET("/users", admin, s.authorizeAction(authorization.ObjectUser, authorization.ActionUserManage), s.ListUsers)
	api.POST("/users", admin, s.authorizeAction(authorization.ObjectUser, authorization.ActionUserManage), s.CreateUser)
	api.POST("/users/:id/disable", admin, s.authorizeAction(authorization.ObjectUser, authorization.ActionUserManage), s.DisableUser)
	api.POST("/users/:id/enable", admin, s.authorizeAction(authorization.ObjectUser, authorization.ActionUserManage), s.EnableUser)
}
