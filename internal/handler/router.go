package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"orgadmin/internal/middleware"
	"orgadmin/internal/service"
	"orgadmin/internal/telemetry"
	"orgadmin/internal/websocket"
)

// Services are the application services behind the API.
type Services struct {
	Auth          service.AuthService
	Authorizer    service.Authorizer
	Users         service.UserService
	Roles         service.RoleService
	Permissions   service.PermissionService
	Organizations service.OrganizationService
	Audit         service.AuditService
}

type RouterConfig struct {
	DB             *gorm.DB
	Log            *logrus.Logger
	Services       Services
	Cookies        middleware.CookieSettings
	AllowedOrigins []string
	RequestTimeout time.Duration
	// LoginLimiter throttles login and refresh per client IP; nil disables it.
	LoginLimiter *middleware.IPRateLimiter
	// Metrics may be nil; MetricsPath is only mounted when it is not.
	Metrics     *telemetry.Metrics
	MetricsPath string
	// Hub serves the audit feed at /ws/audit when set.
	Hub     *websocket.Hub
	Swagger bool
}

// NewRouter assembles the HTTP surface. API routes live under /api.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(cfg.Log))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.GinMiddleware())
		router.GET(cfg.MetricsPath, gin.WrapH(cfg.Metrics.Handler()))
	}

	if len(cfg.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader}
		corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
		router.Use(cors.New(corsConfig))
	}

	if cfg.Swagger {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	NewHealthHandler(cfg.DB).RegisterRoutes(router)

	svc := cfg.Services
	g := NewGuard(svc.Auth, svc.Authorizer)
	if cfg.Hub != nil {
		router.GET("/ws/audit", websocket.ServeWs(cfg.Hub, svc.Auth, svc.Authorizer, svc.Organizations, PermAuditRead))
	}

	loginLimit := func(c *gin.Context) { c.Next() }
	if cfg.LoginLimiter != nil {
		loginLimit = cfg.LoginLimiter.Middleware()
	}

	api := router.Group("/api", middleware.Timeout(cfg.RequestTimeout))
	NewAuthHandler(svc.Auth, svc.Users, svc.Authorizer, cfg.Cookies).RegisterRoutes(api, g, loginLimit)
	NewPermissionHandler(svc.Permissions).RegisterRoutes(api, g)
	NewRoleHandler(svc.Roles).RegisterRoutes(api, g)
	NewOrganizationHandler(svc.Organizations, svc.Authorizer).RegisterRoutes(api, g)
	NewUserHandler(svc.Users, svc.Organizations, svc.Authorizer).RegisterRoutes(api, g)
	NewAuditHandler(svc.Audit, svc.Organizations).RegisterRoutes(api, g)
	return router
}
