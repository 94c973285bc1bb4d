package httptransport

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	jwtpkg "github.com/vladikoff/email2feed/internal/auth/jwt"
	"github.com/vladikoff/email2feed/internal/config"
	"github.com/vladikoff/email2feed/internal/health"
	"github.com/vladikoff/email2feed/internal/middleware"
	"github.com/vladikoff/email2feed/internal/monitoring"
	"github.com/vladikoff/email2feed/internal/service"
)

// defaultPermalinkPath 永久链接路由前缀，permalink_base_url 没有路径时使用
const defaultPermalinkPath = "/m"

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	AccountService *service.AccountService
	FeedService    *service.FeedService
	IngestService  *service.IngestService
	JWTManager     *jwtpkg.Manager
	Metrics        *monitoring.Metrics // 可选
	Health         *health.Checker     // 可选
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log)
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	if deps.Metrics != nil {
		router.Use(monitor.HTTPMetrics())
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	if len(corsConfig.AllowOrigins) > 0 {
		router.Use(gincors.New(corsConfig))
	}

	feedHandler := NewFeedHandler(deps.FeedService, log)
	accountHandler := NewAccountHandler(deps.AccountService, deps.FeedService, deps.JWTManager, log)
	inboundHandler := NewInboundHandler(deps.IngestService, deps.Config.Mail.ForwardHeader, log)
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, log)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		checks, healthy := deps.Health.CheckHealth()
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
	})
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// ========== 订阅源（公开） ==========
	router.GET("/feed/:token", feedHandler.GetFeed)
	router.GET("/u/:name", feedHandler.LegacyWebList)
	router.GET("/xml/:name", feedHandler.LegacyRSS)
	router.GET("/atom/:name", feedHandler.LegacyAtom)

	permalinkPath := PermalinkPath(deps.Config.Feed.PermalinkBaseURL)
	router.GET(permalinkPath+"/:token/:id", feedHandler.GetEntry)

	// V1 API
	v1 := router.Group("/v1")
	{
		v1.POST("/inbound",
			middleware.InboundSecret(deps.Config.Inbound.Secret, log),
			middleware.BodySizeLimit(inboundLimit(deps.Config)),
			inboundHandler.Receive,
		)

		authRoutes := v1.Group("/auth")
		authRoutes.Use(middleware.BodySizeLimit(middleware.SmallBodyLimit))
		{
			authRoutes.POST("/refresh", accountHandler.Refresh)
		}

		// ========== Owner Routes ==========
		accountRoutes := v1.Group("/account")
		accountRoutes.Use(jwtAuth.RequireAuth(), middleware.BodySizeLimit(middleware.SmallBodyLimit))
		{
			accountRoutes.POST("", accountHandler.Register)
			accountRoutes.GET("", accountHandler.Get)
			accountRoutes.DELETE("", accountHandler.Delete)
			accountRoutes.PUT("/policy", accountHandler.SetPolicy)
			accountRoutes.GET("/senders", accountHandler.ListSenders)
			accountRoutes.POST("/senders", accountHandler.AddSender)
			accountRoutes.DELETE("/senders", accountHandler.RemoveSender)
		}
	}

	return router
}

// PermalinkPath 从永久链接前缀中取出路由路径，例如 "https://host/m" => "/m"
func PermalinkPath(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return defaultPermalinkPath
	}
	path := strings.TrimRight(u.Path, "/")
	if path == "" || strings.ContainsAny(path, ":*") {
		return defaultPermalinkPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for _, taken := range reservedPrefixes {
		if path == taken || strings.HasPrefix(path, taken+"/") {
			return defaultPermalinkPath
		}
	}
	return path
}

// 与其他路由冲突的前缀
var reservedPrefixes = []string{"/feed", "/u", "/xml", "/atom", "/v1", "/health", "/metrics"}

func inboundLimit(cfg *config.Config) int64 {
	if cfg.SMTP.MaxMessageBytes > 0 {
		return cfg.SMTP.MaxMessageBytes
	}
	return middleware.DefaultInboundLimit
}
