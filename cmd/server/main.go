package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	jwtpkg "github.com/vladikoff/email2feed/internal/auth/jwt"
	"github.com/vladikoff/email2feed/internal/cache"
	"github.com/vladikoff/email2feed/internal/config"
	"github.com/vladikoff/email2feed/internal/health"
	"github.com/vladikoff/email2feed/internal/logger"
	"github.com/vladikoff/email2feed/internal/monitoring"
	"github.com/vladikoff/email2feed/internal/service"
	"github.com/vladikoff/email2feed/internal/smtp"
	"github.com/vladikoff/email2feed/internal/storage"
	"github.com/vladikoff/email2feed/internal/storage/memory"
	"github.com/vladikoff/email2feed/internal/storage/postgres"
	"github.com/vladikoff/email2feed/internal/storage/redis"
	httptransport "github.com/vladikoff/email2feed/internal/transport/http"
)

const (
	localCacheSize = 1000
	checkTimeout   = 3 * time.Second
)

// main 启动 HTTP（订阅源与所有者 API）与 SMTP 接收服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.FromConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting email2feed server",
		zap.String("mail_domain", cfg.Mail.Domain),
		zap.String("base_url", cfg.Feed.BaseURL),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化存储层
	store, err := initializeStorage(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("store close error", zap.Error(err))
		}
	}()

	metrics := monitoring.NewMetrics()
	healthChecker := health.NewChecker(store, log)

	// PostgreSQL 额外使用 pgx 连接池做就绪检查
	if cfg.Database.Type == "postgres" {
		pgClient, err := postgres.New(ctx, &cfg.Database, log)
		if err != nil {
			log.Warn("pgx readiness pool unavailable", zap.Error(err))
		} else {
			defer pgClient.Close()
			healthChecker.AddReadinessCheck("postgres", pgClient.Check(checkTimeout))
		}
	}

	// 订阅源缓存：配置了 Redis 时使用 Redis，否则使用进程内缓存
	var feedCache storage.FeedCache
	if cfg.Feed.CacheTTL > 0 {
		if cfg.Redis.Address != "" {
			redisClient, err := redis.New(ctx, &cfg.Redis, log)
			if err != nil {
				log.Fatal("failed to connect to redis", zap.Error(err))
			}
			defer func() { _ = redisClient.Close() }()
			healthChecker.AddReadinessCheck("redis", redisClient.Check(checkTimeout))
			feedCache = redis.NewFeedCache(redisClient)
			log.Info("using redis feed cache", zap.Duration("ttl", cfg.Feed.CacheTTL))
		} else {
			local := cache.NewLocalCache(localCacheSize, cfg.Feed.CacheTTL)
			defer local.Close()
			feedCache = cache.NewFeedCache(local)
			log.Info("using in-process feed cache", zap.Duration("ttl", cfg.Feed.CacheTTL))
		}
	}

	// 初始化服务层
	accountService := service.NewAccountService(store, cfg, log.Named("accounts"))
	ingestService := service.NewIngestService(accountService, store, cfg, log.Named("ingest"))
	feedService := service.NewFeedService(accountService, store, cfg, log.Named("feeds"))

	accountService.SetMetrics(metrics)
	ingestService.SetMetrics(metrics)
	feedService.SetMetrics(metrics)
	if feedCache != nil {
		accountService.SetFeedCache(feedCache)
		ingestService.SetFeedCache(feedCache)
		feedService.SetFeedCache(feedCache)
	}

	jwtManager := jwtpkg.NewManager(&cfg.JWT)
	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
		zap.Duration("refresh_expiry", cfg.JWT.RefreshExpiry),
	)

	// 创建 HTTP 服务器
	httpAddr := cfg.Server.Addr()
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		AccountService: accountService,
		FeedService:    feedService,
		IngestService:  ingestService,
		JWTManager:     jwtManager,
		Metrics:        metrics,
		Health:         healthChecker,
		Logger:         log.Named("http"),
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 创建 SMTP 服务器，bind_addr 为空时只提供 HTTP 入站接口
	var smtpServer *gosmtp.Server
	if cfg.SMTP.BindAddr != "" {
		limiter := smtp.NewConnectionLimiter(cfg.SMTP.MaxConns, cfg.SMTP.MaxRate)
		backend := smtp.NewBackend(ingestService, cfg, limiter, log.Named("smtp"))
		backend.SetMetrics(metrics)
		smtpServer = smtp.NewServer(backend, &cfg.SMTP)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	if smtpServer != nil {
		group.Go(func() error {
			log.Info("starting SMTP server",
				zap.String("address", cfg.SMTP.BindAddr),
				zap.String("domain", cfg.Mail.Domain),
				zap.Int("max_conns", cfg.SMTP.MaxConns),
			)
			if err := smtpServer.ListenAndServe(); err != nil {
				// 关闭时 Close 会让 ListenAndServe 返回错误
				if groupCtx.Err() != nil {
					return nil
				}
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		if smtpServer != nil {
			if err := smtpServer.Close(); err != nil {
				log.Warn("SMTP server close warning", zap.Error(err))
			}
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeStorage 按配置选择存储：未配置数据库时使用内存存储
func initializeStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Warn("using memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}

	pool := postgres.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	var (
		store *postgres.Store
		err   error
	)
	switch cfg.Database.Type {
	case "postgres":
		store, err = postgres.NewStore(cfg.Database.DSN, pool)
	case "mysql":
		store, err = postgres.NewMySQLStore(cfg.Database.DSN, pool)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	if err != nil {
		return nil, err
	}

	log.Info("using database storage", zap.String("type", cfg.Database.Type))
	return store, nil
}
