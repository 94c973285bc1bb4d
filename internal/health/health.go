package health

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"github.com/vladikoff/email2feed/internal/storage"
)

// Checker 健康检查器。/health/live 只检查进程本身，/health/ready 检查存储与缓存。
type Checker struct {
	health healthcheck.Handler
	logger *zap.Logger

	mu    sync.RWMutex
	ready map[string]healthcheck.Check
}

// NewChecker 创建健康检查器
func NewChecker(store storage.Store, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &Checker{
		health: healthcheck.NewHandler(),
		logger: logger,
		ready:  make(map[string]healthcheck.Check),
	}

	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	hc.AddReadinessCheck("store", func() error {
		return store.Health()
	})

	return hc
}

// AddReadinessCheck 添加就绪检查，例如 Redis 或 PostgreSQL 连接池
func (hc *Checker) AddReadinessCheck(name string, check func() error) {
	wrapped := healthcheck.Timeout(check, 5*time.Second)
	hc.mu.Lock()
	hc.ready[name] = wrapped
	hc.mu.Unlock()
	hc.health.AddReadinessCheck(name, wrapped)
}

// LiveHandler 存活检查
func (hc *Checker) LiveHandler() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyHandler 就绪检查
func (hc *Checker) ReadyHandler() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}

// CheckHealth 执行全部就绪检查并返回每项结果
func (hc *Checker) CheckHealth() (map[string]string, bool) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	results := make(map[string]string, len(hc.ready))
	healthy := true
	for name, check := range hc.ready {
		if err := check(); err != nil {
			hc.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			results[name] = fmt.Sprintf("ERROR: %v", err)
			healthy = false
			continue
		}
		results[name] = "OK"
	}
	return results, healthy
}
