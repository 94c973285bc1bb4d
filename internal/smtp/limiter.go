package smtp

import (
	"sync"

	"golang.org/x/time/rate"
)

// ConnectionLimiter SMTP 连接限流器，同时限制并发数与新建速率
type ConnectionLimiter struct {
	maxConns int
	current  int
	mu       sync.Mutex
	limiter  *rate.Limiter
}

// NewConnectionLimiter 创建连接限流器
//
// 参数:
//   - maxConns: 最大并发连接数，<= 0 表示不限制
//   - maxRate: 每秒最大新建连接数，<= 0 表示不限制
func NewConnectionLimiter(maxConns int, maxRate float64) *ConnectionLimiter {
	limit := rate.Inf
	burst := 0
	if maxRate > 0 {
		limit = rate.Limit(maxRate)
		burst = int(maxRate)
		if burst < 1 {
			burst = 1
		}
	}
	return &ConnectionLimiter{
		maxConns: maxConns,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// Acquire 获取连接许可，返回拒绝原因；成功时 reason 为空
func (l *ConnectionLimiter) Acquire() (ok bool, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxConns > 0 && l.current >= l.maxConns {
		return false, "max_conns"
	}
	if !l.limiter.Allow() {
		return false, "rate"
	}

	l.current++
	return true, ""
}

// Release 释放连接
func (l *ConnectionLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current > 0 {
		l.current--
	}
}

// Current 当前连接数
func (l *ConnectionLimiter) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
