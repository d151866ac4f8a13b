package middleware

import (
	"net/http"
	"sync"
	"time"

	"campus-rag-go/internal/config"
	"campus-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter 按客户端（JWT subject 或 IP）进行令牌桶限流。
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 根据配置创建限流器。RequestsPerSecond 不大于 0 时不限流。
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
		idleTTL:  10 * time.Minute,
	}
}

func (rl *RateLimiter) get(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > rl.idleTTL {
			delete(rl.limiters, k)
		}
	}
	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// Middleware 返回 Gin 中间件，超出速率时返回 429。
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}
		key := Subject(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !rl.get(key, time.Now()).Allow() {
			log.Warnf("[RateLimit] 请求过于频繁, client: %s, path: %s", key, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": http.StatusTooManyRequests, "message": "请求过于频繁，请稍后再试", "data": nil})
			return
		}
		c.Next()
	}
}
