// Package middleware - Rate Limiting middleware.
//
// Fixed window counter. Счётчики хранятся в Limiter:
// MemoryLimiter для одного процесса, RedisLimiter для нескольких
// API-реплик за балансировщиком.
package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Haleralex/jobboard/internal/adapters/http/common"
)

// Quota - результат проверки лимита для одного ключа.
type Quota struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter считает запросы по ключу в пределах окна.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Quota, error)
}

// Scope - метка лимитера в jobboard_http_rate_limited_total.
const (
	ScopeGlobal = "global"
	ScopeApply  = "apply"
)

// RateLimitConfig - конфигурация для rate limiting.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	// Scope - метка метрики, по умолчанию ScopeGlobal
	Scope string
	// KeyFunc - ключ лимитирования, по умолчанию IP клиента
	KeyFunc func(*gin.Context) string
	// Limiter - хранилище счётчиков, по умолчанию in-memory
	Limiter Limiter
	// Logger - для ошибок хранилища; nil = slog.Default()
	Logger *slog.Logger
	// OnLimitReached - callback при достижении лимита
	OnLimitReached func(*gin.Context)
}

// DefaultRateLimitConfig - 100 запросов в минуту с одного IP.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Limit:  100,
		Window: time.Minute,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}
}

// ============================================
// In-memory limiter
// ============================================

type window struct {
	count   int
	startAt time.Time
}

// MemoryLimiter хранит окна в памяти процесса.
// Устаревшие окна удаляются во время Allow, отдельной горутины нет.
type MemoryLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryLimiter создаёт пустой in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, period time.Duration) (Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now, period)

	w, ok := m.windows[key]
	if !ok || now.Sub(w.startAt) >= period {
		w = &window{startAt: now}
		m.windows[key] = w
	}

	resetIn := period - now.Sub(w.startAt)
	if w.count >= limit {
		return Quota{Allowed: false, Remaining: 0, ResetIn: resetIn}, nil
	}

	w.count++
	return Quota{Allowed: true, Remaining: limit - w.count, ResetIn: resetIn}, nil
}

// Size возвращает количество отслеживаемых ключей.
func (m *MemoryLimiter) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *MemoryLimiter) sweep(now time.Time, period time.Duration) {
	if now.Sub(m.lastSweep) < 2*period {
		return
	}
	for key, w := range m.windows {
		if now.Sub(w.startAt) >= 2*period {
			delete(m.windows, key)
		}
	}
	m.lastSweep = now
}

// ============================================
// Redis limiter
// ============================================

// INCR и PEXPIRE выполняются атомарно: окно стартует с первым запросом.
var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter хранит счётчики в Redis, общих для всех реплик.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
}

// NewRedisLimiter создаёт limiter с префиксом ключей "ratelimit:".
func NewRedisLimiter(client redis.Scripter) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "ratelimit:"}
}

// Allow implements Limiter.
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, period time.Duration) (Quota, error) {
	res, err := fixedWindowScript.Run(ctx, r.client, []string{r.prefix + key}, period.Milliseconds()).Int64Slice()
	if err != nil {
		return Quota{}, err
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if ttl < 0 {
		ttl = period
	}
	if count > limit {
		return Quota{Allowed: false, Remaining: 0, ResetIn: ttl}, nil
	}
	return Quota{Allowed: true, Remaining: limit - count, ResetIn: ttl}, nil
}

// ============================================
// Middleware
// ============================================

// RateLimit ограничивает количество запросов на ключ за окно.
//
// Headers:
// - X-RateLimit-Limit: Максимум запросов
// - X-RateLimit-Remaining: Оставшееся количество
// - X-RateLimit-Reset: Время сброса (Unix timestamp)
// - Retry-After: Секунд до сброса (при 429)
//
// Если хранилище недоступно, запрос пропускается.
func RateLimit(config *RateLimitConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	if config.Limiter == nil {
		config.Limiter = NewMemoryLimiter()
	}
	scope := config.Scope
	if scope == "" {
		scope = ScopeGlobal
	}
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		quota, err := config.Limiter.Allow(c.Request.Context(), key, config.Limit, config.Window)
		if err != nil {
			log.Warn("Rate limiter unavailable, request allowed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(quota.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(quota.ResetIn).Unix(), 10))

		if !quota.Allowed {
			retrySeconds := int(quota.ResetIn.Seconds())
			if retrySeconds < 1 {
				retrySeconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(retrySeconds))
			httpRateLimited.WithLabelValues(scope, routeLabel(c)).Inc()

			if config.OnLimitReached != nil {
				config.OnLimitReached(c)
			}

			common.TooManyRequestsResponse(c, retrySeconds)
			return
		}

		c.Next()
	}
}

// ApplyRateLimit - лимит откликов с одного IP на одну вакансию.
// limit <= 0 означает 20 в минуту; limiter nil - in-memory.
func ApplyRateLimit(limit int, limiter Limiter) gin.HandlerFunc {
	if limit <= 0 {
		limit = 20
	}
	return RateLimit(&RateLimitConfig{
		Limit:   limit,
		Window:  time.Minute,
		Scope:   ScopeApply,
		Limiter: limiter,
		KeyFunc: func(c *gin.Context) string {
			return "apply:" + c.ClientIP() + ":" + c.Param("id")
		},
	})
}
