// Package middleware - CORS middleware.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CORSConfig - конфигурация CORS.
type CORSConfig struct {
	// AllowOrigins - точные origins, "*" или шаблон поддоменов "https://*.example.com"
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	// MaxAge - время кеширования preflight
	MaxAge time.Duration
}

// DefaultCORSConfig - открытая конфигурация для development.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Request-ID",
			"X-Correlation-ID",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"Retry-After",
		},
		MaxAge: 12 * time.Hour,
	}
}

// ProductionCORSConfig - только перечисленные origins, с credentials.
func ProductionCORSConfig(allowedOrigins []string) *CORSConfig {
	config := DefaultCORSConfig()
	config.AllowOrigins = allowedOrigins
	config.AllowCredentials = true
	return config
}

// originMatcher проверяет Origin против списка.
type originMatcher struct {
	any      bool
	exact    map[string]struct{}
	suffixes []wildcard
}

type wildcard struct {
	scheme string // "https://"
	suffix string // ".example.com"
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{exact: make(map[string]struct{})}
	for _, o := range origins {
		switch {
		case o == "*":
			m.any = true
		case strings.Contains(o, "://*."):
			i := strings.Index(o, "*")
			m.suffixes = append(m.suffixes, wildcard{scheme: o[:i], suffix: o[i+1:]})
		default:
			m.exact[strings.ToLower(o)] = struct{}{}
		}
	}
	return m
}

func (m originMatcher) match(origin string) bool {
	if m.any {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, w := range m.suffixes {
		host, ok := strings.CutPrefix(origin, w.scheme)
		if ok && strings.HasSuffix(host, w.suffix) && len(host) > len(w.suffix) {
			return true
		}
	}
	return false
}

// CORS middleware для обработки Cross-Origin запросов.
//
// Запросы без Origin проходят без CORS заголовков. С неразрешённым
// Origin - тоже, браузер сам заблокирует ответ. Preflight (OPTIONS)
// от разрешённого origin завершается 204.
//
// При AllowCredentials "*" не отправляется: браузеры его не принимают
// вместе с credentials, поэтому возвращается сам Origin.
func CORS(config *CORSConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultCORSConfig()
	}

	allowMethods := strings.Join(config.AllowMethods, ", ")
	allowHeaders := strings.Join(config.AllowHeaders, ", ")
	exposeHeaders := strings.Join(config.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(int(config.MaxAge.Seconds()))
	origins := newOriginMatcher(config.AllowOrigins)
	wildcardResponse := origins.any && !config.AllowCredentials

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			c.Next()
			return
		}

		if !wildcardResponse {
			c.Writer.Header().Add("Vary", "Origin")
		}
		if !origins.match(origin) {
			c.Next()
			return
		}

		if wildcardResponse {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		if exposeHeaders != "" {
			c.Header("Access-Control-Expose-Headers", exposeHeaders)
		}
		if config.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", allowHeaders)
			if config.MaxAge > 0 {
				c.Header("Access-Control-Max-Age", maxAge)
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
