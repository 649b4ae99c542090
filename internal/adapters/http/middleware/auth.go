// Package middleware - Authentication middleware.
//
// Токены - HS256 JWT (golang-jwt/jwt/v5). Публикация вакансий доступна
// только роли employer; отклики и чтение открыты.
package middleware

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Haleralex/jobboard/internal/adapters/http/common"
)

// authClaimsKey - ключ *AuthClaims в gin.Context.
const authClaimsKey = "auth_claims"

// RoleEmployer - роль, которой разрешено публиковать вакансии.
const RoleEmployer = "employer"

// TokenValidator проверяет bearer токен и возвращает его claims.
type TokenValidator func(token string) (*AuthClaims, error)

// AuthConfig - конфигурация для authentication middleware.
type AuthConfig struct {
	TokenValidator TokenValidator
	// Realm - значение realm в WWW-Authenticate, по умолчанию "jobboard"
	Realm string
}

// AuthClaims - данные из токена авторизации.
type AuthClaims struct {
	Subject string
	Email   string
	Role    string
	Expires time.Time
}

// HasRole сообщает, совпадает ли роль токена с одной из перечисленных.
func (a *AuthClaims) HasRole(roles ...string) bool {
	return a != nil && a.Role != "" && slices.Contains(roles, a.Role)
}

// Auth требует заголовок "Authorization: Bearer <token>".
//
// Claims сохраняются в контексте (см. ClaimsFrom), subject и роль
// добавляются атрибутами в текущий span. Ошибки отдаются 401 с
// WWW-Authenticate по RFC 6750.
func Auth(config *AuthConfig) gin.HandlerFunc {
	if config == nil || config.TokenValidator == nil {
		panic("middleware.Auth: TokenValidator is required")
	}
	realm := config.Realm
	if realm == "" {
		realm = "jobboard"
	}

	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", fmt.Sprintf("Bearer realm=%q", realm))
			common.UnauthorizedResponse(c, "Bearer token is required")
			return
		}

		claims, err := config.TokenValidator(token)
		if err == nil && !claims.Expires.IsZero() && !claims.Expires.After(time.Now()) {
			err = jwt.ErrTokenExpired
		}
		if err != nil {
			c.Header("WWW-Authenticate", fmt.Sprintf("Bearer realm=%q, error=\"invalid_token\"", realm))
			common.UnauthorizedResponse(c, "Invalid or expired token")
			return
		}

		c.Set(authClaimsKey, claims)
		trace.SpanFromContext(c.Request.Context()).SetAttributes(
			attribute.String("enduser.id", claims.Subject),
			attribute.String("enduser.role", claims.Role),
		)

		c.Next()
	}
}

// RequireRole пропускает только запросы с одной из ролей. Ставится после Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			common.UnauthorizedResponse(c, "Authentication required")
			return
		}
		if !claims.HasRole(roles...) {
			common.ForbiddenResponse(c, "Insufficient permissions")
			return
		}
		c.Next()
	}
}

// ClaimsFrom возвращает claims, сохранённые Auth.
func ClaimsFrom(c *gin.Context) (*AuthClaims, bool) {
	v, ok := c.Get(authClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*AuthClaims)
	return claims, ok && claims != nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ============================================
// JWT
// ============================================

type jwtClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTValidator возвращает TokenValidator для HS256 токенов.
// Пустой issuer отключает проверку iss.
func JWTValidator(secret, issuer string) TokenValidator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(secret)

	return func(tokenString string) (*AuthClaims, error) {
		var claims jwtClaims
		if _, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
			return key, nil
		}); err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
		if claims.Subject == "" {
			return nil, errors.New("token has no subject")
		}

		return &AuthClaims{
			Subject: claims.Subject,
			Email:   claims.Email,
			Role:    claims.Role,
			Expires: claims.ExpiresAt.Time,
		}, nil
	}
}

// GenerateJWT подписывает HS256 токен. Используется тестами и при локальной разработке.
func GenerateJWT(secret, issuer, subject, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// DevTokenValidator принимает любой непустой токен как subject с ролью employer.
// Включается флагом auth.enable_mock_auth, который запрещён в production.
func DevTokenValidator(token string) (*AuthClaims, error) {
	return &AuthClaims{
		Subject: token,
		Role:    RoleEmployer,
		Expires: time.Now().Add(time.Hour),
	}, nil
}
