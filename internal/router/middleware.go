package router

import (
	"strconv"
	"strings"
	"time"

	"github.com/mall-next/internal/authz"
	"github.com/mall-next/internal/config"
	"github.com/mall-next/internal/http/handlers/shared"
	"github.com/mall-next/internal/http/response"
	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/repository"
	"github.com/mall-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

const (
	msgAuthHeaderMissing = "缺少认证信息"
	msgAuthHeaderInvalid = "认证格式错误"
	msgTokenInvalid      = "登录已失效，请重新登录"
	msgSecretMissing     = "服务端未配置签名密钥"
	msgUnauthorized      = "未授权"
	msgForbidden         = "没有操作权限"
)

// CORSMiddleware 跨域中间件
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{"Content-Type", "Authorization", requestIDHeader}
	}
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigin := resolveAllowedOrigin(origin, allowedOrigins, cfg.AllowCredentials)
		if allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if allowedOrigin != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", headersHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methodsHeader)
		if cfg.MaxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func resolveAllowedOrigin(origin string, allowedOrigins []string, allowCredentials bool) string {
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			if allowCredentials && origin != "" {
				return origin
			}
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// RequestIDMiddleware 请求 ID 中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(shared.ContextKeyRequestID, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware 结构化请求日志中间件
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Z()
	}
	sugar := log.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := sugar.With(
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if len(c.Errors) > 0 {
			entry.Errorw("request", "errors", c.Errors.String())
			return
		}
		entry.Infow("request")
	}
}

func getRequestID(c *gin.Context) string {
	return c.GetString(shared.ContextKeyRequestID)
}

// abortUnauthorized 输出 401 信封并终止后续处理
func abortUnauthorized(c *gin.Context, msg string) {
	response.Unauthorized(c, msg)
	c.Abort()
}

// bearerToken 读取 Authorization: Bearer <token>
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		abortUnauthorized(c, msgAuthHeaderMissing)
		return "", false
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		abortUnauthorized(c, msgAuthHeaderInvalid)
		return "", false
	}
	return token, true
}

func parseHS256(tokenString, secretKey string, claims jwt.Claims) error {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

// JWTAuthMiddleware 管理员令牌校验，写入 admin_id / username / admin_is_super
func JWTAuthMiddleware(secretKey string, adminRepo repository.AdminRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secretKey == "" {
			abortUnauthorized(c, msgSecretMissing)
			return
		}
		tokenString, ok := bearerToken(c)
		if !ok {
			return
		}
		claims := &service.JWTClaims{}
		if err := parseHS256(tokenString, secretKey, claims); err != nil || claims.AdminID == 0 || adminRepo == nil {
			abortUnauthorized(c, msgTokenInvalid)
			return
		}
		// 令牌签发后被删除的管理员同样拒绝
		admin, err := adminRepo.GetByID(claims.AdminID)
		if err != nil || admin == nil {
			abortUnauthorized(c, msgTokenInvalid)
			return
		}
		c.Set(shared.ContextKeyAdminID, admin.ID)
		c.Set(shared.ContextKeyUsername, admin.Username)
		c.Set(shared.ContextKeyAdminIsSuper, admin.IsSuper)
		c.Next()
	}
}

// AdminRBACMiddleware 按路由模板做 casbin 鉴权，超级管理员放行
func AdminRBACMiddleware(authzService *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := shared.RequestLog(c)
		if authzService == nil {
			log.Errorw("admin_rbac_service_unavailable")
			abortUnauthorized(c, msgUnauthorized)
			return
		}
		if c.GetBool(shared.ContextKeyAdminIsSuper) {
			c.Next()
			return
		}
		adminID := c.GetUint(shared.ContextKeyAdminID)
		if adminID == 0 {
			abortUnauthorized(c, msgUnauthorized)
			return
		}

		resource := c.FullPath()
		if resource == "" {
			resource = c.Request.URL.Path
		}
		allowed, err := authzService.Authorize(adminID, c.Request.Method, resource)
		switch {
		case err != nil:
			log.Errorw("admin_rbac_enforce_failed", "admin_id", adminID, "method", c.Request.Method, "resource", resource, "error", err)
			abortUnauthorized(c, msgUnauthorized)
		case !allowed:
			log.Warnw("admin_rbac_permission_denied", "admin_id", adminID, "method", c.Request.Method, "resource", authz.NormalizeObject(resource))
			response.Forbidden(c, msgForbidden)
			c.Abort()
		default:
			c.Next()
		}
	}
}

// UserJWTAuthMiddleware 用户令牌校验，写入 user_id
func UserJWTAuthMiddleware(secretKey string, userRepo repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secretKey == "" {
			abortUnauthorized(c, msgSecretMissing)
			return
		}
		tokenString, ok := bearerToken(c)
		if !ok {
			return
		}
		claims := &service.UserJWTClaims{}
		if err := parseHS256(tokenString, secretKey, claims); err != nil || claims.UserID == 0 || userRepo == nil {
			abortUnauthorized(c, msgTokenInvalid)
			return
		}
		user, err := userRepo.GetByID(claims.UserID)
		if err != nil || user == nil {
			abortUnauthorized(c, msgTokenInvalid)
			return
		}
		c.Set(shared.ContextKeyUserID, user.ID)
		c.Next()
	}
}
