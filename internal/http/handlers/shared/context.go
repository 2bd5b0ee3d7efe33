package shared

import (
	"strconv"
	"strings"

	"github.com/mall-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// 中间件写入 gin.Context 的键
const (
	ContextKeyRequestID    = response.RequestIDKey
	ContextKeyAdminID      = "admin_id"
	ContextKeyUsername     = "username"
	ContextKeyAdminIsSuper = "admin_is_super"
	ContextKeyUserID       = "user_id"
)

// GetContextUint 从上下文读取 uint 值，缺失时返回 401
func GetContextUint(c *gin.Context, key string) (uint, bool) {
	value, exists := c.Get(key)
	if !exists {
		response.Unauthorized(c, "未授权")
		return 0, false
	}
	switch v := value.(type) {
	case uint:
		if v == 0 {
			response.Unauthorized(c, "未授权")
			return 0, false
		}
		return v, true
	case int:
		if v <= 0 {
			response.BadRequest(c, "用户标识无效")
			return 0, false
		}
		return uint(v), true
	default:
		RespondErrorWithMsg(c, response.CodeInternal, msgInternal, nil)
		return 0, false
	}
}

// ParseIDParam 解析路径上的正整数 ID，失败时直接写出 400
func ParseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		response.BadRequest(c, "参数错误")
		return 0, false
	}
	return uint(id), true
}

// QueryInt 读取整数查询参数，缺失或非法时返回 fallback
func QueryInt(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
