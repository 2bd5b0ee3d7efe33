package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mall-next/internal/http/response"
	"github.com/mall-next/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 生成限流 key，返回空串时退化为客户端 IP
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 固定窗口限流规则，WindowSeconds 或 MaxRequests <= 0 时不限流
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	Message       string // 可含一个 %d，填充剩余等待秒数
}

func (r RateLimitRule) enabled() bool {
	return r.WindowSeconds > 0 && r.MaxRequests > 0
}

func (r RateLimitRule) key(raw string) string {
	if r.Prefix == "" {
		return raw
	}
	return r.Prefix + ":" + raw
}

// rejectMessage count 超限时返回提示，未超限返回空串
func (r RateLimitRule) rejectMessage(count, ttlSeconds int64) string {
	if count <= int64(r.MaxRequests) {
		return ""
	}
	wait := ttlSeconds
	if wait < 1 {
		wait = int64(r.WindowSeconds)
	}
	format := strings.TrimSpace(r.Message)
	if format == "" {
		format = msgRateLimited
	}
	if !strings.Contains(format, "%d") {
		return format
	}
	return fmt.Sprintf(format, wait)
}

const msgRateLimited = "请求过于频繁，请 %d 秒后再试"

// 首次计数时设置过期，返回 {count, ttl}
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("TTL", KEYS[1])}
`)

// RateLimitMiddleware 基于 redis 的固定窗口限流
// redis 未启用或脚本执行失败时放行，只记录日志
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || !rule.enabled() {
			c.Next()
			return
		}
		raw := ""
		if keyFunc != nil {
			raw = strings.TrimSpace(keyFunc(c))
		}
		if raw == "" {
			raw = c.ClientIP()
		}
		key := rule.key(raw)

		values, err := fixedWindowScript.Run(c.Request.Context(), client, []string{key}, rule.WindowSeconds).Int64Slice()
		if err != nil || len(values) < 2 {
			logger.Warnw("rate_limit_check_failed", "key", key, "error", err)
			c.Next()
			return
		}
		if msg := rule.rejectMessage(values[0], values[1]); msg != "" {
			logger.Warnw("rate_limit_rejected", "key", key, "count", values[0], "request_id", getRequestID(c))
			response.Error(c, response.CodeTooManyRequests, msg)
			c.Abort()
			return
		}
		c.Next()
	}
}

// KeyByIPAndJSONField 以 JSON 请求体中的字段（小写）加客户端 IP 作为 key
// 读取后请求体会被还原，后续 ShouldBindJSON 不受影响
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(peekJSONString(c, field))
		if value == "" {
			return c.ClientIP()
		}
		return value + "|" + c.ClientIP()
	}
}

func peekJSONString(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	var text string
	if err := json.Unmarshal(payload[field], &text); err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
