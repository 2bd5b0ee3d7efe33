package shared

import (
	"github.com/mall-next/internal/http/response"
	"github.com/mall-next/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const msgInternal = "服务器内部错误"

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if id := c.GetString(ContextKeyRequestID); id != "" {
		return logger.SW("request_id", id)
	}
	return logger.S()
}

// RespondErrorWithMsg 返回错误响应，原始错误只写日志不外泄
func RespondErrorWithMsg(c *gin.Context, code int, msg string, err error) {
	if err != nil {
		RequestLog(c).Errorw("handler_error", "code", code, "msg", msg, "error", err)
	}
	response.Error(c, code, msg)
}

// RespondErrorWithData 返回带数据的错误响应
func RespondErrorWithData(c *gin.Context, code int, msg string, data interface{}) {
	response.ErrorWithData(c, code, msg, data)
}
