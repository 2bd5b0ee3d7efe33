package public

import (
	"errors"
	"io"
	"net/http"

	"github.com/mall-next/internal/http/handlers/shared"
	"github.com/mall-next/internal/http/response"
	"github.com/mall-next/internal/service"

	"github.com/gin-gonic/gin"
)

// 回调报文上限，微信通知远小于该值
const maxNotifyBodyBytes = 1 << 20

// CreatePaymentRequest 发起支付请求
type CreatePaymentRequest struct {
	OpenID string `json:"openid"`
}

// CreatePayment 为订单生成小程序调起支付参数
func (h *Handler) CreatePayment(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req CreatePaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "参数错误")
			return
		}
	}
	params, err := h.PaymentService.CreatePayment(c.Request.Context(), uid, orderID, req.OpenID)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, params)
}

// WechatPayNotify 微信支付结果通知
func (h *Handler) WechatPayNotify(c *gin.Context) {
	log := shared.RequestLog(c)
	headers, body, ok := readNotifyRequest(c)
	if !ok {
		return
	}
	result, err := h.PaymentService.HandlePaymentCallback(c.Request.Context(), headers, body)
	if err != nil {
		if isPermanentNotifyError(err) {
			log.Errorw("wechat_pay_notify_rejected", "error", err)
			respondWechatCallback(c, true)
			return
		}
		log.Warnw("wechat_pay_notify_failed", "error", err)
		respondWechatCallback(c, false)
		return
	}
	log.Infow("wechat_pay_notify_processed", "result", result)
	respondWechatCallback(c, true)
}

// WechatRefundNotify 微信退款结果通知
func (h *Handler) WechatRefundNotify(c *gin.Context) {
	log := shared.RequestLog(c)
	headers, body, ok := readNotifyRequest(c)
	if !ok {
		return
	}
	result, err := h.PaymentService.HandleRefundCallback(c.Request.Context(), headers, body)
	if err != nil {
		if isPermanentNotifyError(err) {
			log.Errorw("wechat_refund_notify_rejected", "error", err)
			respondWechatCallback(c, true)
			return
		}
		log.Warnw("wechat_refund_notify_failed", "error", err)
		respondWechatCallback(c, false)
		return
	}
	log.Infow("wechat_refund_notify_processed", "result", result)
	respondWechatCallback(c, true)
}

func readNotifyRequest(c *gin.Context) (map[string]string, []byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotifyBodyBytes))
	if err != nil {
		shared.RequestLog(c).Warnw("wechat_notify_body_read_failed", "error", err)
		respondWechatCallback(c, false)
		return nil, nil, false
	}
	headers := make(map[string]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
	}
	return headers, body, true
}

// isPermanentNotifyError 重试也无法处理的通知直接应答成功，避免网关反复推送
func isPermanentNotifyError(err error) bool {
	return errors.Is(err, service.ErrPaymentAmountMismatch) || errors.Is(err, service.ErrOrderNotFound)
}

// respondWechatCallback 非 2xx 应答会触发网关重试
func respondWechatCallback(c *gin.Context, success bool) {
	if success {
		c.JSON(http.StatusOK, gin.H{
			"code":    "SUCCESS",
			"message": "成功",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "FAIL",
		"message": "失败",
	})
}
