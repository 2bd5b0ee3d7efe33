package shared

import (
	"errors"

	"github.com/mall-next/internal/authz"
	"github.com/mall-next/internal/http/response"
	"github.com/mall-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

// 顺序即匹配优先级
var serviceErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidOrderItem, code: response.CodeBadRequest, msg: "无效的订单项"},
	{target: service.ErrEmptyCart, code: response.CodeBadRequest, msg: "购物车没有已选商品"},
	{target: service.ErrProductNotFound, code: response.CodeNotFound, msg: "商品不存在"},
	{target: service.ErrProductNotOnSale, code: response.CodeBadRequest, msg: "商品已下架"},
	{target: service.ErrAddressNotFound, code: response.CodeNotFound, msg: "收货地址不存在"},
	{target: service.ErrUserNotFound, code: response.CodeNotFound, msg: "用户不存在"},
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "订单不存在"},
	{target: service.ErrCommissionNotFound, code: response.CodeNotFound, msg: "佣金记录不存在"},
	{target: service.ErrOrderExpired, code: response.CodeConflict, msg: "订单已超时关闭，请重新下单"},
	{target: service.ErrInvalidTransition, code: response.CodeConflict, msg: "订单当前状态不允许该操作"},
	{target: service.ErrRefundReasonRequired, code: response.CodeBadRequest, msg: "请填写退款原因"},
	{target: service.ErrInvalidCommissionStatus, code: response.CodeBadRequest, msg: "无效的佣金状态"},
	{target: service.ErrEmptyPatch, code: response.CodeBadRequest, msg: "没有需要更新的字段"},
	{target: service.ErrInvalidPatchField, code: response.CodeBadRequest, msg: "更新字段不合法"},
	{target: service.ErrPayerRequired, code: response.CodeBadRequest, msg: "缺少支付用户标识"},
	{target: service.ErrPaymentAmountMismatch, code: response.CodeBadRequest, msg: "支付金额不一致"},
	{target: service.ErrPaymentGatewayUnavailable, code: response.CodeBadGateway, msg: "支付服务暂不可用"},
	{target: service.ErrNotifyInProgress, code: response.CodeConflict, msg: "回调正在处理中"},
	{target: service.ErrInvalidCredentials, code: response.CodeUnauthorized, msg: "用户名或密码错误"},
	{target: service.ErrInvalidToken, code: response.CodeUnauthorized, msg: "登录已失效，请重新登录"},
	{target: authz.ErrInvalidRole, code: response.CodeBadRequest, msg: "角色名称不能为空"},
	{target: authz.ErrUnknownRole, code: response.CodeBadRequest, msg: "角色不存在"},
}

// RespondServiceError 按映射表输出业务错误，未知错误统一 500
func RespondServiceError(c *gin.Context, err error) {
	var stockErr *service.InsufficientStockError
	if errors.As(err, &stockErr) {
		RespondErrorWithData(c, response.CodeBadRequest, "库存不足", gin.H{
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
		return
	}
	if code, msg, ok := MapServiceError(err); ok {
		response.Error(c, code, msg)
		return
	}
	RespondErrorWithMsg(c, response.CodeInternal, msgInternal, err)
}

// MapServiceError 查找业务错误对应的响应码与提示
func MapServiceError(err error) (int, string, bool) {
	if err == nil {
		return response.CodeOK, "", false
	}
	for _, rule := range serviceErrorRules {
		if errors.Is(err, rule.target) {
			return rule.code, rule.msg, true
		}
	}
	return response.CodeInternal, msgInternal, false
}
