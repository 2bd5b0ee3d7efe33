package service

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock         = errors.New("库存不足")
	ErrInvalidTransition         = errors.New("订单状态不允许该操作")
	ErrProductNotOnSale          = errors.New("商品已下架")
	ErrProductNotFound           = errors.New("商品不存在")
	ErrInvalidCommissionStatus   = errors.New("无效的佣金状态")
	ErrAddressNotFound           = errors.New("收货地址不存在")
	ErrOrderNotFound             = errors.New("订单不存在")
	ErrCommissionNotFound        = errors.New("佣金记录不存在")
	ErrUserNotFound              = errors.New("用户不存在")
	ErrInvalidOrderItem          = errors.New("无效的订单项")
	ErrEmptyCart                 = errors.New("购物车没有已选商品")
	ErrRefundReasonRequired      = errors.New("请提供退款原因")
	ErrPaymentAmountMismatch     = errors.New("支付金额不一致")
	ErrPaymentGatewayUnavailable = errors.New("支付网关不可用")
	ErrPayerRequired             = errors.New("缺少支付用户标识")
	ErrEmptyPatch                = errors.New("没有需要更新的字段")
	ErrInvalidPatchField         = errors.New("更新字段不合法")
	ErrOrderFetchFailed          = errors.New("订单查询失败")
	ErrOrderUpdateFailed         = errors.New("订单更新失败")
	ErrInvalidCredentials        = errors.New("用户名或密码错误")
	ErrNotifyInProgress          = errors.New("回调正在处理中")
	ErrOrderExpired              = errors.New("订单已超时关闭")
	ErrOrderNotExpired           = errors.New("订单尚未到支付时限")
)

// InsufficientStockError 库存不足，携带可用数量
type InsufficientStockError struct {
	ProductID uint
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: product %d requested %d available %d", ErrInsufficientStock.Error(), e.ProductID, e.Requested, e.Available)
}

// Is 使 errors.Is(err, ErrInsufficientStock) 成立
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func invalidTransition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
