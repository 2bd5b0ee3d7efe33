// Package payment 定义支付网关适配层与订单服务之间交换的数据。
package payment

import (
	"context"
	"errors"
	"time"
)

// ErrGatewayDisabled 支付网关未配置
var ErrGatewayDisabled = errors.New("payment gateway disabled")

// Params 小程序端调起支付所需参数
type Params struct {
	AppID     string `json:"appId"`
	TimeStamp string `json:"timeStamp"`
	NonceStr  string `json:"nonceStr"`
	Package   string `json:"package"`
	SignType  string `json:"signType"`
	PaySign   string `json:"paySign"`
	PrepayID  string `json:"-"`
}

// RefundHandle 网关受理退款后的回执
type RefundHandle struct {
	RefundID string
	Status   string
}

// PaymentNotification 支付结果通知
type PaymentNotification struct {
	OrderNo       string
	Outcome       string // SUCCESS / FAILURE
	TradeState    string
	TransactionID string
	AmountFen     int64
	PaidAt        *time.Time
}

// RefundNotification 退款结果通知
type RefundNotification struct {
	RefundOrderRef string
	OrderNo        string
	Outcome        string // SUCCESS / FAILURE
	RefundStatus   string
	TransactionID  string // 网关退款单号
	RefundedAt     *time.Time
}

// Disabled 未配置网关时的占位实现，所有调用返回 ErrGatewayDisabled
type Disabled struct{}

// InitiatePayment 未配置网关
func (Disabled) InitiatePayment(context.Context, string, int64, string) (*Params, error) {
	return nil, ErrGatewayDisabled
}

// InitiateRefund 未配置网关
func (Disabled) InitiateRefund(context.Context, string, string, int64, int64) (*RefundHandle, error) {
	return nil, ErrGatewayDisabled
}

// DecodePaymentNotify 未配置网关
func (Disabled) DecodePaymentNotify(context.Context, map[string]string, []byte) (*PaymentNotification, error) {
	return nil, ErrGatewayDisabled
}

// DecodeRefundNotify 未配置网关
func (Disabled) DecodeRefundNotify(context.Context, map[string]string, []byte) (*RefundNotification, error) {
	return nil, ErrGatewayDisabled
}
