package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mall-next/internal/constants"
	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/payment"
	"github.com/mall-next/internal/repository"
)

// NotifyDecoder 网关回调验签与解密
type NotifyDecoder interface {
	DecodePaymentNotify(ctx context.Context, headers map[string]string, body []byte) (*payment.PaymentNotification, error)
	DecodeRefundNotify(ctx context.Context, headers map[string]string, body []byte) (*payment.RefundNotification, error)
}

// PaymentService 支付发起与网关回调入口
type PaymentService struct {
	orderRepo repository.OrderRepository
	userRepo  repository.UserRepository
	gateway   PaymentGateway
	decoder   NotifyDecoder
	orderSvc  *OrderService
}

// NewPaymentService 创建支付服务，gateway 与 decoder 为空时视为未配置网关
func NewPaymentService(orderRepo repository.OrderRepository, userRepo repository.UserRepository, gateway PaymentGateway, decoder NotifyDecoder, orderSvc *OrderService) *PaymentService {
	if gateway == nil {
		gateway = payment.Disabled{}
	}
	if decoder == nil {
		decoder = payment.Disabled{}
	}
	return &PaymentService{
		orderRepo: orderRepo,
		userRepo:  userRepo,
		gateway:   gateway,
		decoder:   decoder,
		orderSvc:  orderSvc,
	}
}

// CreatePayment 为待支付订单生成小程序调起参数，金额按分向下取整
// 已过支付时限的订单先行取消并拒绝支付
func (s *PaymentService) CreatePayment(ctx context.Context, userID, orderID uint, payerOpenID string) (*payment.Params, error) {
	if userID == 0 || orderID == 0 {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByIDAndUser(orderID, userID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if s.orderSvc != nil && s.orderSvc.paymentExpired(order) {
		if _, err := s.orderSvc.ensureOrderCancelledIfExpired(ctx, order); err != nil {
			return nil, err
		}
		return nil, ErrOrderExpired
	}
	if order.Status != constants.OrderStatusPendingPayment || order.IsPaid() {
		return nil, invalidTransition(order.Status, constants.OrderStatusPendingDelivery)
	}

	payer := strings.TrimSpace(payerOpenID)
	if payer == "" {
		user, err := s.userRepo.GetByID(userID)
		if err != nil {
			return nil, err
		}
		if user != nil {
			payer = strings.TrimSpace(user.OpenID)
		}
	}
	if payer == "" {
		return nil, ErrPayerRequired
	}

	fen := order.TotalAmount.ToFen()
	if fen <= 0 {
		return nil, ErrPaymentAmountMismatch
	}
	params, err := s.gateway.InitiatePayment(ctx, order.OrderNo, fen, payer)
	if err != nil {
		logger.Warnw("payment_initiate_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"amount_fen", fen,
			"error", err,
		)
		if errors.Is(err, payment.ErrGatewayDisabled) {
			return nil, ErrPaymentGatewayUnavailable
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
	}
	logger.Infow("payment_initiated",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"amount_fen", fen,
	)
	return params, nil
}

// HandlePaymentCallback 验签后交给订单编排处理
func (s *PaymentService) HandlePaymentCallback(ctx context.Context, headers map[string]string, body []byte) (string, error) {
	notify, err := s.decoder.DecodePaymentNotify(ctx, headers, body)
	if err != nil {
		logger.Warnw("payment_notify_decode_failed", "error", err)
		return "", err
	}
	return s.orderSvc.HandlePaymentNotify(ctx, *notify)
}

// HandleRefundCallback 验签后交给订单编排处理
func (s *PaymentService) HandleRefundCallback(ctx context.Context, headers map[string]string, body []byte) (string, error) {
	notify, err := s.decoder.DecodeRefundNotify(ctx, headers, body)
	if err != nil {
		logger.Warnw("refund_notify_decode_failed", "error", err)
		return "", err
	}
	return s.orderSvc.HandleRefundNotify(ctx, *notify)
}
