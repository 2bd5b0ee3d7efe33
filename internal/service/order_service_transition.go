package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mall-next/internal/constants"
	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/payment"
	"github.com/mall-next/internal/queue"

	"gorm.io/gorm"
)

// MarkPaidInput 标记支付输入
type MarkPaidInput struct {
	OrderNo       string
	PaymentMethod string
	TransactionID string
	PaidAt        *time.Time
}

// ShipInput 发货输入
type ShipInput struct {
	TrackingNo      string
	TrackingCompany string
}

// CancelInput 取消订单输入，UserID 为 0 表示管理员或系统取消
type CancelInput struct {
	OrderID uint
	UserID  uint
	Reason  string
}

// ResolveRefundInput 退款审核输入
type ResolveRefundInput struct {
	Approved bool
	Remark   string
}

type statusChange struct {
	from string
	to   string
}

// applyTransition 在事务内以比较并交换方式迁移订单状态
func (s *OrderService) applyTransition(tx *gorm.DB, order *models.Order, to string, updates map[string]interface{}) (statusChange, error) {
	from := order.Status
	if !isTransitionAllowed(from, to) {
		return statusChange{}, invalidTransition(from, to)
	}
	rows, err := s.orderRepo.WithTx(tx).TransitionStatus(order.ID, from, to, updates)
	if err != nil {
		return statusChange{}, err
	}
	if rows == 0 {
		return statusChange{}, invalidTransition(from, to)
	}
	order.Status = to
	return statusChange{from: from, to: to}, nil
}

func (s *OrderService) observe(changes ...statusChange) {
	for _, change := range changes {
		if change.to == "" {
			continue
		}
		s.metrics.ObserveTransition(change.from, change.to)
	}
}

// reload 返回提交后的最新订单，读取失败时退回内存中的订单
func (s *OrderService) reload(order *models.Order) *models.Order {
	if order == nil {
		return nil
	}
	full, err := s.orderRepo.GetByID(order.ID)
	if err != nil || full == nil {
		if err != nil {
			logger.Warnw("order_reload_failed", "order_id", order.ID, "error", err)
		}
		return order
	}
	return full
}

// MarkPaid 标记订单已支付，已支付订单重复调用不做修改
func (s *OrderService) MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Order, error) {
	orderNo := strings.TrimSpace(input.OrderNo)
	if orderNo == "" {
		return nil, ErrOrderNotFound
	}
	var order *models.Order
	var change statusChange
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.orderRepo.WithTx(tx).GetByOrderNoForUpdate(orderNo)
		if err != nil {
			return err
		}
		if row == nil {
			return ErrOrderNotFound
		}
		order = row
		change, err = s.markPaidTx(tx, row, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.observe(change)
	return s.reload(order), nil
}

func (s *OrderService) markPaidTx(tx *gorm.DB, order *models.Order, input MarkPaidInput) (statusChange, error) {
	if order.IsPaid() {
		return statusChange{}, nil
	}
	paidAt := s.now()
	if input.PaidAt != nil && !input.PaidAt.IsZero() {
		paidAt = *input.PaidAt
	}
	method := strings.TrimSpace(input.PaymentMethod)
	if method == "" {
		method = constants.PaymentMethodWechat
	}
	change, err := s.applyTransition(tx, order, constants.OrderStatusPendingDelivery, map[string]interface{}{
		"payment_status": constants.PaymentStatusPaid,
		"payment_time":   paidAt,
		"payment_method": method,
		"transaction_id": strings.TrimSpace(input.TransactionID),
	})
	if err != nil {
		return statusChange{}, err
	}
	order.PaymentStatus = constants.PaymentStatusPaid
	order.PaymentTime = &paidAt
	logger.Infow("order_marked_paid",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"transaction_id", input.TransactionID,
	)
	return change, nil
}

// Ship 管理员发货
func (s *OrderService) Ship(ctx context.Context, orderID uint, input ShipInput) (*models.Order, error) {
	var order *models.Order
	var change statusChange
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockOrder(tx, orderID, 0)
		if err != nil {
			return err
		}
		order = row
		now := s.now()
		change, err = s.applyTransition(tx, row, constants.OrderStatusDelivered, map[string]interface{}{
			"delivery_time":    now,
			"tracking_no":      strings.TrimSpace(input.TrackingNo),
			"tracking_company": strings.TrimSpace(input.TrackingCompany),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.observe(change)
	logger.Infow("order_shipped", "order_id", order.ID, "order_no", order.OrderNo, "tracking_no", input.TrackingNo)
	return s.reload(order), nil
}

// Complete 用户确认收货
func (s *OrderService) Complete(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	if userID == 0 {
		return nil, ErrOrderNotFound
	}
	return s.complete(ctx, orderID, userID)
}

// CompleteByAdmin 管理员代确认收货
func (s *OrderService) CompleteByAdmin(ctx context.Context, orderID uint) (*models.Order, error) {
	return s.complete(ctx, orderID, 0)
}

func (s *OrderService) complete(ctx context.Context, orderID, userID uint) (*models.Order, error) {
	var order *models.Order
	var change statusChange
	var accrued *models.Commission
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockOrder(tx, orderID, userID)
		if err != nil {
			return err
		}
		order = row
		change, err = s.applyTransition(tx, row, constants.OrderStatusCompleted, map[string]interface{}{
			"completion_time": s.now(),
		})
		if err != nil {
			return err
		}
		accrued, err = s.commissionSvc.AccrueOnCompletion(tx, row)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.observe(change)
	if accrued != nil {
		s.commissionSvc.InvalidateStats(ctx)
	}
	logger.Infow("order_completed",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"by_admin", userID == 0,
		"commission_accrued", accrued != nil,
	)
	return s.reload(order), nil
}

// Cancel 取消订单，已支付订单转为退款并回补库存
func (s *OrderService) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = constants.CancelReasonAdmin
		if input.UserID != 0 {
			reason = constants.CancelReasonUser
		}
	}
	var order *models.Order
	var change statusChange
	var refundNeeded bool
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockOrder(tx, input.OrderID, input.UserID)
		if err != nil {
			return err
		}
		order = row
		change, refundNeeded, err = s.cancelTx(tx, row, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.observe(change)
	if refundNeeded {
		s.requestRefundInitiation(ctx, order)
	}
	return s.reload(order), nil
}

// CancelExpiredOrder 支付超时取消，非待支付订单直接返回
// 未到支付时限时返回 ErrOrderNotExpired，由调用方稍后重试
func (s *OrderService) CancelExpiredOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	if orderID == 0 {
		return nil, ErrOrderNotFound
	}
	var order *models.Order
	var change statusChange
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockOrder(tx, orderID, 0)
		if err != nil {
			return err
		}
		order = row
		if row.Status != constants.OrderStatusPendingPayment || row.IsPaid() {
			return nil
		}
		deadline, ok := s.paymentDeadline(row)
		if !ok {
			return nil
		}
		if deadline.After(s.now()) {
			return fmt.Errorf("%w: order %d until %s", ErrOrderNotExpired, row.ID, deadline.Format(time.RFC3339))
		}
		change, _, err = s.cancelTx(tx, row, constants.CancelReasonTimeout)
		return err
	})
	if err != nil {
		return nil, err
	}
	if change.to != "" {
		s.observe(change)
		logger.Infow("order_timeout_cancelled", "order_id", order.ID, "order_no", order.OrderNo)
	}
	return s.reload(order), nil
}

// paymentDeadline 待支付订单的支付截止时间，未配置时限时 ok 为 false
func (s *OrderService) paymentDeadline(order *models.Order) (time.Time, bool) {
	expire := s.cfg.PaymentExpireDuration()
	if order == nil || expire <= 0 {
		return time.Time{}, false
	}
	return order.CreatedAt.Add(expire), true
}

// paymentExpired 待支付订单是否已过支付时限
func (s *OrderService) paymentExpired(order *models.Order) bool {
	if order == nil || order.Status != constants.OrderStatusPendingPayment || order.IsPaid() {
		return false
	}
	deadline, ok := s.paymentDeadline(order)
	return ok && !deadline.After(s.now())
}

// ensureOrderCancelledIfExpired 读取时补做超时取消，不依赖延时任务是否送达
func (s *OrderService) ensureOrderCancelledIfExpired(ctx context.Context, order *models.Order) (*models.Order, error) {
	if !s.paymentExpired(order) {
		return order, nil
	}
	cancelled, err := s.CancelExpiredOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	logger.Infow("order_expired_on_read", "order_id", order.ID, "order_no", order.OrderNo)
	return cancelled, nil
}

// cancelTx 返回是否需要向网关发起退款
func (s *OrderService) cancelTx(tx *gorm.DB, order *models.Order, reason string) (statusChange, bool, error) {
	wasPaid := order.IsPaid()
	cancelAt := s.now()
	updates := map[string]interface{}{
		"cancel_time":   cancelAt,
		"cancel_reason": reason,
	}
	if wasPaid {
		updates["payment_status"] = constants.PaymentStatusRefunded
		updates["refund_no"] = buildRefundNo(s.cfg.RefundRefPrefix, order.OrderNo)
	}
	change, err := s.applyTransition(tx, order, constants.OrderStatusCancelled, updates)
	if err != nil {
		return statusChange{}, false, err
	}
	if err := s.inventory.CreditItems(tx, order.Items); err != nil {
		return statusChange{}, false, err
	}
	order.CancelTime = &cancelAt
	order.CancelReason = reason
	if wasPaid {
		order.PaymentStatus = constants.PaymentStatusRefunded
		order.RefundNo = updates["refund_no"].(string)
	}
	logger.Infow("order_cancelled",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"reason", reason,
		"was_paid", wasPaid,
	)
	return change, wasPaid, nil
}

// RequestRefund 用户申请退款
func (s *OrderService) RequestRefund(ctx context.Context, userID, orderID uint, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrRefundReasonRequired
	}
	if userID == 0 {
		return nil, ErrOrderNotFound
	}
	var order *models.Order
	var change statusChange
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockOrder(tx, orderID, userID)
		if err != nil {
			return err
		}
		order = row
		if !row.IsPaid() {
			return invalidTransition(row.Status, constants.OrderStatusRefundPending)
		}
		change, err = s.applyTransition(tx, row, constants.OrderStatusRefundPending, map[string]interface{}{
			"refund_reason":       reason,
			"refund_request_time": s.now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.observe(change)
	logger.Infow("order_refund_requested", "order_id", order.ID, "order_no", order.OrderNo)
	return s.reload(order), nil
}

// ResolveRefund 管理员审核退款，通过后提交事务再发起网关退款
func (s *OrderService) ResolveRefund(ctx context.Context, orderID uint, input ResolveRefundInput) (*models.Order, error) {
	var order *models.Order
	var change statusChange
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockOrder(tx, orderID, 0)
		if err != nil {
			return err
		}
		order = row
		if input.Approved {
			change, err = s.approveRefundTx(tx, row, input.Remark, "")
			return err
		}
		remark := strings.TrimSpace(input.Remark)
		if remark == "" {
			remark = constants.RefundRejectedDefaultRemark
		}
		change, err = s.applyTransition(tx, row, constants.OrderStatusRefundRejected, map[string]interface{}{
			"refund_remark":        remark,
			"refund_approval_time": s.now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.observe(change)
	logger.Infow("order_refund_resolved",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"approved", input.Approved,
	)
	if input.Approved {
		s.requestRefundInitiation(ctx, order)
	}
	return s.reload(order), nil
}

// approveRefundTx 退款通过：状态迁移、标记已退款并回补库存
func (s *OrderService) approveRefundTx(tx *gorm.DB, order *models.Order, remark, refundTransactionID string) (statusChange, error) {
	remark = strings.TrimSpace(remark)
	if remark == "" {
		remark = constants.RefundApprovedDefaultRemark
	}
	refundNo := order.RefundNo
	if refundNo == "" {
		refundNo = buildRefundNo(s.cfg.RefundRefPrefix, order.OrderNo)
	}
	updates := map[string]interface{}{
		"payment_status":       constants.PaymentStatusRefunded,
		"refund_remark":        remark,
		"refund_approval_time": s.now(),
		"refund_no":            refundNo,
	}
	if refundTransactionID != "" {
		updates["refund_transaction_id"] = refundTransactionID
	}
	change, err := s.applyTransition(tx, order, constants.OrderStatusRefundApproved, updates)
	if err != nil {
		return statusChange{}, err
	}
	if err := s.inventory.CreditItems(tx, order.Items); err != nil {
		return statusChange{}, err
	}
	order.PaymentStatus = constants.PaymentStatusRefunded
	order.RefundNo = refundNo
	order.RefundTransactionID = refundTransactionID
	return change, nil
}

// requestRefundInitiation 投递退款任务，队列不可用时同步发起
func (s *OrderService) requestRefundInitiation(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	err := s.queueClient.EnqueueOrderRefundInitiate(queue.OrderRefundInitiatePayload{OrderID: order.ID})
	if err == nil {
		return
	}
	if !errors.Is(err, queue.ErrDisabled) {
		logger.Errorw("order_enqueue_refund_initiate_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"error", err,
		)
	}
	if err := s.InitiateRefund(ctx, order.ID); err != nil {
		logger.Errorw("order_refund_initiate_sync_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"error", err,
		)
	}
}

// InitiateRefund 向网关发起全额退款，只处理已标记退款且尚未受理的订单
func (s *OrderService) InitiateRefund(ctx context.Context, orderID uint) error {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.PaymentStatus != constants.PaymentStatusRefunded ||
		order.RefundNo == "" ||
		order.TransactionID == "" ||
		order.RefundTransactionID != "" {
		logger.Debugw("order_refund_initiate_skipped",
			"order_id", order.ID,
			"payment_status", order.PaymentStatus,
			"has_transaction", order.TransactionID != "",
			"has_refund_transaction", order.RefundTransactionID != "",
		)
		return nil
	}
	fen := order.TotalAmount.ToFen()
	handle, err := s.gateway.InitiateRefund(ctx, order.TransactionID, order.RefundNo, fen, fen)
	if err != nil {
		if errors.Is(err, payment.ErrGatewayDisabled) {
			s.metrics.ObserveRefund("skipped")
			logger.Warnw("order_refund_gateway_disabled", "order_id", order.ID, "order_no", order.OrderNo)
			return nil
		}
		s.metrics.ObserveRefund("failed")
		return err
	}
	s.metrics.ObserveRefund("initiated")
	logger.Infow("order_refund_initiated",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"refund_no", order.RefundNo,
		"refund_id", handle.RefundID,
		"status", handle.Status,
	)
	if handle.RefundID != "" {
		if err := s.orderRepo.Update(order.ID, map[string]interface{}{"refund_transaction_id": handle.RefundID}); err != nil {
			logger.Warnw("order_refund_transaction_save_failed", "order_id", order.ID, "error", err)
		}
	}
	return nil
}

// lockOrder 加锁读取订单，userID 非 0 时校验归属
func (s *OrderService) lockOrder(tx *gorm.DB, orderID, userID uint) (*models.Order, error) {
	if orderID == 0 {
		return nil, ErrOrderNotFound
	}
	row, err := s.orderRepo.WithTx(tx).GetByIDForUpdate(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	if row == nil || (userID != 0 && row.UserID != userID) {
		return nil, ErrOrderNotFound
	}
	return row, nil
}
