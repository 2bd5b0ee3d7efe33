package service

import (
	"context"
	"strings"
	"time"

	"github.com/mall-next/internal/cache"
	"github.com/mall-next/internal/constants"
	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/payment"

	"gorm.io/gorm"
)

const notifyLockTTL = 30 * time.Second

// 回调处理结果
const (
	NotifyResultApplied   = "applied"
	NotifyResultDuplicate = "duplicate"
	NotifyResultIgnored   = "ignored"
)

// PaymentNotify 支付结果通知
type PaymentNotify = payment.PaymentNotification

// RefundNotify 退款结果通知
type RefundNotify = payment.RefundNotification

// HandlePaymentNotify 处理支付回调，重复通知幂等
func (s *OrderService) HandlePaymentNotify(ctx context.Context, notify PaymentNotify) (string, error) {
	orderNo := strings.TrimSpace(notify.OrderNo)
	if orderNo == "" {
		return "", ErrOrderNotFound
	}
	lock, err := acquireNotifyLock(ctx, "payment", orderNo)
	if err != nil {
		return "", err
	}
	defer releaseNotifyLock(ctx, lock)

	log := logger.SW("order_no", orderNo, "transaction_id", notify.TransactionID, "outcome", notify.Outcome)
	if notify.Outcome != constants.NotifyOutcomeSuccess {
		log.Infow("payment_notify_ignored", "reason", "non_success_outcome", "trade_state", notify.TradeState)
		s.metrics.ObserveNotification("payment", NotifyResultIgnored)
		return NotifyResultIgnored, nil
	}

	result := NotifyResultApplied
	var order *models.Order
	var change statusChange
	var refundNeeded bool
	err = models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.orderRepo.WithTx(tx).GetByOrderNoForUpdate(orderNo)
		if err != nil {
			return err
		}
		if row == nil {
			return ErrOrderNotFound
		}
		order = row
		if row.IsPaid() || (row.TransactionID != "" && row.TransactionID == notify.TransactionID) {
			result = NotifyResultDuplicate
			return nil
		}
		if expected := row.TotalAmount.ToFen(); notify.AmountFen != expected {
			log.Errorw("payment_notify_amount_mismatch", "expected_fen", expected, "actual_fen", notify.AmountFen)
			return ErrPaymentAmountMismatch
		}
		if s.paymentExpired(row) {
			log.Warnw("payment_notify_order_expired", "created_at", row.CreatedAt)
			if change, _, err = s.cancelTx(tx, row, constants.CancelReasonTimeout); err != nil {
				return err
			}
		}
		if row.Status != constants.OrderStatusPendingPayment {
			log.Errorw("payment_notify_order_not_payable", "status", row.Status, "payment_status", row.PaymentStatus)
			result = NotifyResultIgnored
			refundNeeded, err = s.refundUnpayableCaptureTx(tx, row, notify)
			return err
		}
		change, err = s.markPaidTx(tx, row, MarkPaidInput{
			OrderNo:       orderNo,
			PaymentMethod: constants.PaymentMethodWechat,
			TransactionID: notify.TransactionID,
			PaidAt:        notify.PaidAt,
		})
		return err
	})
	if err != nil {
		s.metrics.ObserveNotification("payment", "error")
		log.Warnw("payment_notify_failed", "error", err)
		return "", err
	}
	s.observe(change)
	s.metrics.ObserveNotification("payment", result)
	log.Infow("payment_notify_handled", "order_id", order.ID, "result", result)
	if refundNeeded {
		s.requestRefundInitiation(ctx, order)
	}
	return result, nil
}

// refundUnpayableCaptureTx 订单已不可支付但网关已扣款时，记下交易号并标记待退款
// 订单状态保持不变，只补齐发起全额退款所需的字段
func (s *OrderService) refundUnpayableCaptureTx(tx *gorm.DB, order *models.Order, notify PaymentNotify) (bool, error) {
	transactionID := strings.TrimSpace(notify.TransactionID)
	if transactionID == "" || order.PaymentStatus != constants.PaymentStatusUnpaid {
		return false, nil
	}
	paidAt := s.now()
	if notify.PaidAt != nil && !notify.PaidAt.IsZero() {
		paidAt = *notify.PaidAt
	}
	refundNo := buildRefundNo(s.cfg.RefundRefPrefix, order.OrderNo)
	if err := s.orderRepo.WithTx(tx).Update(order.ID, map[string]interface{}{
		"payment_status": constants.PaymentStatusRefunded,
		"payment_method": constants.PaymentMethodWechat,
		"payment_time":   paidAt,
		"transaction_id": transactionID,
		"refund_no":      refundNo,
	}); err != nil {
		return false, err
	}
	order.PaymentStatus = constants.PaymentStatusRefunded
	order.PaymentMethod = constants.PaymentMethodWechat
	order.PaymentTime = &paidAt
	order.TransactionID = transactionID
	order.RefundNo = refundNo
	logger.Warnw("order_unpayable_capture_refund",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"status", order.Status,
		"transaction_id", transactionID,
	)
	return true, nil
}

// HandleRefundNotify 处理退款回调，按退款单号定位订单
func (s *OrderService) HandleRefundNotify(ctx context.Context, notify RefundNotify) (string, error) {
	ref := strings.TrimSpace(notify.RefundOrderRef)
	if ref == "" {
		return "", ErrOrderNotFound
	}
	lock, err := acquireNotifyLock(ctx, "refund", ref)
	if err != nil {
		return "", err
	}
	defer releaseNotifyLock(ctx, lock)

	log := logger.SW("refund_no", ref, "refund_transaction_id", notify.TransactionID, "outcome", notify.Outcome)
	if notify.Outcome != constants.NotifyOutcomeSuccess {
		log.Errorw("refund_notify_not_successful", "refund_status", notify.RefundStatus)
		s.metrics.ObserveNotification("refund", NotifyResultIgnored)
		s.metrics.ObserveRefund("gateway_failed")
		return NotifyResultIgnored, nil
	}

	result := NotifyResultApplied
	var order *models.Order
	var change statusChange
	err = models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.findOrderByRefundRef(tx, ref, notify.OrderNo)
		if err != nil {
			return err
		}
		order = row
		switch {
		case row.Status == constants.OrderStatusRefundPending:
			change, err = s.approveRefundTx(tx, row, "", notify.TransactionID)
			return err
		case row.PaymentStatus == constants.PaymentStatusRefunded:
			if row.RefundTransactionID != "" || notify.TransactionID == "" {
				result = NotifyResultDuplicate
				return nil
			}
			row.RefundTransactionID = notify.TransactionID
			return s.orderRepo.WithTx(tx).Update(row.ID, map[string]interface{}{
				"refund_transaction_id": notify.TransactionID,
			})
		default:
			log.Warnw("refund_notify_order_not_refundable", "status", row.Status, "payment_status", row.PaymentStatus)
			result = NotifyResultIgnored
			return nil
		}
	})
	if err != nil {
		s.metrics.ObserveNotification("refund", "error")
		log.Warnw("refund_notify_failed", "error", err)
		return "", err
	}
	s.observe(change)
	s.metrics.ObserveNotification("refund", result)
	if result == NotifyResultApplied {
		s.metrics.ObserveRefund("succeeded")
	}
	log.Infow("refund_notify_handled", "order_id", order.ID, "result", result)
	return result, nil
}

// findOrderByRefundRef 先按已记录的退款单号查找，再按 前缀_订单号 规则回退到订单号
func (s *OrderService) findOrderByRefundRef(tx *gorm.DB, ref, orderNo string) (*models.Order, error) {
	repo := s.orderRepo.WithTx(tx)
	row, err := repo.GetByRefundNoForUpdate(ref)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return row, nil
	}
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		prefix := strings.TrimSpace(s.cfg.RefundRefPrefix)
		if prefix == "" {
			prefix = "RF"
		}
		orderNo = strings.TrimPrefix(ref, prefix+"_")
	}
	row, err = repo.GetByOrderNoForUpdate(orderNo)
	if err != nil {
		return nil, err
	}
	if row == nil || buildRefundNo(s.cfg.RefundRefPrefix, row.OrderNo) != ref {
		return nil, ErrOrderNotFound
	}
	return row, nil
}

func acquireNotifyLock(ctx context.Context, kind, ref string) (*cache.Lock, error) {
	lock, ok, err := cache.TryLock(ctx, cache.NotifyLockKey(kind, ref), notifyLockTTL)
	if err != nil {
		logger.Warnw("notify_lock_unavailable", "kind", kind, "ref", ref, "error", err)
		return nil, nil
	}
	if !ok {
		return nil, ErrNotifyInProgress
	}
	return lock, nil
}

func releaseNotifyLock(ctx context.Context, lock *cache.Lock) {
	if err := lock.Release(ctx); err != nil {
		logger.Warnw("notify_lock_release_failed", "error", err)
	}
}
