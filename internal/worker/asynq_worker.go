package worker

import (
	"context"
	"errors"
	"sort"

	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/provider"
	"github.com/mall-next/internal/queue"
	"github.com/mall-next/internal/service"

	"github.com/hibiken/asynq"
)

// OrderTaskHandler 订单异步任务依赖的服务能力
type OrderTaskHandler interface {
	CancelExpiredOrder(ctx context.Context, orderID uint) (*models.Order, error)
	InitiateRefund(ctx context.Context, orderID uint) error
}

// Consumer 异步任务消费者
type Consumer struct {
	orders OrderTaskHandler
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	if c == nil || c.OrderService == nil {
		return &Consumer{}
	}
	return &Consumer{orders: c.OrderService}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	for taskType, handler := range c.handlers() {
		mux.HandleFunc(taskType, handler)
	}
}

func (c *Consumer) handlers() map[string]func(context.Context, *asynq.Task) error {
	return map[string]func(context.Context, *asynq.Task) error{
		queue.TaskOrderTimeoutCancel:  c.handleOrderTimeoutCancel,
		queue.TaskOrderRefundInitiate: c.handleOrderRefundInitiate,
	}
}

// TaskTypes 已注册的任务类型，按字典序
func (c *Consumer) TaskTypes() []string {
	if c == nil {
		return nil
	}
	types := make([]string, 0, 2)
	for taskType := range c.handlers() {
		types = append(types, taskType)
	}
	sort.Strings(types)
	return types
}

func (c *Consumer) handleOrderTimeoutCancel(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_timeout_cancel_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseOrderTimeoutCancelPayload(task)
	if err != nil {
		logger.Warnw("worker_order_timeout_cancel_unmarshal_failed", "error", err)
		// 载荷损坏重试无意义
		return errors.Join(err, asynq.SkipRetry)
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_timeout_cancel_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.orders == nil {
		logger.Warnw("worker_order_timeout_cancel_skip_order_service_nil", "order_id", payload.OrderID)
		return nil
	}
	order, err := c.orders.CancelExpiredOrder(ctx, payload.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			logger.Debugw("worker_order_timeout_cancel_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		case errors.Is(err, service.ErrInvalidTransition):
			logger.Debugw("worker_order_timeout_cancel_skip_status_changed", "order_id", payload.OrderID, "error", err)
			return nil
		case errors.Is(err, service.ErrOrderNotExpired):
			logger.Infow("worker_order_timeout_cancel_not_due", "order_id", payload.OrderID, "error", err)
			return err
		case errors.Is(err, service.ErrOrderFetchFailed):
			logger.Warnw("worker_order_timeout_cancel_fetch_failed", "order_id", payload.OrderID, "error", err)
			return err
		default:
			logger.Warnw("worker_order_timeout_cancel_failed", "order_id", payload.OrderID, "error", err)
			return err
		}
	}
	if order != nil {
		logger.Debugw("worker_order_timeout_cancel_done", "order_id", order.ID, "status", order.Status)
	}
	return nil
}

func (c *Consumer) handleOrderRefundInitiate(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_refund_initiate_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseOrderRefundInitiatePayload(task)
	if err != nil {
		logger.Warnw("worker_order_refund_initiate_unmarshal_failed", "error", err)
		return errors.Join(err, asynq.SkipRetry)
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_refund_initiate_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.orders == nil {
		logger.Warnw("worker_order_refund_initiate_skip_order_service_nil", "order_id", payload.OrderID)
		return nil
	}
	if err := c.orders.InitiateRefund(ctx, payload.OrderID); err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			logger.Debugw("worker_order_refund_initiate_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		}
		// 网关失败交给 asynq 重试
		logger.Warnw("worker_order_refund_initiate_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	return nil
}
