package queue

import (
	"encoding/json"

	"github.com/mall-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderTimeoutCancel 待支付订单超时取消
	TaskOrderTimeoutCancel = constants.TaskOrderTimeoutCancel
	// TaskOrderRefundInitiate 退款审核通过后向网关发起退款
	TaskOrderRefundInitiate = constants.TaskOrderRefundInitiate
)

// OrderTimeoutCancelPayload 超时取消任务载荷
type OrderTimeoutCancelPayload struct {
	OrderID uint `json:"order_id"`
}

// OrderRefundInitiatePayload 发起退款任务载荷
type OrderRefundInitiatePayload struct {
	OrderID uint `json:"order_id"`
}

// NewOrderTimeoutCancelTask 创建超时取消任务
func NewOrderTimeoutCancelTask(payload OrderTimeoutCancelPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderTimeoutCancel, body), nil
}

// NewOrderRefundInitiateTask 创建发起退款任务
func NewOrderRefundInitiateTask(payload OrderRefundInitiatePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderRefundInitiate, body), nil
}

// ParseOrderTimeoutCancelPayload 解析超时取消载荷
func ParseOrderTimeoutCancelPayload(task *asynq.Task) (OrderTimeoutCancelPayload, error) {
	var payload OrderTimeoutCancelPayload
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}

// ParseOrderRefundInitiatePayload 解析发起退款载荷
func ParseOrderRefundInitiatePayload(task *asynq.Task) (OrderRefundInitiatePayload, error) {
	var payload OrderRefundInitiatePayload
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}
