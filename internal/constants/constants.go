package constants

// 订单状态常量
const (
	OrderStatusPendingPayment  = "pending_payment"
	OrderStatusPendingDelivery = "pending_delivery"
	OrderStatusDelivered       = "delivered"
	OrderStatusCompleted       = "completed"
	OrderStatusCancelled       = "cancelled"
	OrderStatusRefundPending   = "refund_pending"
	OrderStatusRefundApproved  = "refund_approved"
	OrderStatusRefundRejected  = "refund_rejected"
)

// 订单支付状态常量
const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

// 支付方式常量
const (
	PaymentMethodWechat = "wechat"
)

// 网关通知结果常量
const (
	NotifyOutcomeSuccess = "SUCCESS"
	NotifyOutcomeFailure = "FAILURE"
)

// 佣金状态常量
const (
	CommissionStatusPending   = "pending"
	CommissionStatusSettled   = "settled"
	CommissionStatusCancelled = "cancelled"
)

// 商品状态常量
const (
	ProductStatusOnSale  = "on_sale"
	ProductStatusOffSale = "off_sale"
	ProductStatusDeleted = "deleted"
)

// 退款审核默认备注
const (
	RefundApprovedDefaultRemark = "退款申请已通过"
	RefundRejectedDefaultRemark = "退款申请已拒绝"
)

// 取消原因
const (
	CancelReasonUser    = "user_cancel"
	CancelReasonAdmin   = "admin_cancel"
	CancelReasonTimeout = "payment_timeout"
)

// 管理员角色
const (
	AdminRoleSupport = "support"
	AdminRoleFinance = "finance"
)

// 队列与任务类型
const (
	QueueDefault  = "default"
	QueueCritical = "critical"

	TaskOrderTimeoutCancel  = "order:timeout_cancel"
	TaskOrderRefundInitiate = "order:refund_initiate"
)
