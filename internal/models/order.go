package models

import (
	"time"

	"github.com/mall-next/internal/constants"
)

// Order 订单表
type Order struct {
	ID                  uint       `gorm:"primarykey" json:"id"`                                          // 主键
	OrderNo             string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_no"`         // 订单编号
	UserID              uint       `gorm:"index;not null" json:"user_id"`                                 // 下单用户ID
	TotalAmount         Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`     // 订单总额（创建后不变）
	Status              string     `gorm:"type:varchar(32);index;not null" json:"status"`                 // 订单状态
	PaymentStatus       string     `gorm:"type:varchar(16);index;not null" json:"payment_status"`         // 支付状态
	PaymentMethod       string     `gorm:"type:varchar(32)" json:"payment_method,omitempty"`              // 支付方式
	TransactionID       string     `gorm:"type:varchar(64);index" json:"transaction_id,omitempty"`        // 网关交易号
	Consignee           string     `gorm:"type:varchar(64)" json:"consignee"`                             // 收货人
	Phone               string     `gorm:"type:varchar(32)" json:"phone"`                                 // 联系电话
	Address             string     `gorm:"type:varchar(500)" json:"address"`                              // 收货地址
	Remark              string     `gorm:"type:varchar(500)" json:"remark,omitempty"`                     // 买家备注
	TrackingNo          string     `gorm:"type:varchar(64)" json:"tracking_no,omitempty"`                 // 物流单号
	TrackingCompany     string     `gorm:"type:varchar(64)" json:"tracking_company,omitempty"`            // 物流公司
	CancelReason        string     `gorm:"type:varchar(64)" json:"cancel_reason,omitempty"`               // 取消原因
	RefundReason        string     `gorm:"type:varchar(500)" json:"refund_reason,omitempty"`              // 退款原因
	RefundRemark        string     `gorm:"type:varchar(500)" json:"refund_remark,omitempty"`              // 退款审核备注
	RefundNo            string     `gorm:"type:varchar(64);index" json:"refund_no,omitempty"`             // 退款单号（网关 out_refund_no）
	RefundTransactionID string     `gorm:"type:varchar(64)" json:"refund_transaction_id,omitempty"`       // 网关退款单号
	PaymentTime         *time.Time `json:"payment_time"`                                                  // 支付时间
	DeliveryTime        *time.Time `json:"delivery_time"`                                                 // 发货时间
	CompletionTime      *time.Time `json:"completion_time"`                                               // 完成时间
	CancelTime          *time.Time `json:"cancel_time"`                                                   // 取消时间
	RefundRequestTime   *time.Time `json:"refund_request_time"`                                           // 申请退款时间
	RefundApprovalTime  *time.Time `json:"refund_approval_time"`                                          // 退款审核时间
	CreatedAt           time.Time  `gorm:"index" json:"created_at"`                                       // 创建时间
	UpdatedAt           time.Time  `json:"updated_at"`                                                    // 更新时间

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"` // 订单项
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// IsPaid 是否已支付
func (o *Order) IsPaid() bool {
	return o != nil && o.PaymentStatus == constants.PaymentStatusPaid
}

// IsTerminal 是否处于终态
func (o *Order) IsTerminal() bool {
	if o == nil {
		return false
	}
	switch o.Status {
	case constants.OrderStatusCompleted,
		constants.OrderStatusCancelled,
		constants.OrderStatusRefundApproved,
		constants.OrderStatusRefundRejected:
		return true
	}
	return false
}
