package repository

import (
	"time"

	"github.com/mall-next/internal/models"
)

// OrderListFilter 订单列表过滤条件
type OrderListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Status      string
	OrderNo     string
	Keyword     string // 订单号、收货人或电话模糊匹配
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// CommissionListFilter 佣金列表过滤条件
type CommissionListFilter struct {
	Page     int
	PageSize int
	Status   string
	UserID   uint   // 受益人
	Phone    string // 受益人手机号或昵称（模糊）
}

// CommissionSettledStats 已结算佣金汇总
type CommissionSettledStats struct {
	Total       models.Money `json:"total"`
	Today       models.Money `json:"today"`
	Month       models.Money `json:"month"`
	RecordCount int64        `json:"record_count"`
}

// AuthzAuditLogListFilter 权限审计日志过滤条件
type AuthzAuditLogListFilter struct {
	Page            int
	PageSize        int
	OperatorAdminID uint
	TargetAdminID   uint
	Action          string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}
