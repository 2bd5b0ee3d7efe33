package models

import "time"

// Commission 推广佣金记录，(order_id, user_id) 唯一
type Commission struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_commission_order_inviter,unique,priority:2;index" json:"user_id"` // 受益人（邀请人）
	InviteeID uint      `gorm:"not null;index" json:"invitee_id"`                                                 // 被邀请人（下单用户）
	OrderID   uint      `gorm:"not null;index:idx_commission_order_inviter,unique,priority:1" json:"order_id"`
	Amount    Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`
	Status    string    `gorm:"type:varchar(16);index;not null" json:"status"`
	Remark    string    `gorm:"type:varchar(255)" json:"remark,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Inviter *User  `gorm:"foreignKey:UserID" json:"inviter,omitempty"`
	Invitee *User  `gorm:"foreignKey:InviteeID" json:"invitee,omitempty"`
	Order   *Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

// TableName 指定表名
func (Commission) TableName() string {
	return "commissions"
}
