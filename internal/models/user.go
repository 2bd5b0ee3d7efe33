package models

import "time"

// User 用户表（订单与佣金相关字段）
type User struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	Nickname    string     `gorm:"type:varchar(64)" json:"nickname"`
	Phone       string     `gorm:"type:varchar(32);index" json:"phone"`
	OpenID      string     `gorm:"type:varchar(64);index" json:"-"`
	InviteCode  string     `gorm:"type:varchar(16);index" json:"invite_code"`
	InviterID   *uint      `gorm:"index" json:"inviter_id,omitempty"`                            // 邀请人，只设置一次
	Commission  Money      `gorm:"type:decimal(20,2);not null;default:0" json:"commission"`      // 佣金余额
	IsVip       bool       `gorm:"not null;default:false" json:"is_vip"`
	VipExpireAt *time.Time `json:"vip_expire_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// IsVipActive 会员是否在有效期内
func (u *User) IsVipActive(now time.Time) bool {
	if u == nil || !u.IsVip || u.VipExpireAt == nil {
		return false
	}
	return u.VipExpireAt.After(now)
}
