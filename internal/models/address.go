package models

import (
	"strings"
	"time"
)

// Address 收货地址
type Address struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Consignee string    `gorm:"type:varchar(64);not null" json:"consignee"`
	Phone     string    `gorm:"type:varchar(32);not null" json:"phone"`
	Province  string    `gorm:"type:varchar(64)" json:"province"`
	City      string    `gorm:"type:varchar(64)" json:"city"`
	District  string    `gorm:"type:varchar(64)" json:"district"`
	Detail    string    `gorm:"type:varchar(255)" json:"detail"`
	IsDefault bool      `gorm:"not null;default:false" json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Address) TableName() string {
	return "addresses"
}

// FullAddress 省市区与详细地址拼接
func (a Address) FullAddress() string {
	var b strings.Builder
	for _, part := range []string{a.Province, a.City, a.District, a.Detail} {
		b.WriteString(strings.TrimSpace(part))
	}
	return b.String()
}
