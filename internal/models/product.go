package models

import (
	"time"

	"github.com/mall-next/internal/constants"
)

// Product 商品表（仅订单相关字段）
type Product struct {
	ID                 uint      `gorm:"primarykey" json:"id"`                                          // 主键
	Name               string    `gorm:"type:varchar(200);not null" json:"name"`                        // 商品名称
	Cover              string    `gorm:"type:varchar(500)" json:"cover"`                                // 封面
	Price              Money     `gorm:"type:decimal(20,2);not null;default:0" json:"price"`            // 售价
	OriginalPrice      Money     `gorm:"type:decimal(20,2);not null;default:0" json:"original_price"`   // 划线价
	VipPrice           Money     `gorm:"type:decimal(20,2);not null;default:0" json:"vip_price"`        // 会员价，0 表示无
	WholesalePrice     Money     `gorm:"type:decimal(20,2);not null;default:0" json:"wholesale_price"`  // 批发价，0 表示无
	WholesaleThreshold int       `gorm:"not null;default:0" json:"wholesale_threshold"`                 // 批发起订量
	Stock              int       `gorm:"not null;default:0" json:"stock"`                               // 库存
	Sales              int       `gorm:"not null;default:0" json:"sales"`                               // 累计销量
	Status             string    `gorm:"type:varchar(16);index;not null;default:'on_sale'" json:"status"` // 上架状态
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}

// IsOnSale 是否在售
func (p *Product) IsOnSale() bool {
	return p != nil && p.Status == constants.ProductStatusOnSale
}
