package models

import "time"

// OrderItem 订单项表，商品名称/封面/单价为下单时快照
type OrderItem struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	OrderID     uint      `gorm:"index;not null" json:"order_id"`
	ProductID   uint      `gorm:"index;not null" json:"product_id"`
	ProductName string    `gorm:"type:varchar(200);not null" json:"product_name"`
	Cover       string    `gorm:"type:varchar(500)" json:"cover,omitempty"`
	Price       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"price"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	Rating      *int      `json:"rating,omitempty"`
	Comment     string    `gorm:"type:varchar(1000)" json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (OrderItem) TableName() string {
	return "order_items"
}

// Subtotal 小计
func (i OrderItem) Subtotal() Money {
	return NewMoneyFromDecimal(i.Price.Decimal.Mul(decimalFromInt(i.Quantity)))
}
