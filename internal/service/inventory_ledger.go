package service

import (
	"fmt"

	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/metrics"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/repository"

	"gorm.io/gorm"
)

// InventoryLedger 商品库存与销量台账，只在调用方事务内操作
type InventoryLedger struct {
	productRepo repository.ProductRepository
	metrics     *metrics.OrderMetrics
}

// NewInventoryLedger 创建库存台账
func NewInventoryLedger(productRepo repository.ProductRepository, orderMetrics *metrics.OrderMetrics) *InventoryLedger {
	return &InventoryLedger{productRepo: productRepo, metrics: orderMetrics}
}

// Debit 扣减库存并累加销量，库存不足返回 *InsufficientStockError
func (l *InventoryLedger) Debit(tx *gorm.DB, productID uint, quantity int) error {
	if productID == 0 || quantity <= 0 {
		return ErrInvalidOrderItem
	}
	repo := l.productRepo.WithTx(tx)
	rows, err := repo.DebitStock(productID, quantity)
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	product, err := repo.GetByID(productID)
	if err != nil {
		return err
	}
	if product == nil {
		return ErrProductNotFound
	}
	l.metrics.IncInsufficientStock()
	return &InsufficientStockError{
		ProductID: productID,
		Requested: quantity,
		Available: product.Stock,
	}
}

// Credit 回补库存并扣减销量，冲正导致销量为负时记录错误并将销量归零
func (l *InventoryLedger) Credit(tx *gorm.DB, productID uint, quantity int) error {
	if productID == 0 || quantity <= 0 {
		return ErrInvalidOrderItem
	}
	repo := l.productRepo.WithTx(tx)
	rows, err := repo.CreditStock(productID, quantity)
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	product, err := repo.GetByID(productID)
	if err != nil {
		return err
	}
	if product == nil {
		return fmt.Errorf("inventory credit: product %d missing", productID)
	}
	logger.Errorw("inventory_credit_sales_underflow",
		"product_id", productID,
		"quantity", quantity,
		"sales", product.Sales,
		"stock", product.Stock,
	)
	if _, err := repo.CreditStockClampSales(productID, quantity); err != nil {
		return err
	}
	return nil
}

// DebitItems 按订单项逐个扣减
func (l *InventoryLedger) DebitItems(tx *gorm.DB, items []models.OrderItem) error {
	for _, item := range items {
		if err := l.Debit(tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// CreditItems 按订单项逐个回补
func (l *InventoryLedger) CreditItems(tx *gorm.DB, items []models.OrderItem) error {
	for _, item := range items {
		if err := l.Credit(tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}
