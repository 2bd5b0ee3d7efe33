package repository

import (
	"errors"

	"github.com/mall-next/internal/models"

	"gorm.io/gorm"
)

// ProductRepository 商品库存数据访问接口
type ProductRepository interface {
	GetByID(id uint) (*models.Product, error)
	ListByIDs(ids []uint) ([]models.Product, error)
	DebitStock(productID uint, quantity int) (int64, error)
	CreditStock(productID uint, quantity int) (int64, error)
	CreditStockClampSales(productID uint, quantity int) (int64, error)
	WithTx(tx *gorm.DB) ProductRepository
}

// GormProductRepository GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓库
func NewProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProductRepository) WithTx(tx *gorm.DB) ProductRepository {
	if tx == nil {
		return r
	}
	return &GormProductRepository{db: tx}
}

// GetByID 根据 ID 获取商品
func (r *GormProductRepository) GetByID(id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.First(&product, id).Error; err != nil {
		return nilIfNotFound[models.Product](err)
	}
	return &product, nil
}

// ListByIDs 批量获取商品
func (r *GormProductRepository) ListByIDs(ids []uint) ([]models.Product, error) {
	var products []models.Product
	if len(ids) == 0 {
		return products, nil
	}
	if err := r.db.Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// DebitStock 扣减库存并累加销量，库存不足时不更新（返回 0 行）
func (r *GormProductRepository) DebitStock(productID uint, quantity int) (int64, error) {
	if productID == 0 || quantity <= 0 {
		return 0, errors.New("invalid stock debit params")
	}
	result := r.db.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		Updates(map[string]interface{}{
			"stock": gorm.Expr("stock - ?", quantity),
			"sales": gorm.Expr("sales + ?", quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CreditStock 回补库存并扣减销量，销量不足时不更新（返回 0 行）
func (r *GormProductRepository) CreditStock(productID uint, quantity int) (int64, error) {
	if productID == 0 || quantity <= 0 {
		return 0, errors.New("invalid stock credit params")
	}
	result := r.db.Model(&models.Product{}).
		Where("id = ? AND sales >= ?", productID, quantity).
		Updates(map[string]interface{}{
			"stock": gorm.Expr("stock + ?", quantity),
			"sales": gorm.Expr("sales - ?", quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CreditStockClampSales 回补库存，销量最低归零
func (r *GormProductRepository) CreditStockClampSales(productID uint, quantity int) (int64, error) {
	if productID == 0 || quantity <= 0 {
		return 0, errors.New("invalid stock credit params")
	}
	result := r.db.Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]interface{}{
			"stock": gorm.Expr("stock + ?", quantity),
			"sales": gorm.Expr("CASE WHEN sales >= ? THEN sales - ? ELSE 0 END", quantity, quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
