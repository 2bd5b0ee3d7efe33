package repository

import (
	"github.com/mall-next/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 用户数据访问接口
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetByIDForUpdate(id uint) (*models.User, error)
	AdjustCommission(userID uint, delta decimal.Decimal) (int64, error)
	WithTx(tx *gorm.DB) UserRepository
}

// GormUserRepository GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// WithTx 绑定事务
func (r *GormUserRepository) WithTx(tx *gorm.DB) UserRepository {
	if tx == nil {
		return r
	}
	return &GormUserRepository{db: tx}
}

// GetByID 获取用户
func (r *GormUserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nilIfNotFound[models.User](err)
	}
	return &user, nil
}

// GetByIDForUpdate 加行锁获取用户
func (r *GormUserRepository) GetByIDForUpdate(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error; err != nil {
		return nilIfNotFound[models.User](err)
	}
	return &user, nil
}

// AdjustCommission 原子增减佣金余额
func (r *GormUserRepository) AdjustCommission(userID uint, delta decimal.Decimal) (int64, error) {
	result := r.db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("commission", gorm.Expr("commission + ?", delta.Round(2).StringFixed(2)))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
