package repository

import (
	"strings"
	"time"

	"github.com/mall-next/internal/constants"
	"github.com/mall-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommissionRepository 佣金记录数据访问接口
type CommissionRepository interface {
	Create(commission *models.Commission) error
	CreateIfAbsent(commission *models.Commission) (bool, error)
	GetByID(id uint) (*models.Commission, error)
	GetByIDForUpdate(id uint) (*models.Commission, error)
	GetByOrderAndInviter(orderID, inviterID uint) (*models.Commission, error)
	UpdateStatus(id uint, status, remark string) error
	List(filter CommissionListFilter) ([]models.Commission, int64, error)
	SettledStats(now time.Time) (*CommissionSettledStats, error)
	WithTx(tx *gorm.DB) CommissionRepository
}

// GormCommissionRepository GORM 实现
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金仓库
func NewCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCommissionRepository) WithTx(tx *gorm.DB) CommissionRepository {
	if tx == nil {
		return r
	}
	return &GormCommissionRepository{db: tx}
}

// Create 创建佣金记录
func (r *GormCommissionRepository) Create(commission *models.Commission) error {
	return r.db.Create(commission).Error
}

// CreateIfAbsent 按 (order_id, user_id) 唯一键插入，已存在时返回 false
func (r *GormCommissionRepository) CreateIfAbsent(commission *models.Commission) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(commission)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByID 获取佣金记录
func (r *GormCommissionRepository) GetByID(id uint) (*models.Commission, error) {
	var row models.Commission
	if err := r.db.Preload("Inviter").Preload("Invitee").Preload("Order").First(&row, id).Error; err != nil {
		return nilIfNotFound[models.Commission](err)
	}
	return &row, nil
}

// GetByIDForUpdate 加行锁获取佣金记录
func (r *GormCommissionRepository) GetByIDForUpdate(id uint) (*models.Commission, error) {
	var row models.Commission
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, id).Error; err != nil {
		return nilIfNotFound[models.Commission](err)
	}
	return &row, nil
}

// GetByOrderAndInviter 按订单与受益人查询
func (r *GormCommissionRepository) GetByOrderAndInviter(orderID, inviterID uint) (*models.Commission, error) {
	if orderID == 0 || inviterID == 0 {
		return nil, nil
	}
	var row models.Commission
	if err := r.db.Where("order_id = ? AND user_id = ?", orderID, inviterID).First(&row).Error; err != nil {
		return nilIfNotFound[models.Commission](err)
	}
	return &row, nil
}

// UpdateStatus 更新状态与备注
func (r *GormCommissionRepository) UpdateStatus(id uint, status, remark string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if remark != "" {
		updates["remark"] = remark
	}
	return r.db.Model(&models.Commission{}).Where("id = ?", id).Updates(updates).Error
}

// List 管理端佣金列表
func (r *GormCommissionRepository) List(filter CommissionListFilter) ([]models.Commission, int64, error) {
	query := r.db.Model(&models.Commission{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("commissions.status = ?", status)
	}
	if filter.UserID != 0 {
		query = query.Where("commissions.user_id = ?", filter.UserID)
	}
	if phone := strings.TrimSpace(filter.Phone); phone != "" {
		query = whereContains(query.Joins("LEFT JOIN users u ON u.id = commissions.user_id"), phone, "u.phone", "u.nickname")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Commission
	if err := query.
		Preload("Inviter").
		Preload("Invitee").
		Preload("Order").
		Order("commissions.id desc").
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// SettledStats 已结算佣金统计：总额、今日、本月与记录总数
func (r *GormCommissionRepository) SettledStats(now time.Time) (*CommissionSettledStats, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats := &CommissionSettledStats{}
	if err := r.sumSettled(nil, &stats.Total); err != nil {
		return nil, err
	}
	if err := r.sumSettled(&dayStart, &stats.Today); err != nil {
		return nil, err
	}
	if err := r.sumSettled(&monthStart, &stats.Month); err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.Commission{}).Count(&stats.RecordCount).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *GormCommissionRepository) sumSettled(from *time.Time, out *models.Money) error {
	query := r.db.Model(&models.Commission{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("status = ?", constants.CommissionStatusSettled)
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	return query.Row().Scan(out)
}
