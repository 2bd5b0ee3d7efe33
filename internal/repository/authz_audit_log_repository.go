package repository

import (
	"github.com/mall-next/internal/models"

	"gorm.io/gorm"
)

// AuthzAuditLogRepository 权限审计日志数据访问接口
type AuthzAuditLogRepository interface {
	Create(entry *models.AuthzAuditLog) error
	List(filter AuthzAuditLogListFilter) ([]models.AuthzAuditLog, int64, error)
}

// GormAuthzAuditLogRepository GORM 实现
type GormAuthzAuditLogRepository struct {
	db *gorm.DB
}

// NewAuthzAuditLogRepository 创建权限审计日志仓库
func NewAuthzAuditLogRepository(db *gorm.DB) *GormAuthzAuditLogRepository {
	return &GormAuthzAuditLogRepository{db: db}
}

// Create 写入一条审计记录，nil 忽略
func (r *GormAuthzAuditLogRepository) Create(entry *models.AuthzAuditLog) error {
	if entry == nil {
		return nil
	}
	return r.db.Create(entry).Error
}

// List 最新记录在前
func (r *GormAuthzAuditLogRepository) List(filter AuthzAuditLogListFilter) ([]models.AuthzAuditLog, int64, error) {
	var total int64
	if err := r.db.Model(&models.AuthzAuditLog{}).Scopes(filter.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	logs := make([]models.AuthzAuditLog, 0)
	if total == 0 {
		return logs, 0, nil
	}
	err := applyPagination(r.db.Scopes(filter.scope), filter.Page, filter.PageSize).
		Order("id DESC").
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// scope 零值字段不参与过滤
func (f AuthzAuditLogListFilter) scope(db *gorm.DB) *gorm.DB {
	conds := map[string]interface{}{}
	if f.OperatorAdminID != 0 {
		conds["operator_admin_id"] = f.OperatorAdminID
	}
	if f.TargetAdminID != 0 {
		conds["target_admin_id"] = f.TargetAdminID
	}
	if f.Action != "" {
		conds["action"] = f.Action
	}
	if len(conds) > 0 {
		db = db.Where(conds)
	}
	if f.CreatedFrom != nil {
		db = db.Where("created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		db = db.Where("created_at <= ?", *f.CreatedTo)
	}
	return db
}
