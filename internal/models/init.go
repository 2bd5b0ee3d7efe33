package models

import (
	"errors"
	"strings"

	"github.com/mall-next/internal/logger"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const defaultAdminPassword = "admin123"

// EnsureAdmin 确保管理员账号存在，已存在时不修改密码
func EnsureAdmin(db *gorm.DB, username, password string, isSuper bool) (*Admin, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = "admin"
	}
	var existing Admin
	err := db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if password == "" {
		password = defaultAdminPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	admin := Admin{
		Username:     username,
		PasswordHash: string(hash),
		IsSuper:      isSuper,
	}
	if err := db.Create(&admin).Error; err != nil {
		return nil, err
	}
	if password == defaultAdminPassword {
		logger.Warnw("admin_created_with_default_password", "username", username)
	} else {
		logger.Infow("admin_created", "username", username, "is_super", isSuper)
	}
	return &admin, nil
}

// CheckAdminPassword 校验管理员密码
func CheckAdminPassword(admin *Admin, password string) bool {
	if admin == nil || admin.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) == nil
}
