package service

import (
	"context"
	"strings"
	"time"

	"github.com/mall-next/internal/cache"
	"github.com/mall-next/internal/constants"
	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/metrics"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultCommissionStatsTTL = 60 * time.Second

// CommissionService 推广佣金台账
type CommissionService struct {
	commissionRepo repository.CommissionRepository
	userRepo       repository.UserRepository
	rate           decimal.Decimal
	statsTTL       time.Duration
	metrics        *metrics.OrderMetrics
}

// NewCommissionService 创建佣金服务，rate 为小数比例
func NewCommissionService(commissionRepo repository.CommissionRepository, userRepo repository.UserRepository, rate decimal.Decimal, statsTTL time.Duration, orderMetrics *metrics.OrderMetrics) *CommissionService {
	if statsTTL <= 0 {
		statsTTL = defaultCommissionStatsTTL
	}
	return &CommissionService{
		commissionRepo: commissionRepo,
		userRepo:       userRepo,
		rate:           rate,
		statsTTL:       statsTTL,
		metrics:        orderMetrics,
	}
}

// Rate 当前佣金比例
func (s *CommissionService) Rate() decimal.Decimal {
	return s.rate
}

// CalculateAmount 佣金金额 = round2(订单总额 × 比例)
func (s *CommissionService) CalculateAmount(total models.Money) decimal.Decimal {
	return total.Decimal.Mul(s.rate).Round(2)
}

// AccrueOnCompletion 订单完成时为邀请人入账，须在订单完成的同一事务内调用。
// 购买人无邀请人、金额为 0 或该订单已入账时返回 nil。
func (s *CommissionService) AccrueOnCompletion(tx *gorm.DB, order *models.Order) (*models.Commission, error) {
	if order == nil {
		return nil, ErrOrderNotFound
	}
	userRepo := s.userRepo.WithTx(tx)
	commissionRepo := s.commissionRepo.WithTx(tx)

	purchaser, err := userRepo.GetByID(order.UserID)
	if err != nil {
		return nil, err
	}
	if purchaser == nil {
		return nil, ErrUserNotFound
	}
	if purchaser.InviterID == nil || *purchaser.InviterID == 0 || *purchaser.InviterID == purchaser.ID {
		return nil, nil
	}
	inviterID := *purchaser.InviterID

	existing, err := commissionRepo.GetByOrderAndInviter(order.ID, inviterID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Infow("commission_accrual_duplicate_skipped",
			"order_id", order.ID,
			"inviter_id", inviterID,
			"commission_id", existing.ID,
		)
		return nil, nil
	}

	amount := s.CalculateAmount(order.TotalAmount)
	if !amount.IsPositive() {
		return nil, nil
	}
	record := &models.Commission{
		UserID:    inviterID,
		InviteeID: purchaser.ID,
		OrderID:   order.ID,
		Amount:    models.NewMoneyFromDecimal(amount),
		Status:    constants.CommissionStatusSettled,
	}
	created, err := commissionRepo.CreateIfAbsent(record)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}
	rows, err := userRepo.AdjustCommission(inviterID, amount)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrUserNotFound
	}
	s.metrics.ObserveCommission(amount)
	logger.Infow("commission_accrued",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"inviter_id", inviterID,
		"invitee_id", purchaser.ID,
		"amount", record.Amount.String(),
	)
	return record, nil
}

// UpdateStatus 管理员调整佣金状态，同步增减邀请人余额
func (s *CommissionService) UpdateStatus(ctx context.Context, id uint, status, remark string) (*models.Commission, error) {
	status = strings.TrimSpace(status)
	if !isCommissionStatusValid(status) {
		return nil, ErrInvalidCommissionStatus
	}
	var changed bool
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		commissionRepo := s.commissionRepo.WithTx(tx)
		row, err := commissionRepo.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if row == nil {
			return ErrCommissionNotFound
		}
		if row.Status == status {
			return nil
		}
		delta := commissionBalanceDelta(row.Status, status, row.Amount.Decimal)
		if err := commissionRepo.UpdateStatus(row.ID, status, strings.TrimSpace(remark)); err != nil {
			return err
		}
		if !delta.IsZero() {
			rows, err := s.userRepo.WithTx(tx).AdjustCommission(row.UserID, delta)
			if err != nil {
				return err
			}
			if rows == 0 {
				return ErrUserNotFound
			}
		}
		logger.Infow("commission_status_updated",
			"commission_id", row.ID,
			"from", row.Status,
			"to", status,
			"balance_delta", delta.StringFixed(2),
		)
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.InvalidateStats(ctx)
	}
	return s.commissionRepo.GetByID(id)
}

// commissionBalanceDelta 余额只反映已结算记录
func commissionBalanceDelta(from, to string, amount decimal.Decimal) decimal.Decimal {
	switch {
	case from == constants.CommissionStatusSettled && to != constants.CommissionStatusSettled:
		return amount.Neg()
	case from != constants.CommissionStatusSettled && to == constants.CommissionStatusSettled:
		return amount
	default:
		return decimal.Zero
	}
}

func isCommissionStatusValid(status string) bool {
	switch status {
	case constants.CommissionStatusPending, constants.CommissionStatusSettled, constants.CommissionStatusCancelled:
		return true
	}
	return false
}

// Get 佣金详情
func (s *CommissionService) Get(id uint) (*models.Commission, error) {
	row, err := s.commissionRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrCommissionNotFound
	}
	return row, nil
}

// List 管理端佣金列表
func (s *CommissionService) List(filter repository.CommissionListFilter) ([]models.Commission, int64, error) {
	return s.commissionRepo.List(filter)
}

// MyCommissions 用户自己的佣金记录与当前余额
func (s *CommissionService) MyCommissions(userID uint, page, pageSize int) ([]models.Commission, int64, models.Money, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, 0, models.Money{}, err
	}
	if user == nil {
		return nil, 0, models.Money{}, ErrUserNotFound
	}
	rows, total, err := s.commissionRepo.List(repository.CommissionListFilter{
		UserID:   userID,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, 0, models.Money{}, err
	}
	return rows, total, user.Commission, nil
}

// Stats 已结算佣金统计，带短期缓存
func (s *CommissionService) Stats(ctx context.Context) (*repository.CommissionSettledStats, error) {
	var cached repository.CommissionSettledStats
	if hit, err := cache.GetJSON(ctx, cache.KeyCommissionStats, &cached); err != nil {
		logger.Warnw("commission_stats_cache_read_failed", "error", err)
	} else if hit {
		return &cached, nil
	}
	stats, err := s.commissionRepo.SettledStats(time.Now())
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, cache.KeyCommissionStats, stats, s.statsTTL); err != nil {
		logger.Warnw("commission_stats_cache_write_failed", "error", err)
	}
	return stats, nil
}

// InvalidateStats 清除统计缓存
func (s *CommissionService) InvalidateStats(ctx context.Context) {
	if err := cache.Del(ctx, cache.KeyCommissionStats); err != nil {
		logger.Warnw("commission_stats_cache_invalidate_failed", "error", err)
	}
}
