package service

import (
	"context"
	"strings"

	"github.com/mall-next/internal/constants"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/repository"
)

var orderStatuses = []string{
	constants.OrderStatusPendingPayment,
	constants.OrderStatusPendingDelivery,
	constants.OrderStatusDelivered,
	constants.OrderStatusCompleted,
	constants.OrderStatusCancelled,
	constants.OrderStatusRefundPending,
	constants.OrderStatusRefundApproved,
	constants.OrderStatusRefundRejected,
}

// IsValidOrderStatus 判断是否为已知订单状态
func IsValidOrderStatus(status string) bool {
	for _, item := range orderStatuses {
		if item == status {
			return true
		}
	}
	return false
}

// ListOrdersByUser 用户订单列表，已过支付时限的订单顺带取消
func (s *OrderService) ListOrdersByUser(ctx context.Context, userID uint, status string, page, pageSize int) ([]models.Order, int64, error) {
	if userID == 0 {
		return nil, 0, ErrUserNotFound
	}
	orders, total, err := s.orderRepo.ListByUser(repository.OrderListFilter{
		UserID:   userID,
		Status:   strings.TrimSpace(status),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, 0, ErrOrderFetchFailed
	}
	for i := range orders {
		synced, err := s.ensureOrderCancelledIfExpired(ctx, &orders[i])
		if err != nil {
			return nil, 0, err
		}
		orders[i] = *synced
	}
	return orders, total, nil
}

// GetOrderByUser 用户订单详情
func (s *OrderService) GetOrderByUser(ctx context.Context, orderID, userID uint) (*models.Order, error) {
	if orderID == 0 || userID == 0 {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByIDAndUser(orderID, userID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return s.ensureOrderCancelledIfExpired(ctx, order)
}

// CountOrdersByStatus 用户各状态订单数，未出现的状态补 0
func (s *OrderService) CountOrdersByStatus(userID uint) (map[string]int64, error) {
	counts, err := s.orderRepo.CountByStatus(userID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	result := make(map[string]int64, len(orderStatuses))
	for _, status := range orderStatuses {
		result[status] = counts[status]
	}
	return result, nil
}

// ListOrdersForAdmin 管理端订单列表
func (s *OrderService) ListOrdersForAdmin(filter repository.OrderListFilter) ([]models.Order, int64, error) {
	filter.Status = strings.TrimSpace(filter.Status)
	filter.OrderNo = strings.TrimSpace(filter.OrderNo)
	orders, total, err := s.orderRepo.ListAdmin(filter)
	if err != nil {
		return nil, 0, ErrOrderFetchFailed
	}
	return orders, total, nil
}

// GetOrderForAdmin 管理端订单详情
func (s *OrderService) GetOrderForAdmin(orderID uint) (*models.Order, error) {
	if orderID == 0 {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}
