package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mall-next/internal/constants"
	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/models"

	"gorm.io/gorm"
)

// Optional 区分“未传”与“传了零值”的可选字段
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some 构造已设置的可选值
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UnmarshalJSON 出现该字段即视为已设置，null 视为未设置
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Set = false
		var zero T
		o.Value = zero
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Set = true
	return nil
}

// OrderPatch 管理员修改订单的可选字段
type OrderPatch struct {
	Remark    Optional[string] `json:"remark"`
	Consignee Optional[string] `json:"consignee"`
	Phone     Optional[string] `json:"phone"`
	Address   Optional[string] `json:"address"`
}

type patchField struct {
	column   string
	value    Optional[string]
	maxLen   int
	required bool
	shipping bool
}

func (p OrderPatch) fields() []patchField {
	return []patchField{
		{column: "remark", value: p.Remark, maxLen: 500},
		{column: "consignee", value: p.Consignee, maxLen: 64, required: true, shipping: true},
		{column: "phone", value: p.Phone, maxLen: 32, required: true, shipping: true},
		{column: "address", value: p.Address, maxLen: 500, required: true, shipping: true},
	}
}

// Updates 校验补丁并返回待更新列，不依赖订单状态
func (p OrderPatch) Updates() (map[string]interface{}, bool, error) {
	updates := make(map[string]interface{})
	touchesShipping := false
	for _, field := range p.fields() {
		if !field.value.Set {
			continue
		}
		value := strings.TrimSpace(field.value.Value)
		if field.required && value == "" {
			return nil, false, fmt.Errorf("%w: %s 不能为空", ErrInvalidPatchField, field.column)
		}
		if utf8.RuneCountInString(value) > field.maxLen {
			return nil, false, fmt.Errorf("%w: %s 超出长度限制", ErrInvalidPatchField, field.column)
		}
		updates[field.column] = value
		if field.shipping {
			touchesShipping = true
		}
	}
	if len(updates) == 0 {
		return nil, false, ErrEmptyPatch
	}
	return updates, touchesShipping, nil
}

// PatchOrder 管理员修改订单备注与收货信息，收货信息只允许在发货前修改
func (s *OrderService) PatchOrder(ctx context.Context, orderID uint, patch OrderPatch) (*models.Order, error) {
	updates, touchesShipping, err := patch.Updates()
	if err != nil {
		return nil, err
	}
	var order *models.Order
	err = models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockOrder(tx, orderID, 0)
		if err != nil {
			return err
		}
		order = row
		if touchesShipping &&
			row.Status != constants.OrderStatusPendingPayment &&
			row.Status != constants.OrderStatusPendingDelivery {
			return fmt.Errorf("%w: 订单状态 %s 不可修改收货信息", ErrInvalidPatchField, row.Status)
		}
		return s.orderRepo.WithTx(tx).Update(row.ID, updates)
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("order_patched", "order_id", order.ID, "order_no", order.OrderNo, "fields", len(updates))
	return s.reload(order), nil
}
