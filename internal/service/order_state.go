package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/mall-next/internal/constants"
	"github.com/mall-next/internal/models"

	"github.com/shopspring/decimal"
)

var allowedTransitions = map[string]map[string]bool{
	constants.OrderStatusPendingPayment: {
		constants.OrderStatusPendingDelivery: true,
		constants.OrderStatusCancelled:       true,
	},
	constants.OrderStatusPendingDelivery: {
		constants.OrderStatusDelivered:     true,
		constants.OrderStatusCancelled:     true,
		constants.OrderStatusRefundPending: true,
	},
	constants.OrderStatusDelivered: {
		constants.OrderStatusCompleted:     true,
		constants.OrderStatusRefundPending: true,
	},
	constants.OrderStatusRefundPending: {
		constants.OrderStatusRefundApproved: true,
		constants.OrderStatusRefundRejected: true,
	},
}

func isTransitionAllowed(current, target string) bool {
	nexts, ok := allowedTransitions[current]
	if !ok {
		return false
	}
	return nexts[target]
}

// 价格档位
const (
	priceTierNormal    = "normal"
	priceTierVip       = "vip"
	priceTierWholesale = "wholesale"
)

// resolveUnitPrice 按 会员价 > 批发价 > 原价 选择成交单价
func resolveUnitPrice(product *models.Product, quantity int, vipActive bool) (decimal.Decimal, string) {
	if vipActive && product.VipPrice.Decimal.IsPositive() {
		return product.VipPrice.Decimal, priceTierVip
	}
	if product.WholesalePrice.Decimal.IsPositive() &&
		product.WholesaleThreshold > 0 &&
		quantity >= product.WholesaleThreshold {
		return product.WholesalePrice.Decimal, priceTierWholesale
	}
	return product.Price.Decimal, priceTierNormal
}

func generateOrderNo(prefix string, now time.Time) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "MN"
	}
	return fmt.Sprintf("%s%s%s", prefix, now.Format("20060102150405"), randNumeric(6))
}

func buildRefundNo(prefix, orderNo string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "RF"
	}
	return prefix + "_" + orderNo
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(n.String())
	}
	return b.String()
}

func decimalFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
