package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const namespace = "mall"

// OrderMetrics 订单与佣金相关指标，nil 接收者安全
type OrderMetrics struct {
	transitions       *prometheus.CounterVec
	insufficientStock prometheus.Counter
	commissionAccrued prometheus.Counter
	commissionAmount  prometheus.Counter
	notifications     *prometheus.CounterVec
	refunds           *prometheus.CounterVec
}

// NewOrderMetrics 在给定 registerer 上注册指标，reg 为 nil 时返回空实现
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions committed.",
		}, []string{"from", "to"}),
		insufficientStock: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_insufficient_stock_total",
			Help:      "Debits refused because stock was insufficient.",
		}),
		commissionAccrued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_accrued_total",
			Help:      "Commission records created on order completion.",
		}),
		commissionAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_accrued_amount_total",
			Help:      "Sum of accrued commission amounts.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_notifications_total",
			Help:      "Payment gateway notifications by kind and result.",
		}, []string{"kind", "result"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_initiations_total",
			Help:      "Refund requests sent to the payment gateway.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.transitions, m.insufficientStock, m.commissionAccrued, m.commissionAmount, m.notifications, m.refunds)
	return m
}

// ObserveTransition 记录一次状态迁移
func (m *OrderMetrics) ObserveTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncInsufficientStock 记录库存不足
func (m *OrderMetrics) IncInsufficientStock() {
	if m == nil || m.insufficientStock == nil {
		return
	}
	m.insufficientStock.Inc()
}

// ObserveCommission 记录一次佣金入账
func (m *OrderMetrics) ObserveCommission(amount decimal.Decimal) {
	if m == nil || m.commissionAccrued == nil {
		return
	}
	m.commissionAccrued.Inc()
	value, _ := amount.Float64()
	if value > 0 {
		m.commissionAmount.Add(value)
	}
}

// ObserveNotification 记录网关回调处理结果
func (m *OrderMetrics) ObserveNotification(kind, result string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
}

// ObserveRefund 记录发起退款结果
func (m *OrderMetrics) ObserveRefund(result string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
