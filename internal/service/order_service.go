package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/mall-next/internal/config"
	"github.com/mall-next/internal/constants"
	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/metrics"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/payment"
	"github.com/mall-next/internal/queue"
	"github.com/mall-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentGateway 支付网关，调用方保证不在事务内调用
type PaymentGateway interface {
	InitiatePayment(ctx context.Context, orderNo string, amountFen int64, payerRef string) (*payment.Params, error)
	InitiateRefund(ctx context.Context, transactionRef, refundOrderRef string, refundFen, totalFen int64) (*payment.RefundHandle, error)
}

// OrderService 订单生命周期编排
type OrderService struct {
	orderRepo     repository.OrderRepository
	productRepo   repository.ProductRepository
	userRepo      repository.UserRepository
	cartRepo      repository.CartRepository
	addressRepo   repository.AddressRepository
	inventory     *InventoryLedger
	commissionSvc *CommissionService
	gateway       PaymentGateway
	queueClient   *queue.Client
	metrics       *metrics.OrderMetrics
	cfg           config.OrderConfig
	now           func() time.Time
}

// NewOrderService 创建订单服务
func NewOrderService(orderRepo repository.OrderRepository, productRepo repository.ProductRepository, userRepo repository.UserRepository, cartRepo repository.CartRepository, addressRepo repository.AddressRepository, commissionSvc *CommissionService, gateway PaymentGateway, queueClient *queue.Client, orderMetrics *metrics.OrderMetrics, cfg config.OrderConfig) *OrderService {
	if gateway == nil {
		gateway = payment.Disabled{}
	}
	return &OrderService{
		orderRepo:     orderRepo,
		productRepo:   productRepo,
		userRepo:      userRepo,
		cartRepo:      cartRepo,
		addressRepo:   addressRepo,
		inventory:     NewInventoryLedger(productRepo, orderMetrics),
		commissionSvc: commissionSvc,
		gateway:       gateway,
		queueClient:   queueClient,
		metrics:       orderMetrics,
		cfg:           cfg,
		now:           time.Now,
	}
}

// CheckoutInput 购物车结算输入
type CheckoutInput struct {
	UserID    uint
	AddressID uint
	Remark    string
}

// CreateOrderInput 立即购买输入
type CreateOrderInput struct {
	UserID    uint
	AddressID uint
	Items     []CreateOrderItem
	Remark    string
}

// CreateOrderItem 下单商品
type CreateOrderItem struct {
	ProductID uint
	Quantity  int
}

type orderCreateParams struct {
	UserID    uint
	AddressID uint
	Items     []CreateOrderItem
	Remark    string
	FromCart  bool
}

// Checkout 结算购物车中已勾选的商品
func (s *OrderService) Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	if input.UserID == 0 {
		return nil, ErrUserNotFound
	}
	return s.createOrder(ctx, orderCreateParams{
		UserID:    input.UserID,
		AddressID: input.AddressID,
		Remark:    input.Remark,
		FromCart:  true,
	})
}

// CreateOrder 直接购买下单
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.UserID == 0 {
		return nil, ErrUserNotFound
	}
	if len(input.Items) == 0 {
		return nil, ErrInvalidOrderItem
	}
	return s.createOrder(ctx, orderCreateParams{
		UserID:    input.UserID,
		AddressID: input.AddressID,
		Items:     input.Items,
		Remark:    input.Remark,
	})
}

func (s *OrderService) createOrder(ctx context.Context, input orderCreateParams) (*models.Order, error) {
	var order *models.Order
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := input.Items
		if input.FromCart {
			cartItems, err := s.cartRepo.WithTx(tx).ListSelectedItems(input.UserID)
			if err != nil {
				return err
			}
			if len(cartItems) == 0 {
				return ErrEmptyCart
			}
			items = make([]CreateOrderItem, 0, len(cartItems))
			for _, row := range cartItems {
				items = append(items, CreateOrderItem{ProductID: row.ProductID, Quantity: row.Quantity})
			}
		}
		merged, err := mergeCreateOrderItems(items)
		if err != nil {
			return err
		}

		address, err := s.addressRepo.WithTx(tx).GetByIDAndUser(input.AddressID, input.UserID)
		if err != nil {
			return err
		}
		if address == nil {
			return ErrAddressNotFound
		}
		user, err := s.userRepo.WithTx(tx).GetByID(input.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		now := s.now()
		built, err := s.buildOrderItems(tx, merged, user.IsVipActive(now))
		if err != nil {
			return err
		}
		if err := s.inventory.DebitItems(tx, built.Items); err != nil {
			return err
		}

		order = &models.Order{
			OrderNo:       generateOrderNo(s.cfg.NoPrefix, now),
			UserID:        input.UserID,
			TotalAmount:   models.NewMoneyFromDecimal(built.Total),
			Status:        constants.OrderStatusPendingPayment,
			PaymentStatus: constants.PaymentStatusUnpaid,
			Consignee:     strings.TrimSpace(address.Consignee),
			Phone:         strings.TrimSpace(address.Phone),
			Address:       address.FullAddress(),
			Remark:        strings.TrimSpace(input.Remark),
			CreatedAt:     now,
			UpdatedAt:     now,
			Items:         built.Items,
		}
		if err := s.orderRepo.WithTx(tx).Create(order); err != nil {
			return err
		}
		if input.FromCart {
			productIDs := make([]uint, 0, len(merged))
			for _, item := range merged {
				productIDs = append(productIDs, item.ProductID)
			}
			if err := s.cartRepo.WithTx(tx).ClearItems(input.UserID, productIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Warnw("order_checkout_failed",
			"user_id", input.UserID,
			"from_cart", input.FromCart,
			"error", err,
		)
		return nil, err
	}
	logger.Infow("order_checkout_succeeded",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"user_id", order.UserID,
		"total_amount", order.TotalAmount.String(),
		"from_cart", input.FromCart,
	)
	s.scheduleTimeoutCancel(order)
	return order, nil
}

type orderBuildResult struct {
	Items []models.OrderItem
	Total decimal.Decimal
}

// buildOrderItems 校验商品并生成订单项快照
func (s *OrderService) buildOrderItems(tx *gorm.DB, items []CreateOrderItem, vipActive bool) (*orderBuildResult, error) {
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.WithTx(tx).ListByIDs(ids)
	if err != nil {
		return nil, err
	}
	productMap := make(map[uint]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	result := &orderBuildResult{Items: make([]models.OrderItem, 0, len(items)), Total: decimal.Zero}
	for _, item := range items {
		product, ok := productMap[item.ProductID]
		if !ok {
			return nil, ErrProductNotFound
		}
		if !product.IsOnSale() {
			return nil, ErrProductNotOnSale
		}
		unitPrice, tier := resolveUnitPrice(product, item.Quantity, vipActive)
		logger.Debugw("order_item_price_resolved",
			"product_id", product.ID,
			"quantity", item.Quantity,
			"tier", tier,
			"unit_price", unitPrice.StringFixed(2),
		)
		orderItem := models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Cover:       product.Cover,
			Price:       models.NewMoneyFromDecimal(unitPrice),
			Quantity:    item.Quantity,
		}
		result.Total = result.Total.Add(orderItem.Subtotal().Decimal)
		result.Items = append(result.Items, orderItem)
	}
	result.Total = result.Total.Round(2)
	return result, nil
}

// scheduleTimeoutCancel 提交后投递超时取消任务，投递失败只记录
func (s *OrderService) scheduleTimeoutCancel(order *models.Order) {
	delay := s.cfg.PaymentExpireDuration()
	if order == nil || delay <= 0 {
		return
	}
	err := s.queueClient.EnqueueOrderTimeoutCancel(queue.OrderTimeoutCancelPayload{OrderID: order.ID}, delay)
	if err == nil {
		return
	}
	if errors.Is(err, queue.ErrDisabled) {
		logger.Debugw("order_timeout_cancel_skipped", "order_id", order.ID, "reason", "queue_disabled")
		return
	}
	logger.Errorw("order_enqueue_timeout_cancel_failed",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"error", err,
	)
}

// mergeCreateOrderItems 按商品合并数量，并按商品 ID 排序以固定加锁顺序
func mergeCreateOrderItems(items []CreateOrderItem) ([]CreateOrderItem, error) {
	if len(items) == 0 {
		return nil, ErrInvalidOrderItem
	}
	merged := make([]CreateOrderItem, 0, len(items))
	indexMap := make(map[uint]int, len(items))
	for _, item := range items {
		if item.ProductID == 0 || item.Quantity <= 0 {
			return nil, ErrInvalidOrderItem
		}
		if idx, ok := indexMap[item.ProductID]; ok {
			merged[idx].Quantity += item.Quantity
			continue
		}
		indexMap[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ProductID < merged[j].ProductID
	})
	return merged, nil
}
