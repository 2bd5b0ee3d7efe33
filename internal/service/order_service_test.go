package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mall-next/internal/config"
	"github.com/mall-next/internal/constants"
	"github.com/mall-next/internal/metrics"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/payment"
	"github.com/mall-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeRefundCall struct {
	TransactionRef string
	RefundOrderRef string
	RefundFen      int64
	TotalFen       int64
}

type fakeGateway struct {
	mu         sync.Mutex
	paymentFen []int64
	payers     []string
	refunds    []fakeRefundCall
	paymentErr error
	refundErr  error
}

func (g *fakeGateway) InitiatePayment(_ context.Context, orderNo string, amountFen int64, payerRef string) (*payment.Params, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paymentErr != nil {
		return nil, g.paymentErr
	}
	g.paymentFen = append(g.paymentFen, amountFen)
	g.payers = append(g.payers, payerRef)
	return &payment.Params{AppID: "wx-test", Package: "prepay_id=" + orderNo, SignType: "RSA"}, nil
}

func (g *fakeGateway) InitiateRefund(_ context.Context, transactionRef, refundOrderRef string, refundFen, totalFen int64) (*payment.RefundHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, fakeRefundCall{
		TransactionRef: transactionRef,
		RefundOrderRef: refundOrderRef,
		RefundFen:      refundFen,
		TotalFen:       totalFen,
	})
	return &payment.RefundHandle{RefundID: "gw_" + refundOrderRef, Status: "PROCESSING"}, nil
}

type orderTestEnv struct {
	db            *gorm.DB
	orderSvc      *OrderService
	commissionSvc *CommissionService
	cartSvc       *CartService
	paymentSvc    *PaymentService
	gateway       *fakeGateway
	metrics       *metrics.OrderMetrics
}

func setupOrderServiceTest(t *testing.T) *orderTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:order_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	userRepo := repository.NewUserRepository(db)
	cartRepo := repository.NewCartRepository(db)
	addressRepo := repository.NewAddressRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)

	orderMetrics := metrics.NewOrderMetrics(prometheus.NewRegistry())
	commissionSvc := NewCommissionService(commissionRepo, userRepo, decimal.RequireFromString("0.05"), time.Minute, orderMetrics)
	gateway := &fakeGateway{}
	orderSvc := NewOrderService(orderRepo, productRepo, userRepo, cartRepo, addressRepo, commissionSvc, gateway, nil, orderMetrics, config.OrderConfig{
		NoPrefix:        "MN",
		RefundRefPrefix: "RF",
	})
	return &orderTestEnv{
		db:            db,
		orderSvc:      orderSvc,
		commissionSvc: commissionSvc,
		cartSvc:       NewCartService(cartRepo, productRepo, userRepo),
		paymentSvc:    NewPaymentService(orderRepo, userRepo, gateway, nil, orderSvc),
		gateway:       gateway,
		metrics:       orderMetrics,
	}
}

func createTestUser(t *testing.T, db *gorm.DB, inviterID *uint, vip bool) *models.User {
	t.Helper()
	user := &models.User{
		Nickname:  "tester",
		Phone:     fmt.Sprintf("138%08d", time.Now().UnixNano()%100000000),
		OpenID:    fmt.Sprintf("openid_%d", time.Now().UnixNano()),
		InviterID: inviterID,
		IsVip:     vip,
	}
	if vip {
		expire := time.Now().Add(24 * time.Hour)
		user.VipExpireAt = &expire
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

func createTestAddress(t *testing.T, db *gorm.DB, userID uint) *models.Address {
	t.Helper()
	address := &models.Address{
		UserID:    userID,
		Consignee: "张三",
		Phone:     "13800000000",
		Province:  "浙江省",
		City:      "杭州市",
		District:  "西湖区",
		Detail:    "文三路 1 号",
	}
	if err := db.Create(address).Error; err != nil {
		t.Fatalf("create address failed: %v", err)
	}
	return address
}

type testProductOption func(*models.Product)

func withVipPrice(raw string) testProductOption {
	return func(p *models.Product) { p.VipPrice = models.MustMoney(raw) }
}

func withWholesale(raw string, threshold int) testProductOption {
	return func(p *models.Product) {
		p.WholesalePrice = models.MustMoney(raw)
		p.WholesaleThreshold = threshold
	}
}

func withStatus(status string) testProductOption {
	return func(p *models.Product) { p.Status = status }
}

func createTestProduct(t *testing.T, db *gorm.DB, price string, stock int, opts ...testProductOption) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:   "商品 " + price,
		Cover:  "https://img.example.com/p.png",
		Price:  models.MustMoney(price),
		Stock:  stock,
		Status: constants.ProductStatusOnSale,
	}
	for _, opt := range opts {
		opt(product)
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func reloadProduct(t *testing.T, db *gorm.DB, id uint) models.Product {
	t.Helper()
	var product models.Product
	if err := db.First(&product, id).Error; err != nil {
		t.Fatalf("reload product failed: %v", err)
	}
	return product
}

func reloadOrder(t *testing.T, db *gorm.DB, id uint) models.Order {
	t.Helper()
	var order models.Order
	if err := db.Preload("Items").First(&order, id).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	return order
}

func reloadUser(t *testing.T, db *gorm.DB, id uint) models.User {
	t.Helper()
	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		t.Fatalf("reload user failed: %v", err)
	}
	return user
}

// placePaidOrder 创建并支付一个单商品订单
func placePaidOrder(t *testing.T, env *orderTestEnv, user *models.User, product *models.Product, quantity int) *models.Order {
	t.Helper()
	address := createTestAddress(t, env.db, user.ID)
	order, err := env.orderSvc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:    user.ID,
		AddressID: address.ID,
		Items:     []CreateOrderItem{{ProductID: product.ID, Quantity: quantity}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	paid, err := env.orderSvc.MarkPaid(context.Background(), MarkPaidInput{
		OrderNo:       order.OrderNo,
		TransactionID: "tx_" + order.OrderNo,
	})
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	return paid
}

func TestCheckoutAppliesPriceTiersAndDebitsStock(t *testing.T) {
	env := setupOrderServiceTest(t)
	user := createTestUser(t, env.db, nil, true)
	address := createTestAddress(t, env.db, user.ID)
	vipProduct := createTestProduct(t, env.db, "10.00", 10, withVipPrice("8.00"))
	bulkProduct := createTestProduct(t, env.db, "5.00", 10, withWholesale("4.00", 3))
	skipped := createTestProduct(t, env.db, "99.00", 10)

	unselected := false
	for _, input := range []UpsertCartItemInput{
		{UserID: user.ID, ProductID: vipProduct.ID, Quantity: 2},
		{UserID: user.ID, ProductID: bulkProduct.ID, Quantity: 3},
		{UserID: user.ID, ProductID: skipped.ID, Quantity: 1, Selected: &unselected},
	} {
		if err := env.cartSvc.UpsertItem(input); err != nil {
			t.Fatalf("upsert cart failed: %v", err)
		}
	}

	order, err := env.orderSvc.Checkout(context.Background(), CheckoutInput{
		UserID:    user.ID,
		AddressID: address.ID,
		Remark:    " 尽快发货 ",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if order.TotalAmount.String() != "28.00" {
		t.Fatalf("total want 28.00 (2x8 vip + 3x4 wholesale) got %s", order.TotalAmount.String())
	}
	if order.Status != constants.OrderStatusPendingPayment || order.PaymentStatus != constants.PaymentStatusUnpaid {
		t.Fatalf("unexpected initial state: %s/%s", order.Status, order.PaymentStatus)
	}
	if !strings.HasPrefix(order.OrderNo, "MN") || len(order.OrderNo) != 22 {
		t.Fatalf("unexpected order no: %s", order.OrderNo)
	}
	if order.Address != "浙江省杭州市西湖区文三路 1 号" || order.Consignee != "张三" || order.Remark != "尽快发货" {
		t.Fatalf("unexpected shipping snapshot: %+v", order)
	}
	if len(order.Items) != 2 {
		t.Fatalf("order items want 2 got %d", len(order.Items))
	}

	if p := reloadProduct(t, env.db, vipProduct.ID); p.Stock != 8 || p.Sales != 2 {
		t.Fatalf("vip product stock/sales want 8/2 got %d/%d", p.Stock, p.Sales)
	}
	if p := reloadProduct(t, env.db, bulkProduct.ID); p.Stock != 7 || p.Sales != 3 {
		t.Fatalf("bulk product stock/sales want 7/3 got %d/%d", p.Stock, p.Sales)
	}

	var remaining []models.CartItem
	if err := env.db.Where("user_id = ?", user.ID).Find(&remaining).Error; err != nil {
		t.Fatalf("load cart failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ProductID != skipped.ID {
		t.Fatalf("only the unselected item should remain in cart: %+v", remaining)
	}

	if _, err := env.orderSvc.Checkout(context.Background(), CheckoutInput{UserID: user.ID, AddressID: address.ID}); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("second checkout should report empty cart, got %v", err)
	}
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	env := setupOrderServiceTest(t)
	user := createTestUser(t, env.db, nil, false)
	address := createTestAddress(t, env.db, user.ID)
	plenty := createTestProduct(t, env.db, "3.00", 5)
	scarce := createTestProduct(t, env.db, "4.00", 1)

	_, err := env.orderSvc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:    user.ID,
		AddressID: address.ID,
		Items: []CreateOrderItem{
			{ProductID: plenty.ID, Quantity: 2},
			{ProductID: scarce.ID, Quantity: 1},
			{ProductID: scarce.ID, Quantity: 1},
		},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.ProductID != scarce.ID || stockErr.Available != 1 || stockErr.Requested != 2 {
		t.Fatalf("unexpected stock error detail: %+v", stockErr)
	}
	if p := reloadProduct(t, env.db, plenty.ID); p.Stock != 5 || p.Sales != 0 {
		t.Fatalf("debit of first item must roll back, got stock %d sales %d", p.Stock, p.Sales)
	}
	var count int64
	env.db.Model(&models.Order{}).Count(&count)
	if count != 0 {
		t.Fatalf("no order should be persisted, got %d", count)
	}
}

func TestCreateOrderValidatesProductsAndAddress(t *testing.T) {
	env := setupOrderServiceTest(t)
	user := createTestUser(t, env.db, nil, false)
	other := createTestUser(t, env.db, nil, false)
	address := createTestAddress(t, env.db, user.ID)
	foreignAddress := createTestAddress(t, env.db, other.ID)
	offSale := createTestProduct(t, env.db, "3.00", 5, withStatus(constants.ProductStatusOffSale))
	onSale := createTestProduct(t, env.db, "3.00", 5)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateOrderInput
		want  error
	}{
		{"off sale", CreateOrderInput{UserID: user.ID, AddressID: address.ID, Items: []CreateOrderItem{{ProductID: offSale.ID, Quantity: 1}}}, ErrProductNotOnSale},
		{"missing product", CreateOrderInput{UserID: user.ID, AddressID: address.ID, Items: []CreateOrderItem{{ProductID: 9999, Quantity: 1}}}, ErrProductNotFound},
		{"foreign address", CreateOrderInput{UserID: user.ID, AddressID: foreignAddress.ID, Items: []CreateOrderItem{{ProductID: onSale.ID, Quantity: 1}}}, ErrAddressNotFound},
		{"zero quantity", CreateOrderInput{UserID: user.ID, AddressID: address.ID, Items: []CreateOrderItem{{ProductID: onSale.ID, Quantity: 0}}}, ErrInvalidOrderItem},
		{"no items", CreateOrderInput{UserID: user.ID, AddressID: address.ID}, ErrInvalidOrderItem},
	}
	for _, tc := range cases {
		if _, err := env.orderSvc.CreateOrder(ctx, tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("%s: want %v got %v", tc.name, tc.want, err)
		}
	}
	if p := reloadProduct(t, env.db, onSale.ID); p.Stock != 5 {
		t.Fatalf("failed creates must not debit stock, got %d", p.Stock)
	}
}

func TestOrderLifecycleAccruesCommissionOnce(t *testing.T) {
	env := setupOrderServiceTest(t)
	inviter := createTestUser(t, env.db, nil, false)
	buyer := createTestUser(t, env.db, &inviter.ID, false)
	product := createTestProduct(t, env.db, "33.33", 10)
	ctx := context.Background()

	order := placePaidOrder(t, env, buyer, product, 3)
	if order.Status != constants.OrderStatusPendingDelivery || order.PaymentStatus != constants.PaymentStatusPaid || order.PaymentTime == nil {
		t.Fatalf("unexpected paid state: %+v", order)
	}
	if _, err := env.orderSvc.Complete(ctx, buyer.ID, order.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete before ship should be rejected, got %v", err)
	}

	shipped, err := env.orderSvc.Ship(ctx, order.ID, ShipInput{TrackingNo: "SF123", TrackingCompany: "顺丰"})
	if err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	if shipped.Status != constants.OrderStatusDelivered || shipped.TrackingNo != "SF123" || shipped.DeliveryTime == nil {
		t.Fatalf("unexpected shipped order: %+v", shipped)
	}

	if _, err := env.orderSvc.Complete(ctx, inviter.ID, order.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("non-owner complete should look like not found, got %v", err)
	}
	completed, err := env.orderSvc.Complete(ctx, buyer.ID, order.ID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.Status != constants.OrderStatusCompleted || completed.CompletionTime == nil {
		t.Fatalf("unexpected completed order: %+v", completed)
	}

	// 99.99 * 0.05 = 4.9995 -> 5.00
	if balance := reloadUser(t, env.db, inviter.ID).Commission.String(); balance != "5.00" {
		t.Fatalf("inviter balance want 5.00 got %s", balance)
	}
	var records []models.Commission
	env.db.Where("order_id = ?", order.ID).Find(&records)
	if len(records) != 1 || records[0].Status != constants.CommissionStatusSettled || records[0].InviteeID != buyer.ID {
		t.Fatalf("unexpected commission records: %+v", records)
	}

	if _, err := env.orderSvc.CompleteByAdmin(ctx, order.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second complete should be rejected, got %v", err)
	}
	if balance := reloadUser(t, env.db, inviter.ID).Commission.String(); balance != "5.00" {
		t.Fatalf("balance must not change on rejected complete, got %s", balance)
	}
}

func TestCompleteWithoutInviterSkipsCommission(t *testing.T) {
	env := setupOrderServiceTest(t)
	buyer := createTestUser(t, env.db, nil, false)
	product := createTestProduct(t, env.db, "10.00", 10)
	ctx := context.Background()

	order := placePaidOrder(t, env, buyer, product, 1)
	if _, err := env.orderSvc.Ship(ctx, order.ID, ShipInput{}); err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	if _, err := env.orderSvc.CompleteByAdmin(ctx, order.ID); err != nil {
		t.Fatalf("admin complete failed: %v", err)
	}
	var count int64
	env.db.Model(&models.Commission{}).Count(&count)
	if count != 0 {
		t.Fatalf("no commission expected without inviter, got %d", count)
	}
}

func TestCancelUnpaidOrderRestoresStock(t *testing.T) {
	env := setupOrderServiceTest(t)
	user := createTestUser(t, env.db, nil, false)
	address := createTestAddress(t, env.db, user.ID)
	product := createTestProduct(t, env.db, "2.50", 10)
	ctx := context.Background()

	order, err := env.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:    user.ID,
		AddressID: address.ID,
		Items:     []CreateOrderItem{{ProductID: product.ID, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	cancelled, err := env.orderSvc.Cancel(ctx, CancelInput{OrderID: order.ID, UserID: user.ID})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != constants.OrderStatusCancelled || cancelled.CancelReason != constants.CancelReasonUser || cancelled.CancelTime == nil {
		t.Fatalf("unexpected cancelled order: %+v", cancelled)
	}
	if cancelled.PaymentStatus != constants.PaymentStatusUnpaid || cancelled.RefundNo != "" {
		t.Fatalf("unpaid cancel must not touch payment: %+v", cancelled)
	}
	if p := reloadProduct(t, env.db, product.ID); p.Stock != 10 || p.Sales != 0 {
		t.Fatalf("stock/sales want 10/0 got %d/%d", p.Stock, p.Sales)
	}
	if len(env.gateway.refunds) != 0 {
		t.Fatalf("unpaid cancel must not refund")
	}
	if _, err := env.orderSvc.Cancel(ctx, CancelInput{OrderID: order.ID}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel of cancelled order should be rejected, got %v", err)
	}
	if p := reloadProduct(t, env.db, product.ID); p.Stock != 10 {
		t.Fatalf("rejected cancel must not credit stock again, got %d", p.Stock)
	}
}

func TestCancelPaidOrderMarksRefundedAndInitiatesRefund(t *testing.T) {
	env := setupOrderServiceTest(t)
	user := createTestUser(t, env.db, nil, false)
	product := createTestProduct(t, env.db, "12.34", 10)
	ctx := context.Background()

	order := placePaidOrder(t, env, user, product, 2)
	cancelled, err := env.orderSvc.Cancel(ctx, CancelInput{OrderID: order.ID, Reason: "缺货"})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.PaymentStatus != constants.PaymentStatusRefunded || cancelled.RefundNo != "RF_"+order.OrderNo {
		t.Fatalf("paid cancel should mark refunded: %+v", cancelled)
	}
	if len(env.gateway.refunds) != 1 {
		t.Fatalf("refund should be initiated synchronously when queue disabled, got %d calls", len(env.gateway.refunds))
	}
	call := env.gateway.refunds[0]
	if call.TransactionRef != "tx_"+order.OrderNo || call.RefundOrderRef != "RF_"+order.OrderNo || call.RefundFen != 2468 || call.TotalFen != 2468 {
		t.Fatalf("unexpected refund call: %+v", call)
	}
	if stored := reloadOrder(t, env.db, order.ID); stored.RefundTransactionID != "gw_RF_"+order.OrderNo {
		t.Fatalf("gateway refund id should be recorded, got %q", stored.RefundTransactionID)
	}
	if p := reloadProduct(t, env.db, product.ID); p.Stock != 10 || p.Sales != 0 {
		t.Fatalf("stock/sales want 10/0 got %d/%d", p.Stock, p.Sales)
	}

	// 已受理的退款不会重复发起
	if err := env.orderSvc.InitiateRefund(ctx, order.ID); err != nil {
		t.Fatalf("repeat initiate failed: %v", err)
	}
	if len(env.gateway.refunds) != 1 {
		t.Fatalf("refund must not be initiated twice")
	}
}

func TestRefundRequestAndResolve(t *testing.T) {
	env := setupOrderServiceTest(t)
	user := createTestUser(t, env.db, nil, false)
	product := createTestProduct(t, env.db, "20.00", 10)
	ctx := context.Background()

	approvedOrder := placePaidOrder(t, env, user, product, 1)
	rejectedOrder := placePaidOrder(t, env, user, product, 2)

	if _, err := env.orderSvc.RequestRefund(ctx, user.ID, approvedOrder.ID, "  "); !errors.Is(err, ErrRefundReasonRequired) {
		t.Fatalf("empty reason should be rejected, got %v", err)
	}
	requested, err := env.orderSvc.RequestRefund(ctx, user.ID, approvedOrder.ID, "不想要了")
	if err != nil {
		t.Fatalf("request refund failed: %v", err)
	}
	if requested.Status != constants.OrderStatusRefundPending || requested.RefundReason != "不想要了" || requested.RefundRequestTime == nil {
		t.Fatalf("unexpected refund request state: %+v", requested)
	}
	if _, err := env.orderSvc.Ship(ctx, approvedOrder.ID, ShipInput{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ship during refund should be rejected, got %v", err)
	}

	approved, err := env.orderSvc.ResolveRefund(ctx, approvedOrder.ID, ResolveRefundInput{Approved: true})
	if err != nil {
		t.Fatalf("approve refund failed: %v", err)
	}
	if approved.Status != constants.OrderStatusRefundApproved ||
		approved.PaymentStatus != constants.PaymentStatusRefunded ||
		approved.RefundRemark != constants.RefundApprovedDefaultRemark ||
		approved.RefundApprovalTime == nil {
		t.Fatalf("unexpected approved order: %+v", approved)
	}
	if len(env.gateway.refunds) != 1 || env.gateway.refunds[0].RefundFen != 2000 {
		t.Fatalf("approved refund should call gateway once: %+v", env.gateway.refunds)
	}

	if _, err := env.orderSvc.Ship(ctx, rejectedOrder.ID, ShipInput{}); err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	if _, err := env.orderSvc.RequestRefund(ctx, user.ID, rejectedOrder.ID, "坏了"); err != nil {
		t.Fatalf("request refund after delivery failed: %v", err)
	}
	rejected, err := env.orderSvc.ResolveRefund(ctx, rejectedOrder.ID, ResolveRefundInput{Approved: false})
	if err != nil {
		t.Fatalf("reject refund failed: %v", err)
	}
	if rejected.Status != constants.OrderStatusRefundRejected ||
		rejected.PaymentStatus != constants.PaymentStatusPaid ||
		rejected.RefundRemark != constants.RefundRejectedDefaultRemark {
		t.Fatalf("unexpected rejected order: %+v", rejected)
	}
	// 通过的退款回补 1 件，拒绝的不回补
	if p := reloadProduct(t, env.db, product.ID); p.Stock != 8 || p.Sales != 2 {
		t.Fatalf("stock/sales want 8/2 got %d/%d", p.Stock, p.Sales)
	}
	if _, err := env.orderSvc.ResolveRefund(ctx, rejectedOrder.ID, ResolveRefundInput{Approved: true}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("rejected refund is terminal, got %v", err)
	}
}

func TestRequestRefundRequiresPayment(t *testing.T) {
	env := setupOrderServiceTest(t)
	user := createTestUser(t, env.db, nil, false)
	address := createTestAddress(t, env.db, user.ID)
	product := createTestProduct(t, env.db, "1.00", 3)
	order, err := env.orderSvc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:    user.ID,
		AddressID: address.ID,
		Items:     []CreateOrderItem{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if _, err := env.orderSvc.RequestRefund(context.Background(), user.ID, order.ID, "reason"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("unpaid refund request should be rejected, got %v", err)
	}
	if stored := reloadOrder(t, env.db, order.ID); stored.Status != constants.OrderStatusPendingPayment {
		t.Fatalf("rejected request must not mutate order, got %s", stored.Status)
	}
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	env := setupOrderServiceTest(t)
	user := createTestUser(t, env.db, nil, false)
	product := createTestProduct(t, env.db, "1.00", 3)
	order := placePaidOrder(t, env, user, product, 1)
	firstPaidAt := *order.PaymentTime

	later := firstPaidAt.Add(time.Hour)
	again, err := env.orderSvc.MarkPaid(context.Background(), MarkPaidInput{
		OrderNo:       order.OrderNo,
		TransactionID: "other",
		PaidAt:        &later,
	})
	if err != nil {
		t.Fatalf("repeat mark paid failed: %v", err)
	}
	if !again.PaymentTime.Equal(firstPaidAt) || again.TransactionID != "tx_"+order.OrderNo {
		t.Fatalf("repeat mark paid must not overwrite payment fields: %+v", again)
	}
	if _, err := env.orderSvc.MarkPaid(context.Background(), MarkPaidInput{OrderNo: "missing"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("unknown order should be not found, got %v", err)
	}
}

func TestCancelExpiredOrder(t *testing.T) {
	env := setupOrderServiceTest(t)
	user := createTestUser(t, env.db, nil, false)
	address := createTestAddress(t, env.db, user.ID)
	product := createTestProduct(t, env.db, "1.00", 3)
	ctx := context.Background()

	order, err := env.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:    user.ID,
		AddressID: address.ID,
		Items:     []CreateOrderItem{{ProductID: product.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	env.orderSvc.cfg.PaymentExpireMinutes = 30
	if _, err := env.orderSvc.CancelExpiredOrder(ctx, order.ID); !errors.Is(err, ErrOrderNotExpired) {
		t.Fatalf("early timeout cancel should ask for retry, got %v", err)
	}
	if stored := reloadOrder(t, env.db, order.ID); stored.Status != constants.OrderStatusPendingPayment {
		t.Fatalf("order within payment window must stay pending, got %s", stored.Status)
	}

	env.orderSvc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	expired, err := env.orderSvc.CancelExpiredOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("cancel expired failed: %v", err)
	}
	if expired.Status != constants.OrderStatusCancelled || expired.CancelReason != constants.CancelReasonTimeout || expired.CancelTime == nil {
		t.Fatalf("unexpected expired order: %+v", expired)
	}
	if p := reloadProduct(t, env.db, product.ID); p.Stock != 3 {
		t.Fatalf("expired order stock should be restored, got %d", p.Stock)
	}
	if _, err := env.orderSvc.CancelExpiredOrder(ctx, order.ID); err != nil {
		t.Fatalf("repeat timeout cancel should be a no-op, got %v", err)
	}
	if p := reloadProduct(t, env.db, product.ID); p.Stock != 3 {
		t.Fatalf("repeat timeout cancel must not credit again, got %d", p.Stock)
	}
}

func TestExpiredOrdersCancelWithoutQueue(t *testing.T) {
	env := setupOrderServiceTest(t)
	env.orderSvc.cfg.PaymentExpireMinutes = 30
	user := createTestUser(t, env.db, nil, false)
	address := createTestAddress(t, env.db, user.ID)
	product := createTestProduct(t, env.db, "2.50", 6)
	ctx := context.Background()

	place := func() *models.Order {
		order, err := env.orderSvc.CreateOrder(ctx, CreateOrderInput{
			UserID:    user.ID,
			AddressID: address.ID,
			Items:     []CreateOrderItem{{ProductID: product.ID, Quantity: 2}},
		})
		if err != nil {
			t.Fatalf("create order failed: %v", err)
		}
		return order
	}
	viewed := place()
	paying := place()
	notified := place()
	if p := reloadProduct(t, env.db, product.ID); p.Stock != 0 {
		t.Fatalf("stock should be fully reserved, got %d", p.Stock)
	}

	env.orderSvc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	detail, err := env.orderSvc.GetOrderByUser(ctx, viewed.ID, user.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if detail.Status != constants.OrderStatusCancelled || detail.CancelReason != constants.CancelReasonTimeout {
		t.Fatalf("expired order should be cancelled on read: %+v", detail)
	}

	if _, err := env.paymentSvc.CreatePayment(ctx, user.ID, paying.ID, "openid"); !errors.Is(err, ErrOrderExpired) {
		t.Fatalf("expired order must not be payable, got %v", err)
	}
	if stored := reloadOrder(t, env.db, paying.ID); stored.Status != constants.OrderStatusCancelled {
		t.Fatalf("refused payment should cancel the order, got %s", stored.Status)
	}
	if len(env.gateway.paymentFen) != 0 {
		t.Fatalf("gateway must not be called for expired order: %v", env.gateway.paymentFen)
	}

	result, err := env.orderSvc.HandlePaymentNotify(ctx, PaymentNotify{
		OrderNo:       notified.OrderNo,
		Outcome:       constants.NotifyOutcomeSuccess,
		TransactionID: "4200000077",
		AmountFen:     500,
	})
	if err != nil || result != NotifyResultIgnored {
		t.Fatalf("late notify must not be applied: %s %v", result, err)
	}
	late := reloadOrder(t, env.db, notified.ID)
	if late.Status != constants.OrderStatusCancelled || late.IsPaid() || late.CancelReason != constants.CancelReasonTimeout {
		t.Fatalf("late notify should leave a cancelled unpaid order: %+v", late)
	}
	if len(env.gateway.refunds) != 1 || env.gateway.refunds[0].TransactionRef != "4200000077" || env.gateway.refunds[0].RefundFen != 500 {
		t.Fatalf("captured payment should be refunded in full: %+v", env.gateway.refunds)
	}

	if p := reloadProduct(t, env.db, product.ID); p.Stock != 6 {
		t.Fatalf("every expired order should restore stock, got %d", p.Stock)
	}
	orders, total, err := env.orderSvc.ListOrdersByUser(ctx, user.ID, "", 1, 10)
	if err != nil || total != 3 {
		t.Fatalf("list orders failed: total=%d err=%v", total, err)
	}
	for _, order := range orders {
		if order.Status != constants.OrderStatusCancelled {
			t.Fatalf("order %d should be cancelled, got %s", order.ID, order.Status)
		}
	}
}

func TestListOrdersCancelsExpiredOnRead(t *testing.T) {
	env := setupOrderServiceTest(t)
	env.orderSvc.cfg.PaymentExpireMinutes = 30
	user := createTestUser(t, env.db, nil, false)
	address := createTestAddress(t, env.db, user.ID)
	product := createTestProduct(t, env.db, "1.00", 2)
	ctx := context.Background()

	order, err := env.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:    user.ID,
		AddressID: address.ID,
		Items:     []CreateOrderItem{{ProductID: product.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	fresh, _, err := env.orderSvc.ListOrdersByUser(ctx, user.ID, "", 1, 10)
	if err != nil || len(fresh) != 1 || fresh[0].Status != constants.OrderStatusPendingPayment {
		t.Fatalf("order inside payment window should stay pending: %+v %v", fresh, err)
	}

	env.orderSvc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	listed, _, err := env.orderSvc.ListOrdersByUser(ctx, user.ID, "", 1, 10)
	if err != nil || len(listed) != 1 {
		t.Fatalf("list orders failed: %+v %v", listed, err)
	}
	if listed[0].ID != order.ID || listed[0].Status != constants.OrderStatusCancelled {
		t.Fatalf("expired order should be cancelled on list: %+v", listed[0])
	}
	if p := reloadProduct(t, env.db, product.ID); p.Stock != 2 {
		t.Fatalf("stock should be restored, got %d", p.Stock)
	}
}

func TestLockOrderWrapsStorageErrors(t *testing.T) {
	env := setupOrderServiceTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.orderSvc.lockOrder(env.db.WithContext(ctx), 1, 0)
	if !errors.Is(err, ErrOrderFetchFailed) {
		t.Fatalf("storage error should surface as ErrOrderFetchFailed, got %v", err)
	}
	if _, err := env.orderSvc.lockOrder(env.db, 99, 0); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("missing order should be not found, got %v", err)
	}
}

func TestOrderQueries(t *testing.T) {
	env := setupOrderServiceTest(t)
	user := createTestUser(t, env.db, nil, false)
	other := createTestUser(t, env.db, nil, false)
	product := createTestProduct(t, env.db, "1.00", 10)
	paid := placePaidOrder(t, env, user, product, 1)
	placePaidOrder(t, env, user, product, 1)
	placePaidOrder(t, env, other, product, 1)
	if _, err := env.orderSvc.Ship(context.Background(), paid.ID, ShipInput{}); err != nil {
		t.Fatalf("ship failed: %v", err)
	}

	counts, err := env.orderSvc.CountOrdersByStatus(user.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if counts[constants.OrderStatusDelivered] != 1 || counts[constants.OrderStatusPendingDelivery] != 1 || counts[constants.OrderStatusCompleted] != 0 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if len(counts) != 8 {
		t.Fatalf("every status should be present, got %d", len(counts))
	}

	orders, total, err := env.orderSvc.ListOrdersByUser(context.Background(), user.ID, constants.OrderStatusDelivered, 1, 10)
	if err != nil || total != 1 || len(orders) != 1 || orders[0].ID != paid.ID {
		t.Fatalf("unexpected filtered list: total=%d len=%d err=%v", total, len(orders), err)
	}
	if _, err := env.orderSvc.GetOrderByUser(context.Background(), paid.ID, other.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("foreign order should be hidden, got %v", err)
	}
	all, total, err := env.orderSvc.ListOrdersForAdmin(repository.OrderListFilter{Page: 1, PageSize: 2})
	if err != nil || total != 3 || len(all) != 2 {
		t.Fatalf("unexpected admin list: total=%d len=%d err=%v", total, len(all), err)
	}
	detail, err := env.orderSvc.GetOrderForAdmin(paid.ID)
	if err != nil || len(detail.Items) != 1 {
		t.Fatalf("unexpected admin detail: %+v %v", detail, err)
	}
}
