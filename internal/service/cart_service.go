package service

import (
	"time"

	"github.com/mall-next/internal/constants"
	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/repository"
)

// CartItemDetail 购物车项详情（用于响应）
type CartItemDetail struct {
	ProductID uint            `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Selected  bool            `json:"selected"`
	UnitPrice models.Money    `json:"unit_price"`
	PriceTier string          `json:"price_tier"`
	Subtotal  models.Money    `json:"subtotal"`
	Available bool            `json:"available"`
	Product   *models.Product `json:"product"`
}

// UpsertCartItemInput 购物车更新输入，Selected 为空时默认勾选
type UpsertCartItemInput struct {
	UserID    uint
	ProductID uint
	Quantity  int
	Selected  *bool
}

// CartService 购物车服务
type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	userRepo    repository.UserRepository
}

// NewCartService 创建购物车服务
func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, userRepo repository.UserRepository) *CartService {
	return &CartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
	}
}

// ListByUser 获取用户购物车，按下单规则预估成交单价
func (s *CartService) ListByUser(userID uint) ([]CartItemDetail, error) {
	if userID == 0 {
		return nil, ErrUserNotFound
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	items, err := s.cartRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	vipActive := user.IsVipActive(time.Now())
	details := make([]CartItemDetail, 0, len(items))
	for _, item := range items {
		product := item.Product
		if product == nil || product.ID == 0 || product.Status == constants.ProductStatusDeleted {
			if err := s.cartRepo.DeleteByUserAndProduct(userID, item.ProductID); err != nil {
				logger.Warnw("cart_stale_item_delete_failed", "user_id", userID, "product_id", item.ProductID, "error", err)
			}
			continue
		}
		unitPrice, tier := resolveUnitPrice(product, item.Quantity, vipActive)
		price := models.NewMoneyFromDecimal(unitPrice)
		details = append(details, CartItemDetail{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Selected:  item.Selected,
			UnitPrice: price,
			PriceTier: tier,
			Subtotal:  models.NewMoneyFromDecimal(unitPrice.Mul(decimalFromInt(item.Quantity))),
			Available: product.IsOnSale() && product.Stock >= item.Quantity,
			Product:   product,
		})
	}
	return details, nil
}

// UpsertItem 添加或更新购物车项
func (s *CartService) UpsertItem(input UpsertCartItemInput) error {
	if input.UserID == 0 || input.ProductID == 0 || input.Quantity <= 0 {
		return ErrInvalidOrderItem
	}
	product, err := s.productRepo.GetByID(input.ProductID)
	if err != nil {
		return err
	}
	if product == nil {
		return ErrProductNotFound
	}
	if !product.IsOnSale() {
		return ErrProductNotOnSale
	}

	selected := true
	if input.Selected != nil {
		selected = *input.Selected
	}
	now := time.Now()
	return s.cartRepo.Upsert(&models.CartItem{
		UserID:    input.UserID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		Selected:  selected,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// RemoveItem 删除购物车项
func (s *CartService) RemoveItem(userID, productID uint) error {
	if userID == 0 || productID == 0 {
		return ErrInvalidOrderItem
	}
	return s.cartRepo.DeleteByUserAndProduct(userID, productID)
}
