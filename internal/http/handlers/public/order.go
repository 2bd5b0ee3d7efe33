package public

import (
	"strings"

	"github.com/mall-next/internal/http/handlers/shared"
	"github.com/mall-next/internal/http/response"
	"github.com/mall-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CheckoutRequest 购物车结算请求
type CheckoutRequest struct {
	AddressID uint   `json:"address_id" binding:"required"`
	Remark    string `json:"remark"`
}

// OrderItemRequest 订单项请求
type OrderItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// CreateOrderRequest 立即购买请求
type CreateOrderRequest struct {
	AddressID uint               `json:"address_id" binding:"required"`
	Items     []OrderItemRequest `json:"items" binding:"required"`
	Remark    string             `json:"remark"`
}

// RefundRequest 申请退款请求
type RefundRequest struct {
	Reason string `json:"reason"`
}

// Checkout 购物车已选商品下单
func (h *Handler) Checkout(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}
	order, err := h.OrderService.Checkout(c.Request.Context(), service.CheckoutInput{
		UserID:    uid,
		AddressID: req.AddressID,
		Remark:    req.Remark,
	})
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, order)
}

// CreateOrder 指定商品直接下单
func (h *Handler) CreateOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}
	items := make([]service.CreateOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.CreateOrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	order, err := h.OrderService.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		UserID:    uid,
		AddressID: req.AddressID,
		Items:     items,
		Remark:    req.Remark,
	})
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, order)
}

// ListOrders 我的订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	status := strings.TrimSpace(c.Query("status"))
	if status != "" && !service.IsValidOrderStatus(status) {
		response.BadRequest(c, "订单状态不合法")
		return
	}
	page, pageSize := shared.ReadPagination(c)
	orders, total, err := h.OrderService.ListOrdersByUser(c.Request.Context(), uid, status, page, pageSize)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, orders, shared.BuildPagination(page, pageSize, total))
}

// GetOrder 订单详情
func (h *Handler) GetOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.GetOrderByUser(c.Request.Context(), orderID, uid)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, order)
}

// GetOrderStats 各状态订单数量
func (h *Handler) GetOrderStats(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	counts, err := h.OrderService.CountOrdersByStatus(uid)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, counts)
}

// CancelOrder 取消订单
func (h *Handler) CancelOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.Cancel(c.Request.Context(), service.CancelInput{
		OrderID: orderID,
		UserID:  uid,
	})
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, order)
}

// CompleteOrder 确认收货
func (h *Handler) CompleteOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.Complete(c.Request.Context(), uid, orderID)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, order)
}

// RequestRefund 申请退款
func (h *Handler) RequestRefund(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}
	order, err := h.OrderService.RequestRefund(c.Request.Context(), uid, orderID, req.Reason)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, order)
}
