package admin

import (
	"strconv"
	"strings"

	"github.com/mall-next/internal/http/handlers/shared"
	"github.com/mall-next/internal/http/response"
	"github.com/mall-next/internal/repository"
	"github.com/mall-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ShipOrderRequest 发货请求
type ShipOrderRequest struct {
	TrackingNo      string `json:"tracking_no"`
	TrackingCompany string `json:"tracking_company"`
}

// CancelOrderRequest 管理员取消请求
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// ResolveRefundRequest 退款审核请求
type ResolveRefundRequest struct {
	Approved *bool  `json:"approved" binding:"required"`
	Remark   string `json:"remark"`
}

// AdminListOrders 订单列表
func (h *Handler) AdminListOrders(c *gin.Context) {
	page, pageSize := shared.ReadPagination(c)
	status := strings.TrimSpace(c.Query("status"))
	if status != "" && !service.IsValidOrderStatus(status) {
		response.BadRequest(c, "订单状态不合法")
		return
	}
	createdFrom, ok := parseTimeQuery(c, "created_from")
	if !ok {
		response.BadRequest(c, "时间格式错误")
		return
	}
	createdTo, ok := parseTimeQuery(c, "created_to")
	if !ok {
		response.BadRequest(c, "时间格式错误")
		return
	}
	var userID uint
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "参数错误")
			return
		}
		userID = uint(parsed)
	}

	orders, total, err := h.OrderService.ListOrdersForAdmin(repository.OrderListFilter{
		Page:        page,
		PageSize:    pageSize,
		UserID:      userID,
		Status:      status,
		OrderNo:     strings.TrimSpace(c.Query("order_no")),
		Keyword:     strings.TrimSpace(c.Query("keyword")),
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	})
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, orders, shared.BuildPagination(page, pageSize, total))
}

// AdminGetOrder 订单详情
func (h *Handler) AdminGetOrder(c *gin.Context) {
	orderID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.GetOrderForAdmin(orderID)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, order)
}

// AdminPatchOrder 修改备注与收货信息
func (h *Handler) AdminPatchOrder(c *gin.Context) {
	orderID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var patch service.OrderPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}
	order, err := h.OrderService.PatchOrder(c.Request.Context(), orderID, patch)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, order)
}

// AdminShipOrder 发货
func (h *Handler) AdminShipOrder(c *gin.Context) {
	orderID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req ShipOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "参数错误")
			return
		}
	}
	order, err := h.OrderService.Ship(c.Request.Context(), orderID, service.ShipInput{
		TrackingNo:      req.TrackingNo,
		TrackingCompany: req.TrackingCompany,
	})
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	h.logOrderAction(c, "ship", orderID)
	response.Success(c, order)
}

// AdminCompleteOrder 代用户确认收货
func (h *Handler) AdminCompleteOrder(c *gin.Context) {
	orderID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.CompleteByAdmin(c.Request.Context(), orderID)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	h.logOrderAction(c, "complete", orderID)
	response.Success(c, order)
}

// AdminCancelOrder 取消订单，已支付订单同时退款
func (h *Handler) AdminCancelOrder(c *gin.Context) {
	orderID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "参数错误")
			return
		}
	}
	order, err := h.OrderService.Cancel(c.Request.Context(), service.CancelInput{
		OrderID: orderID,
		Reason:  req.Reason,
	})
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	h.logOrderAction(c, "cancel", orderID)
	response.Success(c, order)
}

// AdminResolveRefund 审核退款申请
func (h *Handler) AdminResolveRefund(c *gin.Context) {
	orderID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req ResolveRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}
	order, err := h.OrderService.ResolveRefund(c.Request.Context(), orderID, service.ResolveRefundInput{
		Approved: *req.Approved,
		Remark:   req.Remark,
	})
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	action := "refund_reject"
	if *req.Approved {
		action = "refund_approve"
	}
	h.logOrderAction(c, action, orderID)
	response.Success(c, order)
}

func (h *Handler) logOrderAction(c *gin.Context, action string, orderID uint) {
	shared.RequestLog(c).Infow("admin_order_action",
		"action", action,
		"order_id", orderID,
		"admin_id", c.GetUint(shared.ContextKeyAdminID),
	)
}
