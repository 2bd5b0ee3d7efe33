package admin

import (
	"strconv"
	"strings"

	"github.com/mall-next/internal/http/handlers/shared"
	"github.com/mall-next/internal/http/response"
	"github.com/mall-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// UpdateCommissionStatusRequest 佣金状态调整请求
type UpdateCommissionStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Remark string `json:"remark"`
}

// AdminListCommissions 佣金记录列表
func (h *Handler) AdminListCommissions(c *gin.Context) {
	page, pageSize := shared.ReadPagination(c)
	var userID uint
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "参数错误")
			return
		}
		userID = uint(parsed)
	}
	rows, total, err := h.CommissionService.List(repository.CommissionListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
		UserID:   userID,
		Phone:    strings.TrimSpace(c.Query("phone")),
	})
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rows, shared.BuildPagination(page, pageSize, total))
}

// AdminGetCommission 佣金记录详情
func (h *Handler) AdminGetCommission(c *gin.Context) {
	id, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	row, err := h.CommissionService.Get(id)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, row)
}

// AdminUpdateCommissionStatus 调整佣金状态，同步增减受益人余额
func (h *Handler) AdminUpdateCommissionStatus(c *gin.Context) {
	id, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdateCommissionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}
	row, err := h.CommissionService.UpdateStatus(c.Request.Context(), id, req.Status, req.Remark)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	shared.RequestLog(c).Infow("admin_commission_status_updated",
		"commission_id", id,
		"status", req.Status,
		"admin_id", c.GetUint(shared.ContextKeyAdminID),
	)
	response.Success(c, row)
}

// AdminCommissionStats 已结算佣金统计
func (h *Handler) AdminCommissionStats(c *gin.Context) {
	stats, err := h.CommissionService.Stats(c.Request.Context())
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, stats)
}
