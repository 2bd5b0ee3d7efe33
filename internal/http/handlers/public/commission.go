package public

import (
	"github.com/mall-next/internal/http/handlers/shared"
	"github.com/mall-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetMyCommissions 我的佣金记录与当前余额
func (h *Handler) GetMyCommissions(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := shared.ReadPagination(c)
	records, total, balance, err := h.CommissionService.MyCommissions(uid, page, pageSize)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, gin.H{
		"balance": balance,
		"records": records,
	}, shared.BuildPagination(page, pageSize, total))
}
