package admin

import (
	"errors"

	"github.com/mall-next/internal/http/handlers/shared"
	"github.com/mall-next/internal/http/response"
	"github.com/mall-next/internal/service"

	"github.com/gin-gonic/gin"
)

// LoginRequest 管理员登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLogin 管理员登录
func (h *Handler) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	admin, token, expiresAt, err := h.AuthService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			shared.RequestLog(c).Warnw("admin_login_failed", "username", req.Username, "client_ip", c.ClientIP())
		}
		shared.RespondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"admin":      admin,
	})
}

// GetAuthzMe 获取当前管理员权限快照
func (h *Handler) GetAuthzMe(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	roles, err := h.AuthzService.AdminRoles(adminID)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	policies, err := h.AuthzService.EffectivePolicies(adminID)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"admin_id": adminID,
		"username": c.GetString(shared.ContextKeyUsername),
		"is_super": c.GetBool(shared.ContextKeyAdminIsSuper),
		"roles":    roles,
		"policies": policies,
	})
}
