package admin

import (
	"strconv"
	"strings"

	"github.com/mall-next/internal/http/handlers/shared"
	"github.com/mall-next/internal/http/response"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/repository"

	"github.com/gin-gonic/gin"
)

type authzSetAdminRolesPayload struct {
	Roles []string `json:"roles"`
}

// ListAuthzRoles 角色列表
func (h *Handler) ListAuthzRoles(c *gin.Context) {
	roles, err := h.AuthzService.Roles()
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, roles)
}

// GetAuthzRolePolicies 角色策略
func (h *Handler) GetAuthzRolePolicies(c *gin.Context) {
	policies, err := h.AuthzService.RolePolicies(c.Param("role"))
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, policies)
}

// GetAuthzAdminRoles 查询管理员角色
func (h *Handler) GetAuthzAdminRoles(c *gin.Context) {
	adminID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	roles, err := h.AuthzService.AdminRoles(adminID)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"admin_id": adminID, "roles": roles})
}

// SetAuthzAdminRoles 覆盖设置管理员角色
func (h *Handler) SetAuthzAdminRoles(c *gin.Context) {
	operatorID, ok := getAdminID(c)
	if !ok {
		return
	}
	adminID, ok := shared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req authzSetAdminRolesPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}
	target, err := h.AdminRepo.GetByID(adminID)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	if target == nil {
		response.NotFound(c, "管理员不存在")
		return
	}
	roles, err := h.AuthzService.AssignAdminRoles(adminID, req.Roles)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	h.recordAuthzAudit(c, operatorID, target, authzActionSetAdminRoles, roles)
	response.Success(c, gin.H{"admin_id": adminID, "roles": roles})
}

const authzActionSetAdminRoles = "set_admin_roles"

// recordAuthzAudit 审计写入失败不影响已生效的权限变更
func (h *Handler) recordAuthzAudit(c *gin.Context, operatorID uint, target *models.Admin, action string, roles []string) {
	log := shared.RequestLog(c)
	entry := &models.AuthzAuditLog{
		OperatorAdminID:  operatorID,
		OperatorUsername: c.GetString(shared.ContextKeyUsername),
		TargetAdminID:    target.ID,
		TargetUsername:   target.Username,
		Action:           action,
		Roles:            strings.Join(roles, ","),
		RequestID:        c.GetString(shared.ContextKeyRequestID),
	}
	if h.AuthzAuditRepo != nil {
		if err := h.AuthzAuditRepo.Create(entry); err != nil {
			log.Errorw("authz_audit_write_failed", "action", action, "target_admin_id", target.ID, "error", err)
		}
	}
	log.Infow("authz_admin_roles_updated",
		"operator_id", operatorID,
		"admin_id", target.ID,
		"roles", roles,
	)
}

// ListAuthzAuditLogs 权限变更审计列表
func (h *Handler) ListAuthzAuditLogs(c *gin.Context) {
	page, pageSize := shared.ReadPagination(c)
	filter := repository.AuthzAuditLogListFilter{
		Page:     page,
		PageSize: pageSize,
		Action:   strings.TrimSpace(c.Query("action")),
	}
	for key, dst := range map[string]*uint{
		"operator_admin_id": &filter.OperatorAdminID,
		"target_admin_id":   &filter.TargetAdminID,
	} {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" {
			continue
		}
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "参数错误")
			return
		}
		*dst = uint(parsed)
	}
	var ok bool
	if filter.CreatedFrom, ok = parseTimeQuery(c, "created_from"); !ok {
		response.BadRequest(c, "时间格式错误")
		return
	}
	if filter.CreatedTo, ok = parseTimeQuery(c, "created_to"); !ok {
		response.BadRequest(c, "时间格式错误")
		return
	}

	logs, total, err := h.AuthzAuditRepo.List(filter)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, logs, shared.BuildPagination(page, pageSize, total))
}
