package authz

import (
	"fmt"

	"github.com/mall-next/internal/constants"
)

// 只读审计角色，其余预置角色均继承它
const roleReadonlyAuditor = "readonly_auditor"

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 系统预置角色矩阵
// 客服负责履约（发货、完成、取消、修改收货信息），财务负责退款审核与佣金调整
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: roleReadonlyAuditor,
			Policies: []Policy{
				{Object: "/admin/*", Action: "GET"},
			},
		},
		{
			Role:     constants.AdminRoleSupport,
			Inherits: []string{roleReadonlyAuditor},
			Policies: []Policy{
				{Object: "/admin/orders/:id", Action: "PATCH"},
				{Object: "/admin/orders/:id/ship", Action: "POST"},
				{Object: "/admin/orders/:id/complete", Action: "POST"},
				{Object: "/admin/orders/:id/cancel", Action: "POST"},
			},
		},
		{
			Role:     constants.AdminRoleFinance,
			Inherits: []string{roleReadonlyAuditor},
			Policies: []Policy{
				{Object: "/admin/orders/:id/refund", Action: "POST"},
				{Object: "/admin/orders/:id/cancel", Action: "POST"},
				{Object: "/admin/commissions/:id/status", Action: "PUT"},
			},
		},
	}
}

// BootstrapBuiltinRoles 写入预置角色、继承关系与策略，已存在的规则跳过
func (s *Service) BootstrapBuiltinRoles() error {
	if err := s.ready(); err != nil {
		return err
	}
	for _, seed := range BuiltinRoleSeeds() {
		role, err := NormalizeRole(seed.Role)
		if err != nil {
			return err
		}
		for _, parent := range seed.Inherits {
			parentRole, err := NormalizeRole(parent)
			if err != nil {
				return err
			}
			if _, err := s.enforcer.AddRoleForUser(role, parentRole); err != nil {
				return fmt.Errorf("authz seed %s inherits %s: %w", role, parentRole, err)
			}
		}
		for _, policy := range seed.Policies {
			action := normalizeAction(policy.Action)
			if action == "" {
				return fmt.Errorf("authz seed %s: empty action for %s", role, policy.Object)
			}
			if _, err := s.enforcer.AddPolicy(role, NormalizeObject(policy.Object), action); err != nil {
				return fmt.Errorf("authz seed %s policy %s %s: %w", role, action, policy.Object, err)
			}
		}
	}
	return nil
}
