package authz

import (
	"fmt"
	"sort"
)

// Roles 已登记的角色，即拥有策略或被继承的 role:xxx 主体
func (s *Service) Roles() ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	subjects, err := s.enforcer.GetAllSubjects()
	if err != nil {
		return nil, fmt.Errorf("authz subjects: %w", err)
	}
	inherited, err := s.enforcer.GetAllRoles()
	if err != nil {
		return nil, fmt.Errorf("authz roles: %w", err)
	}
	return sortedRoleNames(append(subjects, inherited...)), nil
}

// RolePolicies 角色自身的策略，不含继承
func (s *Service) RolePolicies(role string) ([]Policy, error) {
	name, err := NormalizeRole(role)
	if err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	rules, err := s.enforcer.GetFilteredPolicy(0, name)
	if err != nil {
		return nil, fmt.Errorf("authz role policies: %w", err)
	}
	return toPolicies(rules), nil
}

// AssignAdminRoles 覆盖管理员的角色，空列表表示收回全部角色
// 角色必须已登记，任一未知角色时不做任何修改
func (s *Service) AssignAdminRoles(adminID uint, roles []string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if adminID == 0 {
		return nil, ErrAdminRequired
	}
	registered, err := s.Roles()
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(registered))
	for _, role := range registered {
		known[role] = true
	}
	wanted := make([]string, 0, len(roles))
	for _, role := range roles {
		name, err := NormalizeRole(role)
		if err != nil {
			return nil, err
		}
		if !known[name] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRole, name)
		}
		wanted = append(wanted, name)
	}
	wanted = sortedRoleNames(wanted)

	subject := SubjectForAdmin(adminID)
	if _, err := s.enforcer.DeleteRolesForUser(subject); err != nil {
		return nil, fmt.Errorf("authz clear admin roles: %w", err)
	}
	for _, role := range wanted {
		if _, err := s.enforcer.AddRoleForUser(subject, role); err != nil {
			return nil, fmt.Errorf("authz assign %s: %w", role, err)
		}
	}
	return wanted, nil
}

// AdminRoles 直接分配给管理员的角色
func (s *Service) AdminRoles(adminID uint) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if adminID == 0 {
		return nil, ErrAdminRequired
	}
	roles, err := s.enforcer.GetRolesForUser(SubjectForAdmin(adminID))
	if err != nil {
		return nil, fmt.Errorf("authz admin roles: %w", err)
	}
	return sortedRoleNames(roles), nil
}

// EffectivePolicies 管理员最终生效的策略，含角色继承
func (s *Service) EffectivePolicies(adminID uint) ([]Policy, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if adminID == 0 {
		return nil, ErrAdminRequired
	}
	rules, err := s.enforcer.GetImplicitPermissionsForUser(SubjectForAdmin(adminID))
	if err != nil {
		return nil, fmt.Errorf("authz implicit permissions: %w", err)
	}
	policies := toPolicies(rules)
	sort.Slice(policies, func(i, j int) bool {
		a, b := policies[i], policies[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Object != b.Object {
			return a.Object < b.Object
		}
		return a.Action < b.Action
	})
	return policies, nil
}

// sortedRoleNames 过滤出 role:xxx 并去重排序
func sortedRoleNames(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	roles := make([]string, 0, len(values))
	for _, value := range values {
		if !isRoleName(value) {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		roles = append(roles, value)
	}
	sort.Strings(roles)
	return roles
}
