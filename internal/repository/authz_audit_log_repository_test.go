package repository

import (
	"testing"
	"time"

	"github.com/mall-next/internal/models"
)

func TestAuthzAuditLogListFilters(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewAuthzAuditLogRepository(db)

	entries := []models.AuthzAuditLog{
		{OperatorAdminID: 1, TargetAdminID: 2, Action: "set_admin_roles", Roles: "support"},
		{OperatorAdminID: 1, TargetAdminID: 3, Action: "set_admin_roles", Roles: "finance"},
		{OperatorAdminID: 4, TargetAdminID: 2, Action: "set_admin_roles", Roles: "support,finance"},
	}
	for i := range entries {
		if err := repo.Create(&entries[i]); err != nil {
			t.Fatalf("create audit log failed: %v", err)
		}
	}
	if err := repo.Create(nil); err != nil {
		t.Fatalf("nil entry should be ignored: %v", err)
	}

	rows, total, err := repo.List(AuthzAuditLogListFilter{Page: 1, PageSize: 10, TargetAdminID: 2})
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("target filter want 2 got total=%d len=%d", total, len(rows))
	}
	if rows[0].ID < rows[1].ID {
		t.Fatalf("audit logs should be ordered by id desc")
	}

	rows, total, err = repo.List(AuthzAuditLogListFilter{Page: 2, PageSize: 1, OperatorAdminID: 1})
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if total != 2 || len(rows) != 1 || rows[0].TargetAdminID != 2 {
		t.Fatalf("second page of operator 1 should hold the earliest entry, got total=%d rows=%+v", total, rows)
	}

	future := time.Now().Add(time.Hour)
	rows, total, err = repo.List(AuthzAuditLogListFilter{CreatedFrom: &future})
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if total != 0 || len(rows) != 0 {
		t.Fatalf("future created_from should match nothing, got %d", total)
	}
}
