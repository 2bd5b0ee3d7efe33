package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/mall-next/internal/authz"
	"github.com/mall-next/internal/config"
	"github.com/mall-next/internal/http/handlers/shared"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/repository"
	"github.com/mall-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupRouterTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func decodeStatusCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp struct {
		StatusCode int `json:"status_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	return resp.StatusCode
}

func TestUserJWTAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupRouterTestDB(t)
	user := &models.User{Nickname: "buyer"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	cfg := &config.Config{UserJWT: config.JWTConfig{SecretKey: "user-secret", ExpireHours: 1}}
	userRepo := repository.NewUserRepository(db)
	token, _, err := service.NewUserAuthService(cfg, userRepo).GenerateUserJWT(user)
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}

	r := gin.New()
	r.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, userRepo))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status_code": 0, "user_id": c.GetUint(shared.ContextKeyUserID)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	var ok struct {
		StatusCode int  `json:"status_code"`
		UserID     uint `json:"user_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ok); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if ok.StatusCode != 0 || ok.UserID != user.ID {
		t.Fatalf("valid token should pass, got %s", w.Body.String())
	}

	cases := map[string]string{
		"missing":      "",
		"bad scheme":   "Token " + token,
		"wrong secret": "Bearer " + mustSignUserToken(t, "other-secret", user.ID),
		"unknown user": "Bearer " + mustSignUserToken(t, cfg.UserJWT.SecretKey, user.ID+100),
	}
	for name, header := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		if code := decodeStatusCode(t, w); code != 401 {
			t.Fatalf("%s: status_code want 401 got %d", name, code)
		}
	}
}

func mustSignUserToken(t *testing.T, secret string, userID uint) string {
	t.Helper()
	cfg := &config.Config{UserJWT: config.JWTConfig{SecretKey: secret, ExpireHours: 1}}
	token, _, err := service.NewUserAuthService(cfg, nil).GenerateUserJWT(&models.User{ID: userID})
	if err != nil {
		t.Fatalf("sign token failed: %v", err)
	}
	return token
}

func TestAdminRBACMiddlewareWithoutService(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(shared.ContextKeyAdminID, uint(1))
		c.Set(shared.ContextKeyAdminIsSuper, true)
	})
	r.Use(AdminRBACMiddleware(nil))
	r.GET("/admin/orders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status_code": 0})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/orders", nil))
	if code := decodeStatusCode(t, w); code != 401 {
		t.Fatalf("nil authz service should reject, got %d", code)
	}
}

func TestAdminRBACMiddlewareEnforcesRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupRouterTestDB(t)
	authzService, err := authz.NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap roles failed: %v", err)
	}
	if _, err := authzService.AssignAdminRoles(2, []string{"support"}); err != nil {
		t.Fatalf("assign support failed: %v", err)
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		id, _ := strconv.Atoi(c.GetHeader("X-Admin-ID"))
		c.Set(shared.ContextKeyAdminID, uint(id))
		c.Set(shared.ContextKeyAdminIsSuper, c.GetHeader("X-Admin-Super") == "1")
	})
	r.Use(AdminRBACMiddleware(authzService))
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status_code": 0}) }
	r.POST("/api/v1/admin/orders/:id/ship", ok)
	r.POST("/api/v1/admin/orders/:id/refund", ok)

	cases := []struct {
		name  string
		admin string
		super bool
		path  string
		want  int
	}{
		{name: "support ships", admin: "2", path: "/api/v1/admin/orders/8/ship", want: 0},
		{name: "support cannot refund", admin: "2", path: "/api/v1/admin/orders/8/refund", want: 403},
		{name: "no roles", admin: "3", path: "/api/v1/admin/orders/8/ship", want: 403},
		{name: "super bypass", admin: "3", super: true, path: "/api/v1/admin/orders/8/refund", want: 0},
		{name: "anonymous", admin: "", path: "/api/v1/admin/orders/8/ship", want: 401},
	}
	for _, item := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, item.path, nil)
		req.Header.Set("X-Admin-ID", item.admin)
		if item.super {
			req.Header.Set("X-Admin-Super", "1")
		}
		r.ServeHTTP(w, req)
		if code := decodeStatusCode(t, w); code != item.want {
			t.Fatalf("%s: status_code want %d got %d", item.name, item.want, code)
		}
	}
}

func TestBuildAdminPermissionCatalog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	noop := func(c *gin.Context) {}
	r := gin.New()
	r.POST("/api/v1/admin/login", noop)
	r.GET("/api/v1/admin/orders", noop)
	r.POST("/api/v1/admin/orders/:id/ship", noop)
	r.PUT("/api/v1/admin/commissions/:id/status", noop)
	r.GET("/api/v1/admin/authz/roles", noop)
	r.GET("/api/v1/orders", noop)

	items := buildAdminPermissionCatalog(r)
	if len(items) != 4 {
		t.Fatalf("catalog size want 4 got %d: %+v", len(items), items)
	}
	want := []string{
		"GET:/admin/authz/roles",
		"PUT:/admin/commissions/:id/status",
		"GET:/admin/orders",
		"POST:/admin/orders/:id/ship",
	}
	for i, item := range items {
		if item.Permission != want[i] {
			t.Fatalf("catalog[%d] want %s got %s", i, want[i], item.Permission)
		}
	}
	if items[0].Module != "authz" || items[2].Module != "orders" {
		t.Fatalf("unexpected modules: %+v", items)
	}
}

func TestPermissionModule(t *testing.T) {
	cases := map[string]string{
		"":                  "system",
		"/admin":            "admin",
		"/admin/orders/:id": "orders",
		"/admin/authz/me":   "authz",
		"/metrics":          "metrics",
	}
	for object, want := range cases {
		if got := permissionModule(object); got != want {
			t.Fatalf("permissionModule(%q) want %s got %s", object, want, got)
		}
	}
}
