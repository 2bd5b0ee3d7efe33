package service

import (
	"errors"
	"testing"

	"github.com/mall-next/internal/config"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/repository"
)

func TestAdminLoginIssuesParsableToken(t *testing.T) {
	env := setupOrderServiceTest(t)
	admin, err := models.EnsureAdmin(env.db, "ops", "secret-pass", false)
	if err != nil {
		t.Fatalf("ensure admin failed: %v", err)
	}
	cfg := &config.Config{JWT: config.JWTConfig{SecretKey: "test-secret", ExpireHours: 2}}
	svc := NewAuthService(cfg, repository.NewAdminRepository(env.db))

	if _, _, _, err := svc.Login("ops", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password should be rejected, got %v", err)
	}
	if _, _, _, err := svc.Login("nobody", "secret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown admin should be rejected, got %v", err)
	}

	logged, token, _, err := svc.Login(" ops ", "secret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if logged.ID != admin.ID || logged.LastLoginAt == nil {
		t.Fatalf("unexpected admin: %+v", logged)
	}
	claims, err := svc.ParseJWT(token)
	if err != nil || claims.AdminID != admin.ID || claims.Username != "ops" {
		t.Fatalf("unexpected claims: %+v %v", claims, err)
	}

	other := NewAuthService(&config.Config{JWT: config.JWTConfig{SecretKey: "other"}}, nil)
	if _, err := other.ParseJWT(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token signed with another secret must be rejected, got %v", err)
	}
}

func TestUserTokenRoundTrip(t *testing.T) {
	env := setupOrderServiceTest(t)
	user := createTestUser(t, env.db, nil, false)
	cfg := &config.Config{UserJWT: config.JWTConfig{SecretKey: "user-secret"}}
	svc := NewUserAuthService(cfg, repository.NewUserRepository(env.db))

	token, _, err := svc.GenerateUserJWT(user)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	claims, err := svc.ParseUserJWT(token)
	if err != nil || claims.UserID != user.ID {
		t.Fatalf("unexpected claims: %+v %v", claims, err)
	}
	if _, err := svc.ParseUserJWT("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token must be rejected, got %v", err)
	}
	if _, err := svc.GetUserByID(9999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("missing user should be not found, got %v", err)
	}
}
