package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/mall-next/internal/app"
	"github.com/mall-next/internal/config"
	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/migrate"
	"github.com/mall-next/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiCyan  = "\033[36m"
)

func main() {
	var mode string
	flag.StringVar(&mode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.Parse()

	printStartupBanner(mode)

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions("mall-"+mode))
	defer logger.Sync()
	log := logger.S()

	if isWeakSecret(cfg.JWT.SecretKey) || isWeakSecret(cfg.UserJWT.SecretKey) {
		if cfg.Server.Mode == "release" {
			log.Fatalf("JWT secret 过弱或仍为默认值，请在生产环境中配置强随机密钥")
		}
		log.Warnw("jwt_secret_weak", "hint", "生产环境请更换为强随机密钥")
	}

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, cfg.Server.Mode == "debug"); err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}
	defer func() {
		if err := models.Close(); err != nil {
			log.Warnw("db_close_failed", "error", err)
		}
	}()

	// 表结构由 cmd/migrate 维护，这里只确认已迁移
	if err := ensureMigrated(cfg); err != nil {
		log.Fatalf("数据库未迁移，请先执行 migrate -cmd up: %v", err)
	}

	defaultAdminUser := os.Getenv("MALL_DEFAULT_ADMIN_USERNAME")
	defaultAdminPass := os.Getenv("MALL_DEFAULT_ADMIN_PASSWORD")
	if cfg.Server.Mode == "release" && defaultAdminPass == "" {
		log.Warnw("default_admin_skipped", "reason", "MALL_DEFAULT_ADMIN_PASSWORD not set")
	} else if _, err := models.EnsureAdmin(models.DB, defaultAdminUser, defaultAdminPass, true); err != nil {
		log.Warnw("default_admin_init_failed", "error", err)
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  log,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    mode,
	}); err != nil {
		log.Fatalf("服务运行失败: %v", err)
	}
}

func ensureMigrated(cfg *config.Config) error {
	dialect, err := models.DialectName(cfg.Database.Driver)
	if err != nil {
		return err
	}
	sqlDB, err := models.DB.DB()
	if err != nil {
		return err
	}
	version, err := migrate.Version(sqlDB, migrate.Source{Dialect: dialect, Dir: cfg.Database.MigrationsDir})
	if err != nil {
		return err
	}
	if version <= 0 {
		return fmt.Errorf("schema version %d", version)
	}
	return nil
}

func printStartupBanner(mode string) {
	fmt.Println(ansiCyan + ansiBold + "mall-next " + ansiReset + ansiDim + "order & commission engine" + ansiReset)
	fmt.Println(ansiDim + "mode: " + mode + ansiReset)
	fmt.Println(ansiDim + "--------------------------------------------------------------" + ansiReset)
}

func isWeakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}
	normalized := strings.ToLower(secret)
	return strings.Contains(normalized, "change-me") ||
		strings.Contains(normalized, "change-in-production") ||
		strings.Contains(normalized, "your-secret-key")
}
