package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mall-next/internal/config"
	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/migrate"
	"github.com/mall-next/internal/models"
)

const usage = `用法: migrate -cmd <command> [-version N]

命令:
  up        迁移至最新版本
  down      回滚一个版本
  redo      回滚并重新执行最新版本
  status    查看迁移状态
  version   输出当前版本
  to        迁移到 -version 指定的版本（自动判断方向）`

func main() {
	var command, version string
	flag.StringVar(&command, "cmd", "up", "迁移命令: up / down / redo / status / version / to")
	flag.StringVar(&version, "version", "", "目标版本（-cmd to 时必填）")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions("mall-migrate"))
	defer logger.Sync()
	log := logger.S()

	dialect, err := models.DialectName(cfg.Database.Driver)
	if err != nil {
		log.Fatalf("数据库驱动不支持: %v", err)
	}
	db, err := models.Open(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, false)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("获取数据库连接失败: %v", err)
	}
	defer sqlDB.Close()

	src := migrate.Source{Dialect: dialect, Dir: cfg.Database.MigrationsDir}
	ctx := context.Background()

	switch strings.ToLower(strings.TrimSpace(command)) {
	case "up", "down", "redo", "status":
		err = migrate.Run(ctx, sqlDB, src, command)
	case "version":
		var current int64
		current, err = migrate.Version(sqlDB, src)
		if err == nil {
			fmt.Println(current)
		}
	case "to":
		if strings.TrimSpace(version) == "" {
			flag.Usage()
			os.Exit(2)
		}
		err = migrate.MigrateToVersion(ctx, sqlDB, src, version)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("迁移失败: %v", err)
	}
	log.Infow("migrate_done", "cmd", command, "dialect", dialect)
}
