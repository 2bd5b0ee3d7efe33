package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embedded embed.FS

// Source 迁移来源：内嵌 SQL 或磁盘目录
type Source struct {
	Dialect string // goose 方言：sqlite3 / postgres
	Dir     string // 非空时从磁盘读取
}

func (s Source) resolve() (fs.FS, string, error) {
	dialect := strings.TrimSpace(s.Dialect)
	if dialect == "" {
		return nil, "", fmt.Errorf("dialect is required")
	}
	if dir := strings.TrimSpace(s.Dir); dir != "" {
		return os.DirFS(dir), ".", nil
	}
	sub := "sqlite"
	if dialect == "postgres" {
		sub = "postgres"
	}
	return embedded, path.Join("migrations", sub), nil
}

func prepare(src Source) (string, error) {
	fsys, dir, err := src.resolve()
	if err != nil {
		return "", err
	}
	goose.SetBaseFS(fsys)
	if err := goose.SetDialect(src.Dialect); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	return dir, nil
}

// Run 执行 goose 命令（up / down / status / redo / reset）
func Run(ctx context.Context, db *sql.DB, src Source, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	dir, err := prepare(src)
	if err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Up 迁移至最新版本
func Up(ctx context.Context, db *sql.DB, src Source) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	dir, err := prepare(src)
	if err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Version 当前数据库版本
func Version(db *sql.DB, src Source) (int64, error) {
	if _, err := prepare(src); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db)
}

// MigrateToVersion 迁移到指定版本，按当前版本决定向上或向下
func MigrateToVersion(ctx context.Context, db *sql.DB, src Source, targetVersion string) error {
	target, err := strconv.ParseInt(strings.TrimSpace(targetVersion), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	dir, err := prepare(src)
	if err != nil {
		return err
	}
	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}
