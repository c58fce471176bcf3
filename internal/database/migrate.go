package database

import (
	"context"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// goose 的方言和 BaseFS 是包级全局状态
var gooseMu sync.Mutex

// Migrate 执行全部未应用的迁移
func Migrate(ctx context.Context, db *gorm.DB) error {
	return runGoose(ctx, db, func(ctx context.Context, dir string) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return goose.UpContext(ctx, sqlDB, dir)
	})
}

// MigrationVersion 当前已应用的迁移版本
func MigrationVersion(ctx context.Context, db *gorm.DB) (int64, error) {
	var version int64
	err := runGoose(ctx, db, func(ctx context.Context, _ string) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		version, err = goose.GetDBVersionContext(ctx, sqlDB)
		return err
	})
	return version, err
}

func runGoose(ctx context.Context, db *gorm.DB, fn func(ctx context.Context, dir string) error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dialect, dir := "sqlite3", "migrations/sqlite"
	if Driver(db) == DriverPostgres {
		dialect, dir = "postgres", "migrations/postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := fn(ctx, dir); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
