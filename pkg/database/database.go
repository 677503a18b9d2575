package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/sale-promotion/config"
	"github.com/d60-Lab/sale-promotion/internal/model"
)

// InitDB 按配置打开数据库连接并设置连接池
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	var (
		dialector gorm.Dialector
		isSQLite  bool
	)
	switch strings.ToLower(cfg.Database.Driver) {
	case "", "postgres", "postgresql":
		dialector = postgres.Open(cfg.Database.DSN)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(cfg.Database.DSN)
		isSQLite = true
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logLevel(cfg.Database.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if isSQLite {
		// sqlite 单写者
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	if cfg.Database.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// AutoMigrate 迁移全部业务表
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Draft{},
		&model.Promotion{},
		&model.Sale{},
		&model.SaleItem{},
		&model.EventLedgerEntry{},
		&model.EmailSendRecord{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// OpenInMemory 打开命名的共享内存 sqlite 库并迁移，供本地运行与测试使用
func OpenInMemory(name string) (*gorm.DB, error) {
	cfg := &config.Config{Database: config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         fmt.Sprintf("file:%s?mode=memory&cache=shared", sanitize(name)),
		LogLevel:    "silent",
		AutoMigrate: true,
	}}
	return InitDB(cfg)
}

func sanitize(name string) string {
	return strings.NewReplacer("/", "_", " ", "_", "?", "_", "&", "_", "#", "_").Replace(name)
}

// IsUniqueViolation 判断是否唯一约束冲突（postgres 23505 或 sqlite UNIQUE）
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}

func logLevel(s string) gormlogger.LogLevel {
	switch strings.ToLower(s) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
