package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/germinal-ai/germinal/internal/infrastructure/persistence/models"
)

// Config 数据库配置
type Config struct {
	Type string // sqlite, postgres
	DSN  string
}

// NewDB 创建数据库连接
//
// SQLite runs in WAL mode so the inspector CLI can read while the daemon
// writes. Single-writer discipline is a system design constraint; the queue's
// read-then-update dequeue relies on there being exactly one consumer.
func NewDB(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "sqlite", "":
		dsn := cfg.DSN
		// Ensure the directory exists before sqlite tries to create the file.
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		if !strings.Contains(dsn, "_journal_mode") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_journal_mode=WAL"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 自动迁移模式
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// autoMigrate 自动迁移数据库结构 (幂等)
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.EventModel{},
		&models.InvocationModel{},
		&models.ToolCallModel{},
		&models.ApprovalModel{},
		&models.ProjectModel{},
		&models.HistoryModel{},
		&models.TaskModel{},
	)
}
