package db

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/modestprophet/gonzo-pit-strategy/config"
	"github.com/modestprophet/gonzo-pit-strategy/entity"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB 按配置选择驱动建立 gorm 连接。mysql 用于生产环境，
// sqlite 用于本地单机训练与测试。
func InitDB() error {
	if config.AppConfig == nil {
		return errors.New("app config is not initialized")
	}

	cfg := config.AppConfig.DB
	switch {
	case strings.EqualFold(cfg.Driver, "mysql"):
		return initMySQL(cfg)
	case strings.EqualFold(cfg.Driver, "sqlite"):
		return initSQLite(cfg)
	default:
		return fmt.Errorf("unsupported db driver: %s", cfg.Driver)
	}
}

func initMySQL(cfg config.DBConfig) error {
	loc := url.QueryEscape("UTC")
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=%s&timeout=5s&readTimeout=10s&writeTimeout=10s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		loc,
	)

	conn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf(
			"connect mysql failed (host=%s port=%d db=%s user=%s): %w",
			cfg.Host, cfg.Port, cfg.DBName, cfg.User, err,
		)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB failed: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("mysql ping failed: %w", err)
	}

	DB = conn
	return nil
}

func initSQLite(cfg config.DBConfig) error {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "gonzo.db"
	}

	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("connect sqlite failed (path=%s): %w", path, err)
	}

	// sqlite 下直接建表，免去手工 DDL
	if err := Migrate(conn); err != nil {
		return err
	}

	DB = conn
	return nil
}

// Migrate 建立三张核心表（模型记录 / 训练运行 / 训练指标）。
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&entity.ModelRecord{},
		&entity.TrainingRun{},
		&entity.TrainingMetric{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}
