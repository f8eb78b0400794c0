// Package database opens the relational store and the Redis client.
package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sandro385/expert-tune/internal/config"
	"github.com/Sandro385/expert-tune/internal/model"
	"github.com/Sandro385/expert-tune/pkg/log"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens the configured store, creates the schema and sets DB. It exits on failure.
func Init(cfg config.DatabaseConfig) {
	db, err := Open(cfg)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	if err := Migrate(db); err != nil {
		log.Fatal("failed to migrate database schema", err)
	}
	DB = db
	log.Infof("%s database ready", cfg.Driver)
}

// Open connects to the store selected by cfg.Driver.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		db, err := gorm.Open(sqlite.Open(sqliteDSN(cfg.DSN)), gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY between them
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case "mysql":
		db, err := gorm.Open(mysql.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate creates or updates the users, chat_history and finetune_jobs tables.
// It is safe to run against an already populated store.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.User{}, &model.ChatMessage{}, &model.FineTuneJob{})
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)"
}
