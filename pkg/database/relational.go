// Package database 负责初始化关系型数据库、Redis 与 Postgres 连接。
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"campus-rag-go/internal/config"
	"campus-rag-go/internal/model"
	"campus-rag-go/pkg/log"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// OpenRelational 根据 events.driver 打开事件库与文档记录所在的数据库，并完成表结构迁移。
func OpenRelational(events config.EventsConfig, dbCfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var (
		db  *gorm.DB
		err error
	)
	switch events.Driver {
	case "mysql":
		db, err = gorm.Open(mysql.Open(dbCfg.MySQL.DSN), gormCfg)
	case "sqlite", "":
		path := dbCfg.SQLite.Path
		if path != ":memory:" {
			if mkErr := os.MkdirAll(filepath.Dir(path), os.ModePerm); mkErr != nil {
				return nil, fmt.Errorf("创建 SQLite 目录失败: %w", mkErr)
			}
		}
		db, err = gorm.Open(sqlite.Open(path), gormCfg)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", events.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取 sql.DB 失败: %w", err)
	}
	if events.Driver == "mysql" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// SQLite 只允许单写者
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Infof("[Database] %s 数据库连接成功", driverName(events.Driver))
	return db, nil
}

// InitRelational 打开数据库并赋值给全局 DB，失败时退出程序。
func InitRelational(events config.EventsConfig, dbCfg config.DatabaseConfig) {
	db, err := OpenRelational(events, dbCfg)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	DB = db
}

// Migrate 创建或更新事件表和文档记录表。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Event{}, &model.DocumentRecord{}); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}

func driverName(driver string) string {
	if driver == "" {
		return "sqlite"
	}
	return driver
}
