package initial

import (
	"fmt"
	"log"
	"os"
	"time"

	"RAGBot/internal/config"
	"RAGBot/internal/modules/rag/domain/document"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewGormDB 连接 MySQL 并迁移上传台账表
func NewGormDB(conf *config.Config) (*gorm.DB, error) {
	mc := conf.MysqlConfig
	dbName := mc.DatabaseName
	if dbName == "" {
		dbName = conf.AppName
	}
	port := mc.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local", mc.User, mc.Password, mc.Host, port, dbName)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}
	// 自动迁移，如果没有建表，会自动创建对应的表
	if err := db.AutoMigrate(&document.UploadedFile{}); err != nil {
		return nil, err
	}
	return db, nil
}
