package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"timed-voting-backend/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是全局数据库连接
var DB *gorm.DB

// InitDB 初始化数据库连接
func InitDB() error {
	// 配置GORM日志
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true, // 忽略ErrRecordNotFound错误
			Colorful:                  true,
		},
	)

	var err error

	driver := getEnv("DB_DRIVER", "mysql")
	switch driver {
	case "sqlite":
		// 单机/开发模式使用SQLite
		dbPath := getEnv("DB_PATH", "voting.db")
		log.Printf("使用SQLite数据库: %s", dbPath)
		DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: newLogger})
	default:
		// 从环境变量获取MySQL数据库配置
		dbUser := getEnv("DB_USER", "voteuser")
		dbPassword := getEnv("DB_PASSWORD", "votepassword")
		dbHost := getEnv("DB_HOST", "mysql")
		dbPort := getEnv("DB_PORT", "3306")
		dbName := getEnv("DB_NAME", "votingdb")

		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			dbUser, dbPassword, dbHost, dbPort, dbName)

		log.Println("使用MySQL数据库")
		DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: newLogger})
	}

	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	// 设置语句超时，避免存储层长时间挂起
	if sqlDB, dbErr := DB.DB(); dbErr == nil {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	// 自动迁移模型
	if err := DB.AutoMigrate(&models.User{}, &models.Poll{}, &models.PollOption{}, &models.Vote{}); err != nil {
		return fmt.Errorf("迁移模型失败: %w", err)
	}

	log.Println("数据库连接和迁移成功")
	return nil
}

// CloseDB 关闭数据库连接
func CloseDB() {
	if DB == nil {
		return
	}

	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("获取数据库连接失败: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("关闭数据库连接失败: %v", err)
		return
	}

	log.Println("数据库连接已关闭")
}

// getEnv 获取环境变量值或使用默认值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
