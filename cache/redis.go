package cache

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// 全局Redis客户端。Redis在本服务中始终是可选加速层：没有它时读路径直接
// 落库，投票更新锁退化为数据库事务自身的串行化。
var (
	redisClient *redis.Client
	initOnce    sync.Once
	available   bool

	// 缓存默认过期时间
	defaultExpiration = 1 * time.Hour
)

// InitRedis 初始化Redis连接，连接失败时进入降级模式而不是报错退出
func InitRedis() error {
	var initErr error

	initOnce.Do(func() {
		if os.Getenv("REDIS_DISABLE") == "true" {
			log.Println("已通过环境变量禁用Redis，使用降级模式")
			return
		}

		redisAddr := os.Getenv("REDIS_ADDR")
		if redisAddr == "" {
			redisAddr = "localhost:6379"
		}
		redisPassword := os.Getenv("REDIS_PASSWORD")

		log.Printf("初始化Redis连接, 地址: %s", redisAddr)

		redisClient = redis.NewClient(&redis.Options{
			Addr:        redisAddr,
			Password:    redisPassword,
			DB:          0,
			DialTimeout: 3 * time.Second,
			ReadTimeout: 3 * time.Second,
			PoolSize:    10,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			log.Printf("Redis连接失败，使用降级模式: %v", err)
			redisClient = nil
			initErr = ErrRedisNotAvailable
			return
		}

		available = true
		log.Println("Redis连接初始化成功")
	})

	return initErr
}

// Available 报告Redis是否可用
func Available() bool {
	return available
}

// GetClient 获取Redis客户端
func GetClient() (*redis.Client, error) {
	if !available || redisClient == nil {
		return nil, ErrRedisNotAvailable
	}
	return redisClient, nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() {
	if redisClient == nil {
		return
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("关闭Redis连接失败: %v", err)
		return
	}
	available = false
	log.Println("Redis连接已关闭")
}
