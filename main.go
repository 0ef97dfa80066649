package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timed-voting-backend/cache"
	"timed-voting-backend/database"
	"timed-voting-backend/handlers"
	"timed-voting-backend/mq"
	"timed-voting-backend/routes"
	"timed-voting-backend/session"

	"github.com/joho/godotenv"
)

func main() {
	// 加载.env配置文件（不存在时使用环境变量）
	if err := godotenv.Load(); err != nil {
		log.Println("未找到.env文件，使用环境变量")
	}

	// 初始化数据库连接
	if err := database.InitDB(); err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("数据库连接初始化成功")

	// 初始化Redis连接（失败时降级运行）
	if err := cache.InitRedis(); err != nil {
		log.Printf("警告: Redis初始化失败，缓存与分布式锁降级: %v", err)
	} else {
		log.Println("Redis连接初始化成功")
		cache.InitDistLock()
	}

	// 初始化消息队列适配器（自动选择RocketMQ、Redis或内存模式）
	relay := mq.NewAdapter()
	if err := relay.Initialize(); err != nil {
		log.Printf("警告: 消息队列初始化失败，将使用内存模式: %v", err)
	}
	log.Printf("消息队列适配器模式: %s", relay)

	// 会话注册表：所有进行中的投票会话都在这里
	registry := session.NewRegistry()

	// 注册事件处理函数：票数事件到达后推送给会话订阅者
	err := relay.RegisterHandler(func(evt mq.TallyEvent) {
		registry.Publish(evt.PollID, session.TallySnapshot{
			Options:   evt.Options,
			Timestamp: evt.Timestamp,
		})
	})
	if err != nil {
		log.Printf("警告: 注册消息处理函数失败: %v", err)
	}

	// 将依赖注入处理程序
	handlers.InitHandlers(registry, relay)

	// 设置路由并启动服务器
	router := routes.SetupRouter()
	srv := routes.StartServer(router)
	log.Println("服务器启动成功")

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("关闭服务器...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 不接受新请求并等待现有请求完成
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务器强制关闭: %v", err)
	}

	// 关闭数据库、Redis和消息队列连接
	database.CloseDB()
	cache.CloseRedis()
	relay.Close()

	log.Println("服务器优雅关闭")
}
