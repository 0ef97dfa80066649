// Package mq relays tally snapshots to interested consumers after a vote
// commits. The relay is strictly post-commit and fire-and-forget: the vote
// path never waits on it, and the in-process fan-out contract holds in every
// mode. Transport is picked at startup: RocketMQ when a name server is
// configured, a Redis list when redis is up, otherwise direct in-memory
// delivery.
package mq

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"timed-voting-backend/models"

	"github.com/google/uuid"
)

// TallyEvent 投票结果更新事件
type TallyEvent struct {
	PollID    string               `json:"poll_id"` // 对外投票句柄
	Options   []models.OptionTally `json:"options"`
	Timestamp int64                `json:"timestamp"`
	MessageID string               `json:"message_id"` // 用于幂等性处理
}

// Handler 消费端回调
type Handler func(evt TallyEvent)

// Adapter 消息队列适配器，在RocketMQ、Redis队列和内存直投间自动选择
type Adapter struct {
	mode       string
	redisRelay *redisRelay
	handler    Handler
	initOnce   sync.Once
	mu         sync.RWMutex
	published  int64
}

// NewAdapter 创建新的消息队列适配器
func NewAdapter() *Adapter {
	return &Adapter{mode: "memory"}
}

// Initialize 初始化消息队列，失败时降级而不是报错退出
func (a *Adapter) Initialize() error {
	a.initOnce.Do(func() {
		// 优先尝试RocketMQ
		if os.Getenv("ROCKETMQ_NAMESRV_ADDR") != "" {
			if err := initRocketMQ(); err != nil {
				log.Printf("RocketMQ初始化失败，尝试Redis队列: %v", err)
			} else {
				a.mode = "rocketmq"
				log.Println("消息队列使用RocketMQ模式")
				return
			}
		}

		// 其次尝试Redis队列
		relay, err := newRedisRelay()
		if err == nil {
			a.redisRelay = relay
			a.mode = "redis"
			log.Println("消息队列使用Redis模式")
			return
		}

		// 都不可用时在进程内直接投递
		a.mode = "memory"
		log.Println("消息队列使用内存直投模式")
	})
	return nil
}

// RegisterHandler 注册消费端回调并启动消费
func (a *Adapter) RegisterHandler(h Handler) error {
	a.mu.Lock()
	a.handler = h
	a.mu.Unlock()

	switch a.mode {
	case "rocketmq":
		return startRocketConsumer(h)
	case "redis":
		a.redisRelay.start(h)
		return nil
	default:
		return nil
	}
}

// PublishTally 发布一条投票结果事件，绝不阻塞投票主流程
func (a *Adapter) PublishTally(evt TallyEvent) {
	if evt.MessageID == "" {
		evt.MessageID = uuid.NewString()
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixNano()
	}

	a.mu.Lock()
	a.published++
	a.mu.Unlock()

	switch a.mode {
	case "rocketmq":
		go func() {
			if err := publishRocket(evt); err != nil {
				log.Printf("发送事件到RocketMQ失败: %v", err)
			}
		}()
	case "redis":
		go func() {
			if err := a.redisRelay.publish(evt); err != nil {
				log.Printf("发送事件到Redis队列失败: %v", err)
			}
		}()
	default:
		a.mu.RLock()
		h := a.handler
		a.mu.RUnlock()
		if h != nil {
			h(evt)
		}
	}
}

// Stats 返回队列状态信息
func (a *Adapter) Stats() map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return map[string]interface{}{
		"mode":      a.mode,
		"published": a.published,
	}
}

// Close 关闭消息队列连接
func (a *Adapter) Close() {
	switch a.mode {
	case "rocketmq":
		shutdownRocketMQ()
	case "redis":
		a.redisRelay.stop()
	}
}

// String 便于日志输出
func (a *Adapter) String() string {
	return fmt.Sprintf("mq-adapter(%s)", a.mode)
}
