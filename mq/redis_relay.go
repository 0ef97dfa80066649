package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"timed-voting-backend/cache"

	"github.com/redis/go-redis/v9"
)

// TallyQueueName 事件主队列名称
const TallyQueueName = "tally_events"

// redisRelay 基于Redis列表的简单事件队列
type redisRelay struct {
	client   *redis.Client
	ctx      context.Context
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newRedisRelay() (*redisRelay, error) {
	client, err := cache.GetClient()
	if err != nil {
		return nil, err
	}
	return &redisRelay{
		client:   client,
		ctx:      context.Background(),
		stopChan: make(chan struct{}),
	}, nil
}

// publish 发送事件到主队列
func (r *redisRelay) publish(evt TallyEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	if err := r.client.LPush(r.ctx, TallyQueueName, data).Err(); err != nil {
		return fmt.Errorf("发送事件到队列失败: %w", err)
	}
	return nil
}

// start 启动消费循环
func (r *redisRelay) start(h Handler) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.stopChan:
				return
			default:
			}

			// BRPOP带超时，以便能响应stop信号
			result, err := r.client.BRPop(r.ctx, 1*time.Second, TallyQueueName).Result()
			if err != nil {
				if err != redis.Nil {
					log.Printf("从Redis队列读取事件失败: %v", err)
					time.Sleep(time.Second)
				}
				continue
			}
			if len(result) < 2 {
				continue
			}

			var evt TallyEvent
			if err := json.Unmarshal([]byte(result[1]), &evt); err != nil {
				log.Printf("反序列化事件失败: %v", err)
				continue
			}
			h(evt)
		}
	}()
}

// stop 停止消费循环
func (r *redisRelay) stop() {
	close(r.stopChan)
	r.wg.Wait()
	log.Println("Redis事件队列已停止")
}
