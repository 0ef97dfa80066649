package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

// 主题常量
const (
	TopicTallyEvents = "tally_events"
)

var (
	rocketProducer rocketmq.Producer
	rocketConsumer rocketmq.PushConsumer
	rocketOnce     sync.Once
	rocketReady    bool

	// 幂等性处理：记录已消费的消息ID
	processedMessages  = make(map[string]bool)
	processedMessagesM sync.Mutex
)

// initRocketMQ 初始化RocketMQ生产者
func initRocketMQ() error {
	var initErr error

	rocketOnce.Do(func() {
		nameServerAddr := os.Getenv("ROCKETMQ_NAMESRV_ADDR")
		if nameServerAddr == "" {
			nameServerAddr = "localhost:9876"
		}

		log.Printf("初始化RocketMQ连接, 地址: %s", nameServerAddr)

		p, err := rocketmq.NewProducer(
			producer.WithNameServer([]string{nameServerAddr}),
			producer.WithGroupName("tally_relay_producer"),
			producer.WithRetry(2),
		)
		if err != nil {
			initErr = fmt.Errorf("创建RocketMQ生产者失败: %w", err)
			return
		}

		if err := p.Start(); err != nil {
			initErr = fmt.Errorf("启动RocketMQ生产者失败: %w", err)
			return
		}

		rocketProducer = p
		rocketReady = true
		log.Println("RocketMQ生产者初始化成功")
	})

	return initErr
}

// publishRocket 发送事件到RocketMQ
func publishRocket(evt TallyEvent) error {
	if !rocketReady {
		return fmt.Errorf("RocketMQ未初始化")
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := primitive.NewMessage(TopicTallyEvents, data)
	msg.WithKeys([]string{evt.MessageID})

	if _, err := rocketProducer.SendSync(context.Background(), msg); err != nil {
		return fmt.Errorf("发送消息失败: %w", err)
	}
	return nil
}

// startRocketConsumer 启动RocketMQ消费者
func startRocketConsumer(h Handler) error {
	nameServerAddr := os.Getenv("ROCKETMQ_NAMESRV_ADDR")
	if nameServerAddr == "" {
		nameServerAddr = "localhost:9876"
	}

	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer([]string{nameServerAddr}),
		consumer.WithGroupName("tally_relay_consumer"),
	)
	if err != nil {
		return fmt.Errorf("创建RocketMQ消费者失败: %w", err)
	}

	err = c.Subscribe(TopicTallyEvents, consumer.MessageSelector{},
		func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
			for _, msg := range msgs {
				var evt TallyEvent
				if err := json.Unmarshal(msg.Body, &evt); err != nil {
					log.Printf("反序列化事件失败: %v", err)
					continue
				}

				// 幂等性检查，重投的消息只处理一次
				if alreadyProcessed(evt.MessageID) {
					log.Printf("事件已处理过，跳过: %s", evt.MessageID)
					continue
				}

				h(evt)
			}
			return consumer.ConsumeSuccess, nil
		})
	if err != nil {
		return fmt.Errorf("订阅主题失败: %w", err)
	}

	if err := c.Start(); err != nil {
		return fmt.Errorf("启动RocketMQ消费者失败: %w", err)
	}

	rocketConsumer = c
	log.Println("RocketMQ消费者启动成功")
	return nil
}

// alreadyProcessed 记录并判断消息是否已消费过
func alreadyProcessed(messageID string) bool {
	if messageID == "" {
		return false
	}

	processedMessagesM.Lock()
	defer processedMessagesM.Unlock()

	if processedMessages[messageID] {
		return true
	}
	processedMessages[messageID] = true

	// 防止映射无限增长
	if len(processedMessages) > 10000 {
		processedMessages = make(map[string]bool)
		processedMessages[messageID] = true
	}
	return false
}

// shutdownRocketMQ 关闭RocketMQ连接
func shutdownRocketMQ() {
	if rocketConsumer != nil {
		if err := rocketConsumer.Shutdown(); err != nil {
			log.Printf("关闭RocketMQ消费者失败: %v", err)
		}
	}
	if rocketProducer != nil {
		if err := rocketProducer.Shutdown(); err != nil {
			log.Printf("关闭RocketMQ生产者失败: %v", err)
		}
	}
	rocketReady = false
}
