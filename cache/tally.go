package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"timed-voting-backend/models"
)

// tallyKey 投票结果缓存键
func tallyKey(pollID uint) string {
	return fmt.Sprintf("poll:%d:tally", pollID)
}

// GetTally returns the cached per-option tally for a poll, or ErrCacheMiss
// when redis is down or the key is absent.
func GetTally(ctx context.Context, pollID uint) ([]models.OptionTally, error) {
	client, err := GetClient()
	if err != nil {
		return nil, ErrCacheMiss
	}

	data, err := client.Get(ctx, tallyKey(pollID)).Bytes()
	if err != nil {
		return nil, ErrCacheMiss
	}

	var tally []models.OptionTally
	if err := json.Unmarshal(data, &tally); err != nil {
		// 缓存内容损坏按未命中处理，下一次写入会覆盖
		log.Printf("反序列化缓存的票数失败: poll=%d, 错误: %v", pollID, err)
		return nil, ErrCacheMiss
	}
	return tally, nil
}

// SetTally 写入投票结果缓存，失败只记录日志
func SetTally(ctx context.Context, pollID uint, tally []models.OptionTally) {
	client, err := GetClient()
	if err != nil {
		return
	}

	data, err := json.Marshal(tally)
	if err != nil {
		log.Printf("序列化票数失败: poll=%d, 错误: %v", pollID, err)
		return
	}

	if err := client.Set(ctx, tallyKey(pollID), data, defaultExpiration).Err(); err != nil {
		log.Printf("写入票数缓存失败: poll=%d, 错误: %v", pollID, err)
	}
}

// InvalidateTally removes the cached tally after a vote update so the next
// read recomputes from vote rows.
func InvalidateTally(ctx context.Context, pollID uint) {
	client, err := GetClient()
	if err != nil {
		return
	}
	if err := client.Del(ctx, tallyKey(pollID)).Err(); err != nil {
		log.Printf("删除票数缓存失败: poll=%d, 错误: %v", pollID, err)
	}
}
