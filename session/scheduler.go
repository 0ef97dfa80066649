package session

import (
	"log"
	"time"

	"timed-voting-backend/models"
)

// purgeFactor 关闭后的保留窗口相对投票时长的倍数
const purgeFactor = 2

// PurgeDelay returns how long a finished session is kept resolvable before
// eviction.
func PurgeDelay(votingTime time.Duration) time.Duration {
	return purgeFactor * votingTime
}

// StartLifecycle spawns the session's single long-lived timer task: sleep the
// voting window, close the poll, sleep the purge delay, evict. The task
// re-checks registry membership before each effect so an already-removed
// session never crashes it, and a panic is contained to this one session.
//
// finish persists the Finished label; pass nil to skip durable updates
// (tests do).
func (r *Registry) StartLifecycle(externalID string, finish func(pollID uint) error) {
	view, ok := r.Get(externalID)
	if !ok {
		log.Printf("生命周期任务未启动: 会话 %s 不存在", externalID)
		return
	}
	go r.runLifecycle(view.ExternalID, view.PollID, view.VotingTime, finish)
}

func (r *Registry) runLifecycle(externalID string, pollID uint, votingTime time.Duration, finish func(pollID uint) error) {
	defer func() {
		// 单个会话的定时任务失败不能影响其他会话或整个进程
		if rec := recover(); rec != nil {
			log.Printf("会话 %s 的生命周期任务异常终止: %v", externalID, rec)
			r.Remove(externalID)
		}
	}()

	// 阶段一：投票窗口
	time.Sleep(votingTime)

	if _, ok := r.Get(externalID); !ok {
		// 会话已被移除，按单一所有权设计不应发生，容忍并退出
		log.Printf("会话 %s 在关闭前已不存在，生命周期任务退出", externalID)
		return
	}

	r.MutateState(externalID, models.PollFinished)
	log.Printf("投票已关闭: session=%s, poll=%d", externalID, pollID)

	if finish != nil {
		if err := finish(pollID); err != nil {
			// 持久化状态标签只用于重启后的展示，失败不阻止淘汰
			log.Printf("持久化投票关闭状态失败: poll=%d, 错误: %v", pollID, err)
		}
	}

	// 阶段二：保留窗口，关闭后仍可读取结果
	time.Sleep(PurgeDelay(votingTime))

	r.Remove(externalID)
	log.Printf("会话已淘汰: session=%s, poll=%d", externalID, pollID)
}
