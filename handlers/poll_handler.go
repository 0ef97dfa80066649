package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"time"

	"timed-voting-backend/cache"
	"timed-voting-backend/database"
	"timed-voting-backend/models"
	"timed-voting-backend/mq"
	"timed-voting-backend/session"

	"github.com/gin-gonic/gin"
)

// 全局注册表与消息队列适配器引用，启动时注入
var (
	registry *session.Registry
	relay    *mq.Adapter
)

// InitHandlers wires the session registry and the tally relay into the
// request handlers. Called once from main (and from test setup).
func InitHandlers(r *session.Registry, a *mq.Adapter) {
	registry = r
	relay = a
	log.Println("会话注册表与消息队列适配器已设置到处理程序")
}

// CreatePollInput defines the expected input structure for creating a poll
type CreatePollInput struct {
	Username   string              `json:"username" binding:"required,min=3,max=50"`
	Title      string              `json:"title" binding:"required,min=3,max=50"`
	VotingTime uint                `json:"voting_time" binding:"required,min=1,max=255"` // 单位：分钟
	IsMulti    bool                `json:"is_multi"`
	Options    []CreateOptionInput `json:"options" binding:"required,min=1,dive"`
}

// CreateOptionInput defines the structure for options when creating a poll
type CreateOptionInput struct {
	Title      string `json:"title" binding:"required,min=1,max=255"`
	IsSelected bool   `json:"is_selected"`
}

// CreatePoll persists a new poll, registers its in-memory session and starts
// the lifecycle timer. The response carries the opaque external handle, never
// the durable id.
func CreatePoll(c *gin.Context) {
	var input CreatePollInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exists, err := database.UserExists(input.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify user"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	newPoll := database.NewPoll{
		Title:          input.Title,
		Username:       input.Username,
		VotingTimeMins: input.VotingTime,
		IsMulti:        input.IsMulti,
	}
	for _, opt := range input.Options {
		newPoll.Options = append(newPoll.Options, database.NewOption{
			Title:      opt.Title,
			IsSelected: opt.IsSelected,
		})
	}

	pollID, err := database.InsertPoll(newPoll)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create poll"})
		return
	}

	votingTime := time.Duration(input.VotingTime) * time.Minute
	externalID, err := registry.CreateSession(pollID, votingTime)
	if err != nil {
		// UUID碰撞属于程序缺陷，投票已持久化但不可访问
		log.Printf("注册会话失败: poll=%d, 错误: %v", pollID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register poll session"})
		return
	}
	registry.StartLifecycle(externalID, database.MarkPollFinished)

	log.Printf("投票创建成功: poll=%d, session=%s, 时长=%d分钟", pollID, externalID, input.VotingTime)

	c.JSON(http.StatusCreated, gin.H{
		"poll_id": externalID,
		"state":   models.PollStarted,
	})
}

// GetPoll merges the session's lifecycle state with durable poll data and
// per-option tallies. Evicted and never-existing polls are indistinguishable.
func GetPoll(c *gin.Context) {
	externalID := c.Param("id")

	view, ok := registry.Get(externalID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
		return
	}

	poll, err := database.GetPollByID(view.PollID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// 会话存在但持久化记录消失，属于不一致状态
			log.Printf("会话 %s 对应的投票 %d 不存在", externalID, view.PollID)
			c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve poll"})
		}
		return
	}

	tally, err := tallyForPoll(c.Request.Context(), view.PollID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve poll results"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"poll_id":        externalID,
		"title":          poll.Title,
		"state":          view.State,
		"is_multi":       poll.IsMulti,
		"remaining_time": remainingMinutes(poll.CreatedAt, poll.VotingTimeMins, view.State),
		"created_at":     poll.CreatedAt,
		"options":        tally,
	})
}

// GetPolls lists all live poll sessions, newest first.
func GetPolls(c *gin.Context) {
	views := registry.Views()
	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})

	polls := make([]gin.H, 0, len(views))
	for _, view := range views {
		poll, err := database.GetPollByID(view.PollID)
		if err != nil {
			log.Printf("获取投票 %d 失败: %v", view.PollID, err)
			continue
		}
		polls = append(polls, gin.H{
			"poll_id":        view.ExternalID,
			"title":          poll.Title,
			"state":          view.State,
			"is_multi":       poll.IsMulti,
			"remaining_time": remainingMinutes(poll.CreatedAt, poll.VotingTimeMins, view.State),
			"created_at":     poll.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, polls)
}

// VoteInput defines the expected input structure for submitting a vote
type VoteInput struct {
	Username  string `json:"username" binding:"required,min=3,max=50"`
	OptionIDs []uint `json:"option_ids" binding:"required,min=1"`
}

// SubmitVote records or replaces a user's selections for an open poll, then
// publishes the fresh tally to live subscribers.
func SubmitVote(c *gin.Context) {
	externalID := c.Param("id")

	var input VoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, ok := registry.Get(externalID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
		return
	}
	if view.State != models.PollStarted {
		c.JSON(http.StatusForbidden, gin.H{"error": "Voting on this poll is closed"})
		return
	}

	err := cache.WithVoteLock(view.PollID, input.Username, func() error {
		return database.UpdateVotes(view.PollID, input.OptionIDs, input.Username)
	})
	if err != nil {
		var ve *database.ValidationError
		switch {
		case errors.As(err, &ve):
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Reason})
		case errors.Is(err, database.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, cache.ErrLockNotAcquired):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Vote update busy, please retry"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record vote"})
		}
		return
	}

	// 票数变更后先失效缓存再重建，读路径拿到的始终是落库后的结果
	ctx := c.Request.Context()
	cache.InvalidateTally(ctx, view.PollID)

	tally, err := database.GetTally(view.PollID)
	if err != nil {
		log.Printf("获取更新后的票数失败: poll=%d, 错误: %v", view.PollID, err)
		c.JSON(http.StatusOK, gin.H{"message": "Vote submitted successfully"})
		return
	}
	cache.SetTally(ctx, view.PollID, tally)

	relay.PublishTally(mq.TallyEvent{
		PollID:  externalID,
		Options: tally,
	})

	c.JSON(http.StatusOK, gin.H{
		"message":         "Vote submitted successfully",
		"current_results": tally,
	})
}

// tallyForPoll 读取票数，优先走缓存，未命中时落库并回填
func tallyForPoll(ctx context.Context, pollID uint) ([]models.OptionTally, error) {
	if tally, err := cache.GetTally(ctx, pollID); err == nil {
		return tally, nil
	}

	tally, err := database.GetTally(pollID)
	if err != nil {
		return nil, err
	}
	cache.SetTally(ctx, pollID, tally)
	return tally, nil
}

// remainingMinutes 计算投票的剩余时间（分钟），关闭后恒为0
func remainingMinutes(createdAt time.Time, votingTimeMins uint, state models.PollState) int64 {
	if state != models.PollStarted {
		return 0
	}
	elapsed := int64(time.Since(createdAt) / time.Minute)
	remaining := int64(votingTimeMins) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
