package database

import (
	"errors"
	"fmt"
	"log"
	"time"

	"timed-voting-backend/models"

	"gorm.io/gorm"
)

// NewPoll is the durable-store input for poll creation.
type NewPoll struct {
	Title          string
	Username       string
	VotingTimeMins uint
	IsMulti        bool
	Options        []NewOption
}

// NewOption describes one option at creation time. An option can be born
// pre-selected by the poll's author, which records an initial vote.
type NewOption struct {
	Title      string
	IsSelected bool
}

// PollDetail is the merged durable view of a poll: metadata plus per-option
// tallies computed from vote rows.
type PollDetail struct {
	ID             uint
	Title          string
	Username       string
	VotingTimeMins uint
	IsMulti        bool
	State          models.PollState
	CreatedAt      time.Time
	Options        []models.OptionTally
}

// CreateUser 注册新用户，返回用户是否已存在
func CreateUser(username string) (alreadyExisted bool, err error) {
	err = DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return fmt.Errorf("查询用户失败: %w", err)
		}
		if count > 0 {
			alreadyExisted = true
			return nil
		}
		if err := tx.Create(&models.User{Username: username}).Error; err != nil {
			return fmt.Errorf("创建用户失败: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Printf("创建用户出错: username=%s, 错误: %v", username, err)
		return false, err
	}
	return alreadyExisted, nil
}

// UserExists 检查用户是否存在
func UserExists(username string) (bool, error) {
	var count int64
	if err := DB.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, fmt.Errorf("查询用户失败: %w", err)
	}
	return count > 0, nil
}

// InsertPoll persists a poll, its options, and the creator's pre-selected
// initial votes in one transaction, returning the durable poll id.
func InsertPoll(input NewPoll) (uint, error) {
	poll := models.Poll{
		Title:          input.Title,
		Username:       input.Username,
		VotingTimeMins: input.VotingTimeMins,
		IsMulti:        input.IsMulti,
		State:          models.PollStarted,
	}

	err := DB.Transaction(func(tx *gorm.DB) error {
		// 创建者必须是已注册用户
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", input.Username).Count(&count).Error; err != nil {
			return fmt.Errorf("查询创建者失败: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}

		if err := tx.Create(&poll).Error; err != nil {
			return fmt.Errorf("创建投票失败: %w", err)
		}

		for _, opt := range input.Options {
			option := models.PollOption{PollID: poll.ID, Title: opt.Title}
			if err := tx.Create(&option).Error; err != nil {
				return fmt.Errorf("创建选项失败: %w", err)
			}
			if opt.IsSelected {
				if err := recordInitialVote(tx, option.ID, input.Username); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("持久化投票失败: title=%s, username=%s, 错误: %v", input.Title, input.Username, err)
		}
		return 0, err
	}
	return poll.ID, nil
}

// GetPollByID 获取投票行本身，不含票数
func GetPollByID(pollID uint) (*models.Poll, error) {
	var poll models.Poll
	if err := DB.First(&poll, pollID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("获取投票失败: poll=%d, %w", pollID, err)
	}
	return &poll, nil
}

// FetchPoll 获取投票的持久化数据及各选项的当前票数
func FetchPoll(pollID uint) (*PollDetail, error) {
	poll, err := GetPollByID(pollID)
	if err != nil {
		return nil, err
	}

	tally, err := GetTally(pollID)
	if err != nil {
		return nil, err
	}

	return &PollDetail{
		ID:             poll.ID,
		Title:          poll.Title,
		Username:       poll.Username,
		VotingTimeMins: poll.VotingTimeMins,
		IsMulti:        poll.IsMulti,
		State:          poll.State,
		CreatedAt:      poll.CreatedAt,
		Options:        tally,
	}, nil
}

// MarkPollFinished persists the Finished lifecycle label. Called by the
// session scheduler when the voting window elapses.
func MarkPollFinished(pollID uint) error {
	result := DB.Model(&models.Poll{}).Where("id = ?", pollID).
		Update("state", models.PollFinished)
	if result.Error != nil {
		return fmt.Errorf("更新投票状态失败: poll=%d, %w", pollID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
