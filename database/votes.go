package database

import (
	"errors"
	"fmt"
	"log"

	"timed-voting-backend/models"

	"gorm.io/gorm"
)

// UpdateVotes reconciles a user's selections for a poll: it validates every
// option id against the poll, then in a single transaction deletes the user's
// existing votes across the poll's options and inserts one row per selected
// id. A failure anywhere aborts the transaction, so the caller never observes
// a mix of old and new selections.
//
// Concurrent calls for the same (poll, user) serialize on the transaction;
// last committed wins. Calls for different users only contend on normal
// row locking.
func UpdateVotes(pollID uint, optionIDs []uint, username string) error {
	// 去重，客户端重复提交同一选项不算违规
	unique := make([]uint, 0, len(optionIDs))
	seen := make(map[uint]bool)
	for _, id := range optionIDs {
		if id > 0 && !seen[id] {
			unique = append(unique, id)
			seen[id] = true
		}
	}
	if len(unique) == 0 {
		return &ValidationError{Reason: "at least one valid option id is required"}
	}

	err := DB.Transaction(func(tx *gorm.DB) error {
		var poll models.Poll
		if err := tx.First(&poll, pollID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("获取投票失败: %w", err)
		}

		exists, err := userExistsTx(tx, username)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}

		// 单选投票只允许一个选项
		if !poll.IsMulti && len(unique) > 1 {
			return &ValidationError{Reason: "single choice poll allows only one option"}
		}

		// 校验所有选项都属于该投票，任何一个不属于则整体失败
		var options []models.PollOption
		if err := tx.Where("poll_id = ?", pollID).Find(&options).Error; err != nil {
			return fmt.Errorf("获取选项失败: %w", err)
		}
		valid := make(map[uint]bool, len(options))
		pollOptionIDs := make([]uint, 0, len(options))
		for _, opt := range options {
			valid[opt.ID] = true
			pollOptionIDs = append(pollOptionIDs, opt.ID)
		}
		for _, id := range unique {
			if !valid[id] {
				return &ValidationError{Reason: fmt.Sprintf("option %d does not belong to this poll", id)}
			}
		}

		// 先删后插：清掉该用户在此投票下的全部旧选择
		if err := tx.Where("username = ? AND option_id IN ?", username, pollOptionIDs).
			Delete(&models.Vote{}).Error; err != nil {
			return fmt.Errorf("删除旧投票记录失败: %w", err)
		}

		for _, id := range unique {
			if err := tx.Create(&models.Vote{Username: username, OptionID: id}).Error; err != nil {
				return fmt.Errorf("写入投票记录失败: %w", err)
			}
		}
		return nil
	})

	if err != nil {
		if !errors.Is(err, ErrNotFound) && !IsValidation(err) {
			log.Printf("更新投票失败: poll=%d, username=%s, options=%v, 错误: %v",
				pollID, username, unique, err)
		}
		return err
	}
	return nil
}

// GetTally returns per-option vote counts for a poll, computed from vote rows.
func GetTally(pollID uint) ([]models.OptionTally, error) {
	var tally []models.OptionTally
	err := DB.Raw(`
		SELECT o.id AS id, o.title AS title, COUNT(v.id) AS votes
		FROM poll_options o
		LEFT JOIN votes v ON v.option_id = o.id
		WHERE o.poll_id = ?
		GROUP BY o.id, o.title
		ORDER BY o.id`, pollID).Scan(&tally).Error
	if err != nil {
		return nil, fmt.Errorf("统计票数失败: poll=%d, %w", pollID, err)
	}
	return tally, nil
}

// recordInitialVote 在创建投票时为预先选中的选项写入创建者的初始选票
func recordInitialVote(tx *gorm.DB, optionID uint, username string) error {
	if err := tx.Create(&models.Vote{Username: username, OptionID: optionID}).Error; err != nil {
		return fmt.Errorf("写入初始投票失败: option=%d, %w", optionID, err)
	}
	return nil
}

func userExistsTx(tx *gorm.DB, username string) (bool, error) {
	var count int64
	if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, fmt.Errorf("查询用户失败: %w", err)
	}
	return count > 0, nil
}
