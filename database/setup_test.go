package database

import (
	"log"
	"testing"

	"timed-voting-backend/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB wires an in-memory SQLite database into the package-level DB.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	// 内存SQLite串行化访问，避免并发事务互相锁表
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to access underlying sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.User{}, &models.Poll{}, &models.PollOption{}, &models.Vote{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	DB = db
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// seedUser 注册一个测试用户
func seedUser(t *testing.T, username string) {
	t.Helper()
	if _, err := CreateUser(username); err != nil {
		t.Fatalf("failed to seed user %s: %v", username, err)
	}
}

// seedPoll 创建一个带选项的测试投票，返回投票ID与选项ID列表
func seedPoll(t *testing.T, username string, isMulti bool, optionTitles ...string) (uint, []uint) {
	t.Helper()

	input := NewPoll{
		Title:          "Test Poll",
		Username:       username,
		VotingTimeMins: 10,
		IsMulti:        isMulti,
	}
	for _, title := range optionTitles {
		input.Options = append(input.Options, NewOption{Title: title})
	}

	pollID, err := InsertPoll(input)
	if err != nil {
		t.Fatalf("failed to seed poll: %v", err)
	}

	var options []models.PollOption
	if err := DB.Where("poll_id = ?", pollID).Order("id").Find(&options).Error; err != nil {
		t.Fatalf("failed to load seeded options: %v", err)
	}
	ids := make([]uint, len(options))
	for i, opt := range options {
		ids[i] = opt.ID
	}
	return pollID, ids
}

// voteCounts 把票数查询结果转成选项ID到票数的映射，便于断言
func voteCounts(t *testing.T, pollID uint) map[uint]int64 {
	t.Helper()
	tally, err := GetTally(pollID)
	if err != nil {
		t.Fatalf("failed to read tally: %v", err)
	}
	counts := make(map[uint]int64, len(tally))
	for _, entry := range tally {
		counts[entry.ID] = entry.Votes
	}
	return counts
}
