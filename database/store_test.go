package database

import (
	"testing"

	"timed-voting-backend/models"

	"github.com/stretchr/testify/assert"
)

func TestCreateUser(t *testing.T) {
	setupTestDB(t)

	alreadyExisted, err := CreateUser("alice")
	assert.NoError(t, err)
	assert.False(t, alreadyExisted)

	exists, err := UserExists("alice")
	assert.NoError(t, err)
	assert.True(t, exists)

	// 重复注册返回已存在标记，不报错
	alreadyExisted, err = CreateUser("alice")
	assert.NoError(t, err)
	assert.True(t, alreadyExisted)

	exists, err = UserExists("nobody")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestInsertPoll(t *testing.T) {
	setupTestDB(t)
	seedUser(t, "alice")

	pollID, err := InsertPoll(NewPoll{
		Title:          "Lunch spot?",
		Username:       "alice",
		VotingTimeMins: 30,
		IsMulti:        false,
		Options: []NewOption{
			{Title: "Noodles"},
			{Title: "Dumplings"},
		},
	})
	assert.NoError(t, err)
	assert.NotZero(t, pollID)

	poll, err := GetPollByID(pollID)
	assert.NoError(t, err)
	assert.Equal(t, "Lunch spot?", poll.Title)
	assert.Equal(t, "alice", poll.Username)
	assert.Equal(t, uint(30), poll.VotingTimeMins)
	assert.False(t, poll.IsMulti)
	assert.Equal(t, models.PollStarted, poll.State)

	tally, err := GetTally(pollID)
	assert.NoError(t, err)
	assert.Len(t, tally, 2)
	assert.Equal(t, "Noodles", tally[0].Title)
	assert.Equal(t, "Dumplings", tally[1].Title)
	assert.Zero(t, tally[0].Votes)
	assert.Zero(t, tally[1].Votes)
}

func TestInsertPollUnknownCreator(t *testing.T) {
	setupTestDB(t)

	_, err := InsertPoll(NewPoll{
		Title:          "Ghost poll",
		Username:       "nobody",
		VotingTimeMins: 10,
		Options:        []NewOption{{Title: "A"}},
	})
	assert.ErrorIs(t, err, ErrNotFound)

	// 事务回滚后不应留下任何投票或选项
	var pollCount, optionCount int64
	DB.Model(&models.Poll{}).Count(&pollCount)
	DB.Model(&models.PollOption{}).Count(&optionCount)
	assert.Zero(t, pollCount)
	assert.Zero(t, optionCount)
}

func TestInsertPollPreselectedOptions(t *testing.T) {
	setupTestDB(t)
	seedUser(t, "alice")

	pollID, err := InsertPoll(NewPoll{
		Title:          "Team outing",
		Username:       "alice",
		VotingTimeMins: 60,
		IsMulti:        true,
		Options: []NewOption{
			{Title: "Hiking", IsSelected: true},
			{Title: "Karaoke"},
			{Title: "Board games", IsSelected: true},
		},
	})
	assert.NoError(t, err)

	// 预选中的选项带上创建者的初始选票
	tally, err := GetTally(pollID)
	assert.NoError(t, err)
	assert.Len(t, tally, 3)
	assert.Equal(t, int64(1), tally[0].Votes) // Hiking
	assert.Equal(t, int64(0), tally[1].Votes) // Karaoke
	assert.Equal(t, int64(1), tally[2].Votes) // Board games
}

func TestGetPollByIDNotFound(t *testing.T) {
	setupTestDB(t)

	_, err := GetPollByID(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchPoll(t *testing.T) {
	setupTestDB(t)
	seedUser(t, "alice")
	pollID, optionIDs := seedPoll(t, "alice", false, "A", "B")

	assert.NoError(t, UpdateVotes(pollID, []uint{optionIDs[0]}, "alice"))

	detail, err := FetchPoll(pollID)
	assert.NoError(t, err)
	assert.Equal(t, pollID, detail.ID)
	assert.Equal(t, "Test Poll", detail.Title)
	assert.Len(t, detail.Options, 2)
	assert.Equal(t, int64(1), detail.Options[0].Votes)
	assert.Equal(t, int64(0), detail.Options[1].Votes)
}

func TestMarkPollFinished(t *testing.T) {
	setupTestDB(t)
	seedUser(t, "alice")
	pollID, _ := seedPoll(t, "alice", false, "A")

	assert.NoError(t, MarkPollFinished(pollID))

	poll, err := GetPollByID(pollID)
	assert.NoError(t, err)
	assert.Equal(t, models.PollFinished, poll.State)

	assert.ErrorIs(t, MarkPollFinished(9999), ErrNotFound)
}
