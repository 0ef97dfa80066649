package models

import (
	"time"
)

// PollState is the lifecycle label of a poll. It is stored redundantly in the
// database so poll reads can still show something sensible after a restart;
// the in-memory session is the authority while the process is alive.
type PollState string

const (
	PollStarted  PollState = "Started"
	PollFinished PollState = "Finished"
)

// User represents a registered voter. Registration is password-less,
// the username is the whole identity.
type User struct {
	Username string `gorm:"primaryKey;size:50" json:"username"`
}

// Poll represents a timed voting poll
type Poll struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	Title          string       `gorm:"size:50;not null" json:"title"`
	Username       string       `gorm:"size:50;not null;index" json:"username"` // 创建者用户名
	VotingTimeMins uint         `gorm:"not null" json:"voting_time"`
	IsMulti        bool         `gorm:"not null;default:false" json:"is_multi"`
	State          PollState    `gorm:"size:16;not null;default:Started" json:"state"`
	CreatedAt      time.Time    `json:"created_at"`
	Options        []PollOption `gorm:"foreignKey:PollID" json:"options"`
}

// PollOption represents a single option within a poll
type PollOption struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	PollID uint   `gorm:"not null;index" json:"poll_id"`
	Title  string `gorm:"size:255;not null" json:"title"`
}

// Vote is one user's selection of one option. The vote ledger keeps at most
// one row per (username, option) and, for single-select polls, at most one
// row per (username, poll); the unique index only backs up the first rule.
type Vote struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"size:50;not null;index;uniqueIndex:idx_votes_user_option" json:"username"`
	OptionID uint   `gorm:"not null;index;uniqueIndex:idx_votes_user_option" json:"option_id"`
}

// OptionTally is the per-option vote count used in read responses and
// live-update snapshots. Counts are always derived from vote rows.
type OptionTally struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Votes int64  `json:"votes"`
}
