package domain

import (
	"time"
)

type (
	ShowID        string
	SetlistID     string
	SetlistSongID string
	VoteID        string
	UserID        string
)

type Show struct {
	ID             ShowID        `gorm:"column:id;type:char(26);primaryKey"`
	SetlistID      SetlistID     `gorm:"column:setlist_id;type:char(26);not null;uniqueIndex"`
	Artist         string        `gorm:"column:artist;type:text;not null"`
	Venue          string        `gorm:"column:venue;type:text"`
	Date           time.Time     `gorm:"column:date;not null"`
	VotingOpensAt  time.Time     `gorm:"column:voting_opens_at;not null"`
	VotingClosesAt time.Time     `gorm:"column:voting_closes_at;not null"`
	Active         bool          `gorm:"column:active;not null;default:true"`
	Songs          []SetlistSong `gorm:"foreignKey:ShowID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

type SetlistSong struct {
	ID        SetlistSongID `gorm:"column:id;type:char(26);primaryKey"`
	SetlistID SetlistID     `gorm:"column:setlist_id;type:char(26);not null;index"`
	ShowID    ShowID        `gorm:"column:show_id;type:char(26);not null;index"`
	SongRef   string        `gorm:"column:song_ref;type:text"`
	Title     string        `gorm:"column:title;type:text;not null"`
	Position  int           `gorm:"column:position;not null"`
	VoteCount int64         `gorm:"column:vote_count;not null;default:0"`
	CreatedAt time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

// Vote rows are append-only: created by SubmitVote, removed only by
// RetractVote. Day carries the UTC day key of CreatedAt so retraction can
// decrement the counter the vote originally consumed.
type Vote struct {
	ID            VoteID        `gorm:"column:id;type:char(26);primaryKey"`
	UserID        UserID        `gorm:"column:user_id;type:text;not null;uniqueIndex:idx_votes_user_song,priority:1"`
	SetlistSongID SetlistSongID `gorm:"column:setlist_song_id;type:char(26);not null;uniqueIndex:idx_votes_user_song,priority:2;index:idx_votes_song"`
	ShowID        ShowID        `gorm:"column:show_id;type:char(26);not null;index:idx_votes_show"`
	Day           string        `gorm:"column:day;type:char(10);not null;index:idx_votes_day"`
	CreatedAt     time.Time     `gorm:"column:created_at;autoCreateTime"`
}

type ShowVoteCounter struct {
	UserID    UserID    `gorm:"column:user_id;type:text;primaryKey"`
	ShowID    ShowID    `gorm:"column:show_id;type:char(26);primaryKey"`
	VotesUsed int       `gorm:"column:votes_used;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type DailyVoteCounter struct {
	UserID    UserID    `gorm:"column:user_id;type:text;primaryKey"`
	Day       string    `gorm:"column:day;type:char(10);primaryKey"`
	VotesUsed int       `gorm:"column:votes_used;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// VoteLimits carries the configured caps through the admission path so
// tests can tune them without touching package state.
type VoteLimits struct {
	DailyVotes int
	ShowVotes  int
}

// VoteSnapshot is what the validator sees: counters read immediately
// before the decision. The guarded writes in the tally store remain the
// final authority for races this read cannot observe.
type VoteSnapshot struct {
	AlreadyVoted   bool
	DailyVotesUsed int
	ShowVotesUsed  int
}

// AppliedVote reports post-transaction state, read back inside the same
// transaction that committed the vote. Never derived from a prior
// snapshot plus one.
type AppliedVote struct {
	Vote           Vote
	NewVoteCount   int64
	DailyVotesUsed int
	ShowVotesUsed  int
}

// RetractedVote mirrors AppliedVote for the inverse operation.
type RetractedVote struct {
	Vote           Vote
	NewVoteCount   int64
	DailyVotesUsed int
	ShowVotesUsed  int
}

// VoteUpdate is the realtime fan-out payload for subscribers of a show.
type VoteUpdate struct {
	SetlistSongID SetlistSongID `json:"setlist_song_id"`
	NewVoteCount  int64         `json:"new_vote_count"`
}

// ShowScore is a trending entry: a show ranked by time-decayed popularity.
type ShowScore struct {
	ShowID ShowID
	Score  float64
}

// TallyRepairs summarizes what a reconciliation pass had to fix.
type TallyRepairs struct {
	SongTallies  int
	ShowCounters int
}

func (Show) TableName() string { return "shows" }

func (SetlistSong) TableName() string { return "setlist_songs" }

func (Vote) TableName() string { return "votes" }

func (ShowVoteCounter) TableName() string { return "show_vote_counters" }

func (DailyVoteCounter) TableName() string { return "daily_vote_counters" }
