package domain

import (
	"context"
	"time"
)

type ShowRepository interface {
	Create(ctx context.Context, show Show) error
	FindByID(ctx context.Context, id ShowID) (Show, error)
	ListOpen(ctx context.Context, now time.Time) ([]Show, error)
}

type SetlistSongRepository interface {
	BulkCreate(ctx context.Context, showID ShowID, songs []SetlistSong) error
	FindByID(ctx context.Context, id SetlistSongID) (SetlistSong, error)
	ListByShow(ctx context.Context, showID ShowID) ([]SetlistSong, error)
}

// TallyStore owns every durable mutation of vote rows and counters. All
// counter updates are relative and guarded in the store; no other
// component writes these fields.
type TallyStore interface {
	ReadSnapshot(ctx context.Context, userID UserID, songID SetlistSongID, showID ShowID, day string) (VoteSnapshot, error)
	ApplyVote(ctx context.Context, vote Vote, limits VoteLimits) (AppliedVote, error)
	RetractVote(ctx context.Context, userID UserID, voteID VoteID) (RetractedVote, error)
}

// TallyReconciler recomputes denormalized tallies from the vote table and
// repairs drift. It is the one component permitted to write counters
// absolutely, as the designated source of truth.
type TallyReconciler interface {
	ReconcileShow(ctx context.Context, showID ShowID) (TallyRepairs, error)
}

// VoteStats exposes aggregate reads used by trending. Grouping is done on
// the stored UTC day key, never on timestamp truncation.
type VoteStats interface {
	VoteCountsByDay(ctx context.Context, showID ShowID, fromDay string) (map[string]int64, error)
}

// Notifier fans a committed tally change out to realtime subscribers.
// At-most-once: a lost update is tolerable, readers can always re-fetch.
type Notifier interface {
	PublishVoteUpdate(ctx context.Context, showID ShowID, update VoteUpdate) error
}

type ViewCounter interface {
	RecordView(ctx context.Context, showID ShowID, day string) (int64, error)
	ViewsByDay(ctx context.Context, showID ShowID, days []string) (map[string]int64, error)
}

type TrendingStore interface {
	SetScores(ctx context.Context, scores []ShowScore) error
	Top(ctx context.Context, n int) ([]ShowScore, error)
}

type Clock interface {
	Now() time.Time
}
