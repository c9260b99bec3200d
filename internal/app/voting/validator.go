// Package voting implements the vote admission engine: the pure
// validation of a proposed vote and the orchestration of snapshot,
// guarded write, retries and fan-out around it.
package voting

import (
	"github.com/setvote/setvote/internal/domain"
)

// VoteRequest identifies one user's attempt to endorse one song in one
// show's setlist.
type VoteRequest struct {
	UserID        domain.UserID
	ShowID        domain.ShowID
	SetlistSongID domain.SetlistSongID
}

// Validate decides admissibility from a snapshot. It is pure: no I/O, no
// hidden state, identical inputs give identical results. The check order
// is fixed so callers surface the first failing reason: duplicate vote,
// then daily cap, then show cap.
func Validate(req VoteRequest, snapshot domain.VoteSnapshot, limits domain.VoteLimits) error {
	if snapshot.AlreadyVoted {
		return domain.ErrDuplicateVote
	}
	if snapshot.DailyVotesUsed >= limits.DailyVotes {
		return domain.ErrDailyLimitExceeded
	}
	if snapshot.ShowVotesUsed >= limits.ShowVotes {
		return domain.ErrShowLimitExceeded
	}
	return nil
}
