package voting

import (
	"errors"
	"testing"

	"github.com/setvote/setvote/internal/domain"
)

func TestValidate(t *testing.T) {
	limits := domain.VoteLimits{DailyVotes: 50, ShowVotes: 10}
	req := VoteRequest{UserID: "user-1", ShowID: "show-1", SetlistSongID: "song-1"}

	tests := []struct {
		name     string
		snapshot domain.VoteSnapshot
		want     error
	}{
		{
			name:     "fresh user admits",
			snapshot: domain.VoteSnapshot{},
			want:     nil,
		},
		{
			name:     "one below both limits admits",
			snapshot: domain.VoteSnapshot{DailyVotesUsed: 49, ShowVotesUsed: 9},
			want:     nil,
		},
		{
			name:     "duplicate rejects",
			snapshot: domain.VoteSnapshot{AlreadyVoted: true},
			want:     domain.ErrDuplicateVote,
		},
		{
			name:     "daily limit rejects",
			snapshot: domain.VoteSnapshot{DailyVotesUsed: 50},
			want:     domain.ErrDailyLimitExceeded,
		},
		{
			name:     "show limit rejects",
			snapshot: domain.VoteSnapshot{ShowVotesUsed: 10},
			want:     domain.ErrShowLimitExceeded,
		},
		{
			name:     "duplicate wins over exhausted limits",
			snapshot: domain.VoteSnapshot{AlreadyVoted: true, DailyVotesUsed: 50, ShowVotesUsed: 10},
			want:     domain.ErrDuplicateVote,
		},
		{
			name:     "daily limit wins over show limit",
			snapshot: domain.VoteSnapshot{DailyVotesUsed: 50, ShowVotesUsed: 10},
			want:     domain.ErrDailyLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(req, tt.snapshot, limits)
			if !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	limits := domain.VoteLimits{DailyVotes: 50, ShowVotes: 10}
	req := VoteRequest{UserID: "user-1", ShowID: "show-1", SetlistSongID: "song-1"}
	snapshot := domain.VoteSnapshot{DailyVotesUsed: 12, ShowVotesUsed: 3}

	first := Validate(req, snapshot, limits)
	for i := 0; i < 100; i++ {
		if got := Validate(req, snapshot, limits); !errors.Is(got, first) && got != first {
			t.Fatalf("result changed between identical calls: %v then %v", first, got)
		}
	}
}
