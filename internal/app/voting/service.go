package voting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/setvote/setvote/internal/domain"
	"github.com/setvote/setvote/internal/platform/clock"
	"github.com/setvote/setvote/internal/platform/ids"
	"github.com/setvote/setvote/internal/platform/metrics"
	"github.com/setvote/setvote/internal/platform/retry"
)

var (
	ErrInvalidRequest = errors.New("invalid vote request")
	ErrShowInvalid    = errors.New("invalid show")
	ErrShowNotFound   = errors.New("show not found")
	ErrSongNotFound   = errors.New("setlist song not found")
)

// VoteReceipt is the post-commit result of an admitted vote. All numbers
// come from the transaction that committed the vote, never from a prior
// snapshot plus one.
type VoteReceipt struct {
	VoteID              domain.VoteID
	NewVoteCount        int64
	DailyVotesRemaining int
	ShowVotesRemaining  int
}

// RetractReceipt mirrors VoteReceipt for the inverse operation.
type RetractReceipt struct {
	SetlistSongID       domain.SetlistSongID
	ShowID              domain.ShowID
	NewVoteCount        int64
	DailyVotesRemaining int
	ShowVotesRemaining  int
}

// Service is the vote admission boundary: it reads a snapshot, runs the
// validator as a cheap fast path, and delegates the authoritative
// decision to the tally store's guarded transaction.
type Service struct {
	shows       domain.ShowRepository
	songs       domain.SetlistSongRepository
	tally       domain.TallyStore
	notifier    domain.Notifier
	clock       domain.Clock
	ids         *ids.Generator
	logger      *slog.Logger
	limits      domain.VoteLimits
	maxAttempts int
}

func NewService(
	shows domain.ShowRepository,
	songs domain.SetlistSongRepository,
	tally domain.TallyStore,
	notifier domain.Notifier,
	clk domain.Clock,
	idsGen *ids.Generator,
	logger *slog.Logger,
	limits domain.VoteLimits,
	maxAttempts int,
) *Service {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Service{
		shows:       shows,
		songs:       songs,
		tally:       tally,
		notifier:    notifier,
		clock:       clk,
		ids:         idsGen,
		logger:      logger,
		limits:      limits,
		maxAttempts: maxAttempts,
	}
}

func (s *Service) Limits() domain.VoteLimits {
	return s.limits
}

// SubmitVote admits or rejects one vote. Rejections come back as the
// domain sentinel errors; transient store failures are retried a bounded
// number of times before surfacing.
func (s *Service) SubmitVote(ctx context.Context, req VoteRequest) (VoteReceipt, error) {
	if req.UserID == "" || req.ShowID == "" || req.SetlistSongID == "" {
		return VoteReceipt{}, ErrInvalidRequest
	}

	song, err := s.songs.FindByID(ctx, req.SetlistSongID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return VoteReceipt{}, ErrSongNotFound
		}
		return VoteReceipt{}, err
	}
	if song.ShowID != req.ShowID {
		// Integrity error in the request, not a user-facing rejection.
		s.logger.Error("setlist song does not belong to requested show",
			"song", req.SetlistSongID, "requested_show", req.ShowID, "actual_show", song.ShowID)
		return VoteReceipt{}, domain.ErrSongShowMismatch
	}

	show, err := s.shows.FindByID(ctx, req.ShowID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return VoteReceipt{}, ErrShowNotFound
		}
		return VoteReceipt{}, err
	}

	now := s.clock.Now()
	if !show.Active || now.Before(show.VotingOpensAt) || now.After(show.VotingClosesAt) {
		return VoteReceipt{}, domain.ErrVotingClosed
	}
	day := clock.DayKey(now)

	// Fast path: reject from the snapshot without opening a write
	// transaction. The guarded writes below remain the final authority
	// for anything this read races against.
	snapshot, err := s.tally.ReadSnapshot(ctx, req.UserID, req.SetlistSongID, req.ShowID, day)
	if err != nil {
		return VoteReceipt{}, err
	}
	if err := Validate(req, snapshot, s.limits); err != nil {
		return VoteReceipt{}, err
	}

	vote := domain.Vote{
		ID:            domain.VoteID(s.ids.New()),
		UserID:        req.UserID,
		SetlistSongID: req.SetlistSongID,
		ShowID:        req.ShowID,
		Day:           day,
		CreatedAt:     now,
	}

	start := time.Now()
	applied, err := retry.Do(ctx, s.retryPolicy(), domain.IsTransient, func() (domain.AppliedVote, error) {
		return s.tally.ApplyVote(ctx, vote, s.limits)
	})
	metrics.ObserveApplyDuration(time.Since(start).Seconds())
	if err != nil {
		return VoteReceipt{}, err
	}

	s.notifyVoteUpdate(ctx, applied.Vote.ShowID, domain.VoteUpdate{
		SetlistSongID: applied.Vote.SetlistSongID,
		NewVoteCount:  applied.NewVoteCount,
	})

	return VoteReceipt{
		VoteID:              applied.Vote.ID,
		NewVoteCount:        applied.NewVoteCount,
		DailyVotesRemaining: s.limits.DailyVotes - applied.DailyVotesUsed,
		ShowVotesRemaining:  s.limits.ShowVotes - applied.ShowVotesUsed,
	}, nil
}

// RetractVote removes a user's own vote and walks the counters back.
func (s *Service) RetractVote(ctx context.Context, userID domain.UserID, voteID domain.VoteID) (RetractReceipt, error) {
	if userID == "" || voteID == "" {
		return RetractReceipt{}, ErrInvalidRequest
	}

	retracted, err := retry.Do(ctx, s.retryPolicy(), domain.IsTransient, func() (domain.RetractedVote, error) {
		return s.tally.RetractVote(ctx, userID, voteID)
	})
	if err != nil {
		return RetractReceipt{}, err
	}

	s.notifyVoteUpdate(ctx, retracted.Vote.ShowID, domain.VoteUpdate{
		SetlistSongID: retracted.Vote.SetlistSongID,
		NewVoteCount:  retracted.NewVoteCount,
	})

	return RetractReceipt{
		SetlistSongID:       retracted.Vote.SetlistSongID,
		ShowID:              retracted.Vote.ShowID,
		NewVoteCount:        retracted.NewVoteCount,
		DailyVotesRemaining: s.limits.DailyVotes - retracted.DailyVotesUsed,
		ShowVotesRemaining:  s.limits.ShowVotes - retracted.ShowVotesUsed,
	}, nil
}

// CreateShow validates and creates a show together with its voteable
// setlist in one logical operation.
func (s *Service) CreateShow(ctx context.Context, show domain.Show, songs []domain.SetlistSong) (domain.Show, error) {
	if show.Artist == "" {
		return domain.Show{}, fmt.Errorf("%w: artist required", ErrShowInvalid)
	}
	if len(songs) == 0 {
		return domain.Show{}, fmt.Errorf("%w: at least one candidate song", ErrShowInvalid)
	}

	now := s.clock.Now()

	show.ID = domain.ShowID(s.ids.New())
	show.SetlistID = domain.SetlistID(s.ids.New())
	if show.VotingOpensAt.IsZero() {
		show.VotingOpensAt = now
	}
	if show.VotingClosesAt.IsZero() || show.VotingClosesAt.Before(show.VotingOpensAt) {
		return domain.Show{}, fmt.Errorf("%w: voting window invalid", ErrShowInvalid)
	}
	show.Active = true
	show.CreatedAt = now
	show.UpdatedAt = now

	created := make([]domain.SetlistSong, len(songs))
	for i, song := range songs {
		if song.Title == "" {
			return domain.Show{}, fmt.Errorf("%w: song title required", ErrShowInvalid)
		}
		song.ID = domain.SetlistSongID(s.ids.New())
		song.SetlistID = show.SetlistID
		song.ShowID = show.ID
		if song.Position == 0 {
			song.Position = i + 1
		}
		song.VoteCount = 0
		song.CreatedAt = now
		song.UpdatedAt = now
		created[i] = song
	}

	if err := s.shows.Create(ctx, show); err != nil {
		return domain.Show{}, err
	}
	if err := s.songs.BulkCreate(ctx, show.ID, created); err != nil {
		return domain.Show{}, err
	}

	show.Songs = created
	return show, nil
}

func (s *Service) ListOpenShows(ctx context.Context) ([]domain.Show, error) {
	return s.shows.ListOpen(ctx, s.clock.Now())
}

func (s *Service) GetShow(ctx context.Context, id domain.ShowID) (domain.Show, error) {
	show, err := s.shows.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Show{}, ErrShowNotFound
		}
		return domain.Show{}, err
	}
	return show, nil
}

func (s *Service) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    s.maxAttempts,
		InitialBackoff: 25 * time.Millisecond,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			metrics.IncStoreRetry()
			s.logger.Warn("transient tally store failure, retrying",
				"attempt", attempt, "backoff", backoff.String(), "err", err)
		},
	}
}

// notifyVoteUpdate is fire-and-forget: the subscription channel is not
// durability-critical, readers can always re-fetch committed counts.
func (s *Service) notifyVoteUpdate(ctx context.Context, showID domain.ShowID, update domain.VoteUpdate) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishVoteUpdate(ctx, showID, update); err != nil {
		s.logger.Warn("vote update notification dropped", "show", showID, "err", err)
	}
}
