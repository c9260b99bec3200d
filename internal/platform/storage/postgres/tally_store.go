package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/setvote/setvote/internal/domain"
)

// TallyStore is the sole writer of vote rows and all denormalized
// counters. Every mutation is a relative, guarded UPDATE inside one
// transaction; the guards, not any earlier read, decide admission.
type TallyStore struct {
	db *gorm.DB
}

func NewTallyStore(db *gorm.DB) *TallyStore {
	return &TallyStore{db: db}
}

type voteModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	UserID        string    `gorm:"column:user_id"`
	SetlistSongID string    `gorm:"column:setlist_song_id"`
	ShowID        string    `gorm:"column:show_id"`
	Day           string    `gorm:"column:day"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (voteModel) TableName() string {
	return "votes"
}

func (m voteModel) toDomain() domain.Vote {
	return domain.Vote{
		ID:            domain.VoteID(m.ID),
		UserID:        domain.UserID(m.UserID),
		SetlistSongID: domain.SetlistSongID(m.SetlistSongID),
		ShowID:        domain.ShowID(m.ShowID),
		Day:           m.Day,
		CreatedAt:     m.CreatedAt,
	}
}

func fromDomainVote(v domain.Vote) voteModel {
	return voteModel{
		ID:            string(v.ID),
		UserID:        string(v.UserID),
		SetlistSongID: string(v.SetlistSongID),
		ShowID:        string(v.ShowID),
		Day:           v.Day,
		CreatedAt:     v.CreatedAt,
	}
}

type showCounterModel struct {
	UserID    string `gorm:"column:user_id;primaryKey"`
	ShowID    string `gorm:"column:show_id;primaryKey"`
	VotesUsed int    `gorm:"column:votes_used"`
}

func (showCounterModel) TableName() string {
	return "show_vote_counters"
}

type dailyCounterModel struct {
	UserID    string `gorm:"column:user_id;primaryKey"`
	Day       string `gorm:"column:day;primaryKey"`
	VotesUsed int    `gorm:"column:votes_used"`
}

func (dailyCounterModel) TableName() string {
	return "daily_vote_counters"
}

// ReadSnapshot collects the counters the validator needs. The snapshot is
// advisory: concurrent commits may invalidate it, which the guarded
// writes in ApplyVote catch.
func (s *TallyStore) ReadSnapshot(ctx context.Context, userID domain.UserID, songID domain.SetlistSongID, showID domain.ShowID, day string) (domain.VoteSnapshot, error) {
	var snapshot domain.VoteSnapshot
	db := s.db.WithContext(ctx)

	var voted int64
	if err := db.Model(&voteModel{}).
		Where("user_id = ? AND setlist_song_id = ?", userID, songID).
		Count(&voted).Error; err != nil {
		return domain.VoteSnapshot{}, s.classify(err, "snapshot votes")
	}
	snapshot.AlreadyVoted = voted > 0

	var showCounter showCounterModel
	err := db.First(&showCounter, "user_id = ? AND show_id = ?", userID, showID).Error
	switch {
	case err == nil:
		snapshot.ShowVotesUsed = showCounter.VotesUsed
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No counter row yet: zero consumed.
	default:
		return domain.VoteSnapshot{}, s.classify(err, "snapshot show counter")
	}

	var dailyCounter dailyCounterModel
	err = db.First(&dailyCounter, "user_id = ? AND day = ?", userID, day).Error
	switch {
	case err == nil:
		snapshot.DailyVotesUsed = dailyCounter.VotesUsed
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Day rollover or first vote: fresh counter.
	default:
		return domain.VoteSnapshot{}, s.classify(err, "snapshot daily counter")
	}

	return snapshot, nil
}

// ApplyVote commits a vote and every counter it consumes in one
// transaction. A zero-row guarded update means a cap was hit by a
// concurrent writer; the whole transaction rolls back.
func (s *TallyStore) ApplyVote(ctx context.Context, vote domain.Vote, limits domain.VoteLimits) (domain.AppliedVote, error) {
	var applied domain.AppliedVote

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := fromDomainVote(vote)
		if err := tx.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrDuplicateVote
			}
			return s.classify(err, "insert vote")
		}

		// The show match in the WHERE clause doubles as the integrity
		// check that the song belongs to the named show.
		res := tx.Model(&songModel{}).
			Where("id = ? AND show_id = ?", vote.SetlistSongID, vote.ShowID).
			UpdateColumn("vote_count", gorm.Expr("vote_count + 1"))
		if res.Error != nil {
			return s.classify(res.Error, "increment song tally")
		}
		if res.RowsAffected == 0 {
			return domain.ErrSongShowMismatch
		}

		if err := s.consumeShowSlot(tx, vote, limits.ShowVotes); err != nil {
			return err
		}
		if err := s.consumeDailySlot(tx, vote, limits.DailyVotes); err != nil {
			return err
		}

		var err error
		applied, err = s.readApplied(tx, vote)
		return err
	})
	if err != nil {
		return domain.AppliedVote{}, err
	}

	return applied, nil
}

func (s *TallyStore) consumeShowSlot(tx *gorm.DB, vote domain.Vote, limit int) error {
	seed := showCounterModel{UserID: string(vote.UserID), ShowID: string(vote.ShowID)}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return s.classify(err, "seed show counter")
	}

	res := tx.Model(&showCounterModel{}).
		Where("user_id = ? AND show_id = ? AND votes_used < ?", vote.UserID, vote.ShowID, limit).
		UpdateColumn("votes_used", gorm.Expr("votes_used + 1"))
	if res.Error != nil {
		return s.classify(res.Error, "increment show counter")
	}
	if res.RowsAffected == 0 {
		return domain.ErrShowLimitExceeded
	}
	return nil
}

func (s *TallyStore) consumeDailySlot(tx *gorm.DB, vote domain.Vote, limit int) error {
	seed := dailyCounterModel{UserID: string(vote.UserID), Day: vote.Day}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return s.classify(err, "seed daily counter")
	}

	res := tx.Model(&dailyCounterModel{}).
		Where("user_id = ? AND day = ? AND votes_used < ?", vote.UserID, vote.Day, limit).
		UpdateColumn("votes_used", gorm.Expr("votes_used + 1"))
	if res.Error != nil {
		return s.classify(res.Error, "increment daily counter")
	}
	if res.RowsAffected == 0 {
		return domain.ErrDailyLimitExceeded
	}
	return nil
}

func (s *TallyStore) readApplied(tx *gorm.DB, vote domain.Vote) (domain.AppliedVote, error) {
	var song songModel
	if err := tx.First(&song, "id = ?", vote.SetlistSongID).Error; err != nil {
		return domain.AppliedVote{}, s.classify(err, "read back song tally")
	}

	var showCounter showCounterModel
	if err := tx.First(&showCounter, "user_id = ? AND show_id = ?", vote.UserID, vote.ShowID).Error; err != nil {
		return domain.AppliedVote{}, s.classify(err, "read back show counter")
	}

	var dailyCounter dailyCounterModel
	if err := tx.First(&dailyCounter, "user_id = ? AND day = ?", vote.UserID, vote.Day).Error; err != nil {
		return domain.AppliedVote{}, s.classify(err, "read back daily counter")
	}

	return domain.AppliedVote{
		Vote:           vote,
		NewVoteCount:   song.VoteCount,
		DailyVotesUsed: dailyCounter.VotesUsed,
		ShowVotesUsed:  showCounter.VotesUsed,
	}, nil
}

// RetractVote is the mirror transaction: remove the row, walk every
// counter back by one, floored at zero.
func (s *TallyStore) RetractVote(ctx context.Context, userID domain.UserID, voteID domain.VoteID) (domain.RetractedVote, error) {
	var retracted domain.RetractedVote

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model voteModel
		if err := tx.First(&model, "id = ?", voteID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrVoteNotFound
			}
			return s.classify(err, "load vote")
		}
		if model.UserID != string(userID) {
			// Do not reveal whether someone else's vote exists.
			return domain.ErrVoteNotFound
		}

		res := tx.Delete(&voteModel{}, "id = ?", voteID)
		if res.Error != nil {
			return s.classify(res.Error, "delete vote")
		}
		if res.RowsAffected == 0 {
			return domain.ErrVoteNotFound
		}

		if err := tx.Model(&songModel{}).
			Where("id = ? AND vote_count > 0", model.SetlistSongID).
			UpdateColumn("vote_count", gorm.Expr("vote_count - 1")).Error; err != nil {
			return s.classify(err, "decrement song tally")
		}

		if err := tx.Model(&showCounterModel{}).
			Where("user_id = ? AND show_id = ? AND votes_used > 0", model.UserID, model.ShowID).
			UpdateColumn("votes_used", gorm.Expr("votes_used - 1")).Error; err != nil {
			return s.classify(err, "decrement show counter")
		}

		// The daily slot returns to the day the vote was cast on, which
		// may not be today.
		if err := tx.Model(&dailyCounterModel{}).
			Where("user_id = ? AND day = ? AND votes_used > 0", model.UserID, model.Day).
			UpdateColumn("votes_used", gorm.Expr("votes_used - 1")).Error; err != nil {
			return s.classify(err, "decrement daily counter")
		}

		applied, err := s.readApplied(tx, model.toDomain())
		if err != nil {
			return err
		}
		retracted = domain.RetractedVote{
			Vote:           applied.Vote,
			NewVoteCount:   applied.NewVoteCount,
			DailyVotesUsed: applied.DailyVotesUsed,
			ShowVotesUsed:  applied.ShowVotesUsed,
		}
		return nil
	})
	if err != nil {
		return domain.RetractedVote{}, err
	}

	return retracted, nil
}

// classify separates retryable infrastructure failures from terminal
// errors. Serialization failures, deadlocks and dropped connections are
// transient; everything else is not.
func (s *TallyStore) classify(err error, op string) error {
	wrapped := fmt.Errorf("gorm tally: %s: %w", op, err)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "40001" || pgErr.Code == "40P01" || strings.HasPrefix(pgErr.Code, "08") {
			return domain.Transient(wrapped)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(wrapped)
	}

	return wrapped
}

var _ domain.TallyStore = (*TallyStore)(nil)
