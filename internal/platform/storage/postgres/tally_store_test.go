package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/setvote/setvote/internal/domain"
	"github.com/setvote/setvote/internal/platform/ids"
)

// newTestDB opens an isolated in-memory database with the same error
// translation the production connection uses, so unique violations map
// to gorm.ErrDuplicatedKey on both drivers.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&domain.Show{},
		&domain.SetlistSong{},
		&domain.Vote{},
		&domain.ShowVoteCounter{},
		&domain.DailyVoteCounter{},
	))

	return db
}

type storeFixture struct {
	db    *gorm.DB
	store *TallyStore
	show  domain.Show
	songs []domain.SetlistSong
	idGen *ids.Generator
}

func newStoreFixture(t *testing.T, songCount int) *storeFixture {
	t.Helper()

	db := newTestDB(t)
	idGen := ids.NewGenerator()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	show := domain.Show{
		ID:             domain.ShowID(idGen.New()),
		SetlistID:      domain.SetlistID(idGen.New()),
		Artist:         "The Midnight Keys",
		Venue:          "Paramount Theatre",
		Date:           now.AddDate(0, 0, 7),
		VotingOpensAt:  now,
		VotingClosesAt: now.AddDate(0, 0, 7),
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, NewShowRepository(db).Create(context.Background(), show))

	songs := make([]domain.SetlistSong, songCount)
	for i := range songs {
		songs[i] = domain.SetlistSong{
			ID:        domain.SetlistSongID(idGen.New()),
			SetlistID: show.SetlistID,
			ShowID:    show.ID,
			Title:     fmt.Sprintf("Song %d", i+1),
			Position:  i + 1,
		}
	}
	require.NoError(t, NewSetlistSongRepository(db).BulkCreate(context.Background(), show.ID, songs))

	return &storeFixture{
		db:    db,
		store: NewTallyStore(db),
		show:  show,
		songs: songs,
		idGen: idGen,
	}
}

func (f *storeFixture) vote(userID domain.UserID, songID domain.SetlistSongID, day string) domain.Vote {
	return domain.Vote{
		ID:            domain.VoteID(f.idGen.New()),
		UserID:        userID,
		SetlistSongID: songID,
		ShowID:        f.show.ID,
		Day:           day,
		CreatedAt:     time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
	}
}

var defaultLimits = domain.VoteLimits{DailyVotes: 50, ShowVotes: 10}

func TestTallyStoreApplyVote(t *testing.T) {
	f := newStoreFixture(t, 2)
	ctx := context.Background()

	applied, err := f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[0].ID, "2025-06-01"), defaultLimits)
	require.NoError(t, err)

	assert.Equal(t, int64(1), applied.NewVoteCount)
	assert.Equal(t, 1, applied.DailyVotesUsed)
	assert.Equal(t, 1, applied.ShowVotesUsed)

	// The denormalized tally on the song row moved with the vote.
	song, err := NewSetlistSongRepository(f.db).FindByID(ctx, f.songs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), song.VoteCount)

	// A second vote for a different song shares the counters.
	applied, err = f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[1].ID, "2025-06-01"), defaultLimits)
	require.NoError(t, err)
	assert.Equal(t, int64(1), applied.NewVoteCount)
	assert.Equal(t, 2, applied.DailyVotesUsed)
	assert.Equal(t, 2, applied.ShowVotesUsed)
}

func TestTallyStoreRejectsDuplicate(t *testing.T) {
	f := newStoreFixture(t, 1)
	ctx := context.Background()

	_, err := f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[0].ID, "2025-06-01"), defaultLimits)
	require.NoError(t, err)

	_, err = f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[0].ID, "2025-06-01"), defaultLimits)
	require.ErrorIs(t, err, domain.ErrDuplicateVote)

	// The rejected transaction must leave no trace in any counter.
	snapshot, err := f.store.ReadSnapshot(ctx, "fan-1", f.songs[0].ID, f.show.ID, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.ShowVotesUsed)
	assert.Equal(t, 1, snapshot.DailyVotesUsed)

	song, err := NewSetlistSongRepository(f.db).FindByID(ctx, f.songs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), song.VoteCount)
}

func TestTallyStoreRejectsSongFromOtherShow(t *testing.T) {
	f := newStoreFixture(t, 1)
	ctx := context.Background()

	vote := f.vote("fan-1", f.songs[0].ID, "2025-06-01")
	vote.ShowID = domain.ShowID(f.idGen.New())

	_, err := f.store.ApplyVote(ctx, vote, defaultLimits)
	require.ErrorIs(t, err, domain.ErrSongShowMismatch)

	// Rollback: the vote row the transaction inserted must be gone.
	var count int64
	require.NoError(t, f.db.Model(&voteModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTallyStoreEnforcesShowLimit(t *testing.T) {
	f := newStoreFixture(t, 4)
	ctx := context.Background()
	limits := domain.VoteLimits{DailyVotes: 50, ShowVotes: 3}

	for i := 0; i < 3; i++ {
		_, err := f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[i].ID, "2025-06-01"), limits)
		require.NoError(t, err)
	}

	_, err := f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[3].ID, "2025-06-01"), limits)
	require.ErrorIs(t, err, domain.ErrShowLimitExceeded)

	// Counter stays at the cap and the over-limit vote row rolled back.
	snapshot, err := f.store.ReadSnapshot(ctx, "fan-1", f.songs[3].ID, f.show.ID, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.ShowVotesUsed)
	assert.False(t, snapshot.AlreadyVoted)
}

func TestTallyStoreEnforcesDailyLimit(t *testing.T) {
	f := newStoreFixture(t, 3)
	ctx := context.Background()
	limits := domain.VoteLimits{DailyVotes: 2, ShowVotes: 10}

	for i := 0; i < 2; i++ {
		_, err := f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[i].ID, "2025-06-01"), limits)
		require.NoError(t, err)
	}

	_, err := f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[2].ID, "2025-06-01"), limits)
	require.ErrorIs(t, err, domain.ErrDailyLimitExceeded)

	// A fresh day key starts a fresh counter.
	applied, err := f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[2].ID, "2025-06-02"), limits)
	require.NoError(t, err)
	assert.Equal(t, 1, applied.DailyVotesUsed)
}

func TestTallyStoreRetractRestoresCounters(t *testing.T) {
	f := newStoreFixture(t, 1)
	ctx := context.Background()

	vote := f.vote("fan-1", f.songs[0].ID, "2025-06-01")
	_, err := f.store.ApplyVote(ctx, vote, defaultLimits)
	require.NoError(t, err)

	retracted, err := f.store.RetractVote(ctx, "fan-1", vote.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), retracted.NewVoteCount)
	assert.Equal(t, 0, retracted.DailyVotesUsed)
	assert.Equal(t, 0, retracted.ShowVotesUsed)

	// The slot is free again: the same user can vote for the same song.
	_, err = f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[0].ID, "2025-06-01"), defaultLimits)
	require.NoError(t, err)
}

func TestTallyStoreRetractUnknownVote(t *testing.T) {
	f := newStoreFixture(t, 1)

	_, err := f.store.RetractVote(context.Background(), "fan-1", domain.VoteID(f.idGen.New()))
	require.ErrorIs(t, err, domain.ErrVoteNotFound)
}

func TestTallyStoreRetractForeignVote(t *testing.T) {
	f := newStoreFixture(t, 1)
	ctx := context.Background()

	vote := f.vote("fan-1", f.songs[0].ID, "2025-06-01")
	_, err := f.store.ApplyVote(ctx, vote, defaultLimits)
	require.NoError(t, err)

	_, err = f.store.RetractVote(ctx, "fan-2", vote.ID)
	require.ErrorIs(t, err, domain.ErrVoteNotFound)

	// The foreign attempt must not touch the vote or its counters.
	snapshot, err := f.store.ReadSnapshot(ctx, "fan-1", f.songs[0].ID, f.show.ID, "2025-06-01")
	require.NoError(t, err)
	assert.True(t, snapshot.AlreadyVoted)
	assert.Equal(t, 1, snapshot.ShowVotesUsed)
}

func TestTallyStoreSnapshot(t *testing.T) {
	f := newStoreFixture(t, 2)
	ctx := context.Background()

	snapshot, err := f.store.ReadSnapshot(ctx, "fan-1", f.songs[0].ID, f.show.ID, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, domain.VoteSnapshot{}, snapshot)

	_, err = f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[0].ID, "2025-06-01"), defaultLimits)
	require.NoError(t, err)

	snapshot, err = f.store.ReadSnapshot(ctx, "fan-1", f.songs[0].ID, f.show.ID, "2025-06-01")
	require.NoError(t, err)
	assert.True(t, snapshot.AlreadyVoted)
	assert.Equal(t, 1, snapshot.DailyVotesUsed)
	assert.Equal(t, 1, snapshot.ShowVotesUsed)

	// Another user and another day both see fresh counters.
	snapshot, err = f.store.ReadSnapshot(ctx, "fan-2", f.songs[0].ID, f.show.ID, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, domain.VoteSnapshot{}, snapshot)

	snapshot, err = f.store.ReadSnapshot(ctx, "fan-1", f.songs[1].ID, f.show.ID, "2025-06-02")
	require.NoError(t, err)
	assert.False(t, snapshot.AlreadyVoted)
	assert.Equal(t, 0, snapshot.DailyVotesUsed)
}

func TestReconcileShowRepairsDrift(t *testing.T) {
	f := newStoreFixture(t, 2)
	ctx := context.Background()

	for _, user := range []domain.UserID{"fan-1", "fan-2", "fan-3"} {
		_, err := f.store.ApplyVote(ctx, f.vote(user, f.songs[0].ID, "2025-06-01"), defaultLimits)
		require.NoError(t, err)
	}
	_, err := f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[1].ID, "2025-06-01"), defaultLimits)
	require.NoError(t, err)

	// Corrupt the denormalized state behind the store's back.
	require.NoError(t, f.db.Model(&songModel{}).
		Where("id = ?", f.songs[0].ID).
		UpdateColumn("vote_count", 99).Error)
	require.NoError(t, f.db.Model(&showCounterModel{}).
		Where("user_id = ?", "fan-2").
		UpdateColumn("votes_used", 7).Error)
	require.NoError(t, f.db.Delete(&showCounterModel{}, "user_id = ?", "fan-3").Error)

	repairs, err := f.store.ReconcileShow(ctx, f.show.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, repairs.SongTallies)
	assert.Equal(t, 2, repairs.ShowCounters)

	song, err := NewSetlistSongRepository(f.db).FindByID(ctx, f.songs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), song.VoteCount)

	for _, user := range []domain.UserID{"fan-2", "fan-3"} {
		snapshot, err := f.store.ReadSnapshot(ctx, user, f.songs[0].ID, f.show.ID, "2025-06-01")
		require.NoError(t, err)
		assert.Equal(t, 1, snapshot.ShowVotesUsed, "user %s", user)
	}

	// A clean pass reports nothing to fix.
	repairs, err = f.store.ReconcileShow(ctx, f.show.ID)
	require.NoError(t, err)
	assert.Zero(t, repairs.SongTallies)
	assert.Zero(t, repairs.ShowCounters)
}

func TestVoteCountsByDay(t *testing.T) {
	f := newStoreFixture(t, 3)
	ctx := context.Background()

	days := []string{"2025-06-01", "2025-06-01", "2025-06-03"}
	for i, day := range days {
		_, err := f.store.ApplyVote(ctx, f.vote("fan-1", f.songs[i].ID, day), defaultLimits)
		require.NoError(t, err)
	}

	counts, err := f.store.VoteCountsByDay(ctx, f.show.ID, "2025-05-20")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"2025-06-01": 2, "2025-06-03": 1}, counts)

	// The window lower bound excludes older days.
	counts, err = f.store.VoteCountsByDay(ctx, f.show.ID, "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"2025-06-03": 1}, counts)
}
