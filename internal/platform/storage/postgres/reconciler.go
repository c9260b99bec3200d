package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/setvote/setvote/internal/domain"
)

// ReconcileShow recomputes per-song tallies and per-user show counters
// from the vote table and overwrites any drifted denormalized value.
// This is the one place absolute counter writes are allowed: the vote
// table is the source of truth every counter is checked against.
func (s *TallyStore) ReconcileShow(ctx context.Context, showID domain.ShowID) (domain.TallyRepairs, error) {
	var repairs domain.TallyRepairs

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type songCount struct {
			SetlistSongID string
			Total         int64
		}
		var perSong []songCount
		if err := tx.Model(&voteModel{}).
			Select("setlist_song_id as setlist_song_id, COUNT(*) as total").
			Where("show_id = ?", showID).
			Group("setlist_song_id").
			Scan(&perSong).Error; err != nil {
			return s.classify(err, "reconcile: count per song")
		}
		liveSong := make(map[string]int64, len(perSong))
		for _, row := range perSong {
			liveSong[row.SetlistSongID] = row.Total
		}

		var songs []songModel
		if err := tx.Where("show_id = ?", showID).Find(&songs).Error; err != nil {
			return s.classify(err, "reconcile: load songs")
		}
		for _, song := range songs {
			want := liveSong[song.ID]
			if song.VoteCount == want {
				continue
			}
			if err := tx.Model(&songModel{}).
				Where("id = ?", song.ID).
				UpdateColumn("vote_count", want).Error; err != nil {
				return s.classify(err, "reconcile: repair song tally")
			}
			repairs.SongTallies++
		}

		type userCount struct {
			UserID string
			Total  int64
		}
		var perUser []userCount
		if err := tx.Model(&voteModel{}).
			Select("user_id as user_id, COUNT(*) as total").
			Where("show_id = ?", showID).
			Group("user_id").
			Scan(&perUser).Error; err != nil {
			return s.classify(err, "reconcile: count per user")
		}
		liveUser := make(map[string]int64, len(perUser))
		for _, row := range perUser {
			liveUser[row.UserID] = row.Total
		}

		var counters []showCounterModel
		if err := tx.Where("show_id = ?", showID).Find(&counters).Error; err != nil {
			return s.classify(err, "reconcile: load show counters")
		}
		seen := make(map[string]bool, len(counters))
		for _, counter := range counters {
			seen[counter.UserID] = true
			want := int(liveUser[counter.UserID])
			if counter.VotesUsed == want {
				continue
			}
			if err := tx.Model(&showCounterModel{}).
				Where("user_id = ? AND show_id = ?", counter.UserID, showID).
				UpdateColumn("votes_used", want).Error; err != nil {
				return s.classify(err, "reconcile: repair show counter")
			}
			repairs.ShowCounters++
		}
		for userID, total := range liveUser {
			if seen[userID] {
				continue
			}
			// Votes exist without a counter row: recreate it.
			counter := showCounterModel{UserID: userID, ShowID: string(showID), VotesUsed: int(total)}
			if err := tx.Create(&counter).Error; err != nil {
				return s.classify(err, "reconcile: recreate show counter")
			}
			repairs.ShowCounters++
		}

		return nil
	})
	if err != nil {
		return domain.TallyRepairs{}, err
	}

	return repairs, nil
}

// VoteCountsByDay groups committed votes by the stored UTC day key. Used
// by the trending refresh; grouping on the day column keeps the query
// portable across Postgres and the sqlite test driver.
func (s *TallyStore) VoteCountsByDay(ctx context.Context, showID domain.ShowID, fromDay string) (map[string]int64, error) {
	type dayCount struct {
		Day   string
		Total int64
	}
	var rows []dayCount
	if err := s.db.WithContext(ctx).Model(&voteModel{}).
		Select("day as day, COUNT(*) as total").
		Where("show_id = ? AND day >= ?", showID, fromDay).
		Group("day").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm tally: counts by day: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Day] = row.Total
	}
	return counts, nil
}

var (
	_ domain.TallyReconciler = (*TallyStore)(nil)
	_ domain.VoteStats       = (*TallyStore)(nil)
)
