// Package trending computes time-decayed popularity scores for shows
// from committed votes and recorded page views.
package trending

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/setvote/setvote/internal/domain"
	"github.com/setvote/setvote/internal/platform/clock"
)

var ErrShowNotFound = errors.New("show not found")

// Params tunes the decay curve. Votes count fully, views are weighted
// down, both decay with the same half-life.
type Params struct {
	HalfLifeDays float64
	ViewWeight   float64
	WindowDays   int
}

func DefaultParams() Params {
	return Params{HalfLifeDays: 3, ViewWeight: 0.1, WindowDays: 14}
}

type Service struct {
	shows  domain.ShowRepository
	stats  domain.VoteStats
	views  domain.ViewCounter
	store  domain.TrendingStore
	clock  domain.Clock
	params Params
}

func NewService(
	shows domain.ShowRepository,
	stats domain.VoteStats,
	views domain.ViewCounter,
	store domain.TrendingStore,
	clk domain.Clock,
	params Params,
) *Service {
	if params.HalfLifeDays <= 0 {
		params.HalfLifeDays = DefaultParams().HalfLifeDays
	}
	if params.WindowDays <= 0 {
		params.WindowDays = DefaultParams().WindowDays
	}
	return &Service{
		shows:  shows,
		stats:  stats,
		views:  views,
		store:  store,
		clock:  clk,
		params: params,
	}
}

// RecordView registers one page view as a trending signal. Views are
// deliberately not validated against vote limits; they only feed ranking.
func (s *Service) RecordView(ctx context.Context, showID domain.ShowID) error {
	if _, err := s.shows.FindByID(ctx, showID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrShowNotFound
		}
		return err
	}
	day := clock.DayKey(s.clock.Now())
	_, err := s.views.RecordView(ctx, showID, day)
	return err
}

func (s *Service) Top(ctx context.Context, n int) ([]domain.ShowScore, error) {
	return s.store.Top(ctx, n)
}

// Refresh recomputes scores for every open show from the vote table and
// the view counters, then swaps the ranking in one shot.
func (s *Service) Refresh(ctx context.Context) error {
	now := s.clock.Now()
	shows, err := s.shows.ListOpen(ctx, now)
	if err != nil {
		return err
	}

	days := s.windowDays(now)
	scores := make([]domain.ShowScore, 0, len(shows))
	for _, show := range shows {
		votes, err := s.stats.VoteCountsByDay(ctx, show.ID, days[0])
		if err != nil {
			return err
		}
		views, err := s.views.ViewsByDay(ctx, show.ID, days)
		if err != nil {
			return err
		}

		var score float64
		for _, day := range days {
			weight := s.decay(now, day)
			score += float64(votes[day]) * weight
			score += s.params.ViewWeight * float64(views[day]) * weight
		}
		scores = append(scores, domain.ShowScore{ShowID: show.ID, Score: score})
	}

	return s.store.SetScores(ctx, scores)
}

// windowDays lists the UTC day keys of the trending window, oldest first.
func (s *Service) windowDays(now time.Time) []string {
	days := make([]string, s.params.WindowDays)
	for i := 0; i < s.params.WindowDays; i++ {
		offset := s.params.WindowDays - 1 - i
		days[i] = clock.DayKey(now.AddDate(0, 0, -offset))
	}
	return days
}

func (s *Service) decay(now time.Time, day string) float64 {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return 0
	}
	ageDays := now.Sub(t).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(2, -ageDays/s.params.HalfLifeDays)
}
