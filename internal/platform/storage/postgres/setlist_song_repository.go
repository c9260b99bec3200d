package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/setvote/setvote/internal/domain"
)

// SetlistSongRepository persists the voteable candidates of a show.
type SetlistSongRepository struct {
	db *gorm.DB
}

func NewSetlistSongRepository(db *gorm.DB) *SetlistSongRepository {
	return &SetlistSongRepository{db: db}
}

type songModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	SetlistID string    `gorm:"column:setlist_id;index"`
	ShowID    string    `gorm:"column:show_id;index"`
	SongRef   string    `gorm:"column:song_ref"`
	Title     string    `gorm:"column:title"`
	Position  int       `gorm:"column:position"`
	VoteCount int64     `gorm:"column:vote_count"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (songModel) TableName() string {
	return "setlist_songs"
}

func (m songModel) toDomain() domain.SetlistSong {
	return domain.SetlistSong{
		ID:        domain.SetlistSongID(m.ID),
		SetlistID: domain.SetlistID(m.SetlistID),
		ShowID:    domain.ShowID(m.ShowID),
		SongRef:   m.SongRef,
		Title:     m.Title,
		Position:  m.Position,
		VoteCount: m.VoteCount,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func fromDomainSong(s domain.SetlistSong) songModel {
	return songModel{
		ID:        string(s.ID),
		SetlistID: string(s.SetlistID),
		ShowID:    string(s.ShowID),
		SongRef:   s.SongRef,
		Title:     s.Title,
		Position:  s.Position,
		VoteCount: s.VoteCount,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func (r *SetlistSongRepository) BulkCreate(ctx context.Context, showID domain.ShowID, songs []domain.SetlistSong) error {
	if len(songs) == 0 {
		return nil
	}

	// One INSERT for the whole setlist instead of a round-trip per song.
	models := make([]songModel, len(songs))
	for i, song := range songs {
		if song.ShowID == "" {
			song.ShowID = showID
		}
		models[i] = fromDomainSong(song)
	}

	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return fmt.Errorf("gorm setlist songs: bulk create: %w", err)
	}
	return nil
}

func (r *SetlistSongRepository) FindByID(ctx context.Context, id domain.SetlistSongID) (domain.SetlistSong, error) {
	var model songModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SetlistSong{}, domain.ErrNotFound
		}
		return domain.SetlistSong{}, fmt.Errorf("gorm setlist songs: find by id: %w", err)
	}
	return model.toDomain(), nil
}

func (r *SetlistSongRepository) ListByShow(ctx context.Context, showID domain.ShowID) ([]domain.SetlistSong, error) {
	var models []songModel
	if err := r.db.WithContext(ctx).
		Where("show_id = ?", showID).
		Order("position ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm setlist songs: list by show: %w", err)
	}

	result := make([]domain.SetlistSong, len(models))
	for i, model := range models {
		result[i] = model.toDomain()
	}
	return result, nil
}

var _ domain.SetlistSongRepository = (*SetlistSongRepository)(nil)
