package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/setvote/setvote/internal/domain"
)

// ShowRepository maps the show aggregate onto GORM tables.
type ShowRepository struct {
	db *gorm.DB
}

func NewShowRepository(db *gorm.DB) *ShowRepository {
	return &ShowRepository{db: db}
}

type showModel struct {
	ID             string      `gorm:"column:id;primaryKey"`
	SetlistID      string      `gorm:"column:setlist_id"`
	Artist         string      `gorm:"column:artist"`
	Venue          string      `gorm:"column:venue"`
	Date           time.Time   `gorm:"column:date"`
	VotingOpensAt  time.Time   `gorm:"column:voting_opens_at"`
	VotingClosesAt time.Time   `gorm:"column:voting_closes_at"`
	Active         bool        `gorm:"column:active"`
	CreatedAt      time.Time   `gorm:"column:created_at"`
	UpdatedAt      time.Time   `gorm:"column:updated_at"`
	Songs          []songModel `gorm:"foreignKey:ShowID;references:ID"`
}

func (showModel) TableName() string {
	return "shows"
}

func (m showModel) toDomain(includeSongs bool) domain.Show {
	s := domain.Show{
		ID:             domain.ShowID(m.ID),
		SetlistID:      domain.SetlistID(m.SetlistID),
		Artist:         m.Artist,
		Venue:          m.Venue,
		Date:           m.Date,
		VotingOpensAt:  m.VotingOpensAt,
		VotingClosesAt: m.VotingClosesAt,
		Active:         m.Active,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}

	if includeSongs {
		songs := make([]domain.SetlistSong, len(m.Songs))
		for i, song := range m.Songs {
			songs[i] = song.toDomain()
		}
		s.Songs = songs
	}

	return s
}

func fromDomainShow(s domain.Show) showModel {
	model := showModel{
		ID:             string(s.ID),
		SetlistID:      string(s.SetlistID),
		Artist:         s.Artist,
		Venue:          s.Venue,
		Date:           s.Date,
		VotingOpensAt:  s.VotingOpensAt,
		VotingClosesAt: s.VotingClosesAt,
		Active:         s.Active,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}

	if len(s.Songs) > 0 {
		model.Songs = make([]songModel, len(s.Songs))
		for i, song := range s.Songs {
			model.Songs[i] = fromDomainSong(song)
		}
	}

	return model
}

func (r *ShowRepository) Create(ctx context.Context, s domain.Show) error {
	model := fromDomainShow(s)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("gorm shows: insert: %w", err)
	}
	return nil
}

func (r *ShowRepository) FindByID(ctx context.Context, id domain.ShowID) (domain.Show, error) {
	var model showModel
	if err := r.db.WithContext(ctx).
		Preload("Songs", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Show{}, domain.ErrNotFound
		}
		return domain.Show{}, fmt.Errorf("gorm shows: find by id: %w", err)
	}
	return model.toDomain(true), nil
}

func (r *ShowRepository) ListOpen(ctx context.Context, now time.Time) ([]domain.Show, error) {
	var models []showModel
	if err := r.db.WithContext(ctx).
		// Same voting-window rule the admission service applies.
		Where("active = ? AND voting_opens_at <= ? AND voting_closes_at >= ?", true, now, now).
		Order("date ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm shows: list open: %w", err)
	}

	result := make([]domain.Show, len(models))
	for i, model := range models {
		result[i] = model.toDomain(false)
	}
	return result, nil
}

var _ domain.ShowRepository = (*ShowRepository)(nil)
