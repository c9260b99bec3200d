// Package migrations holds the versioned gormigrate steps applied at boot.
package migrations

import (
	"fmt"

	gormigrate "github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/setvote/setvote/internal/domain"
)

func Run(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("migrations: nil db")
	}

	// gormigrate keeps schema history versioned instead of relying on a
	// blanket AutoMigrate in production.
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202601120001_init_schema",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&domain.Show{}, &domain.SetlistSong{}, &domain.Vote{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("votes", "setlist_songs", "shows")
			},
		},
		{
			ID: "202601120002_vote_counters",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&domain.ShowVoteCounter{}, &domain.DailyVoteCounter{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("daily_vote_counters", "show_vote_counters")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migrations: apply failed: %w", err)
	}

	return nil
}
