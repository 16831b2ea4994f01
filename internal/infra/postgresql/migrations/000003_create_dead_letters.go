package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/acadnotify/notify-engine/internal/repository"
)

func createDeadLettersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_dead_letters",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeadLetterModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_dead_letters_original_id ON dead_letters (original_notification_id)`,
				`CREATE INDEX IF NOT EXISTS idx_dead_letters_unreprocessed ON dead_letters (enqueued_at) WHERE reprocessed = false`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeadLetterModel{})
		},
	}
}
