package db

import (
	"fmt"

	types "github.com/yungbote/progressledger/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(types.Models()...)
}

// EnsureLedgerIndexes adds the postgres partial indexes behind the review
// queue and the ready-to-process scan.
func EnsureLedgerIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_raw_notification_ready
		ON raw_notifications (chapter_id, position)
		WHERE assigned = TRUE AND archived = FALSE AND processed = FALSE;
	`).Error; err != nil {
		return fmt.Errorf("create idx_raw_notification_ready: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_raw_notification_review
		ON raw_notifications (confidence ASC)
		WHERE needs_review = TRUE AND archived = FALSE AND processed = FALSE;
	`).Error; err != nil {
		return fmt.Errorf("create idx_raw_notification_review: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_class_record_character_open
		ON class_records (character_id, normalized_name)
		WHERE ended_chapter_id IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_class_record_character_open: %w", err)
	}
	return nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...", "driver", s.driver)
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if s.driver != DriverPostgres {
		return nil
	}
	if err := EnsureLedgerIndexes(s.db); err != nil {
		s.log.Error("Ledger index migration failed", "error", err)
		return err
	}
	return nil
}
