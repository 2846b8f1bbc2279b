package repos

import (
	"github.com/yungbote/progressledger/internal/data/repos/jobs"
	"github.com/yungbote/progressledger/internal/data/repos/ledger"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"gorm.io/gorm"
)

type ChapterRepo = ledger.ChapterRepo
type CharacterRepo = ledger.CharacterRepo
type RawNotificationRepo = ledger.RawNotificationRepo
type ClassRecordRepo = ledger.ClassRecordRepo
type LevelRecordRepo = ledger.LevelRecordRepo
type AbilityRepo = ledger.AbilityRepo
type RemovalFactRepo = ledger.RemovalFactRepo

type JobRunRepo = jobs.JobRunRepo

const (
	StatusUnassigned  = ledger.StatusUnassigned
	StatusNeedsReview = ledger.StatusNeedsReview
	StatusReady       = ledger.StatusReady
	StatusProcessed   = ledger.StatusProcessed
	StatusArchived    = ledger.StatusArchived
)

type NotificationFilter = ledger.NotificationFilter
type ClassInterval = ledger.ClassInterval
type LevelEntry = ledger.LevelEntry
type AbilityEntry = ledger.AbilityEntry
type AbilityQuery = ledger.AbilityQuery
type RemovalEntry = ledger.RemovalEntry

func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return ledger.NewChapterRepo(db, baseLog)
}
func NewCharacterRepo(db *gorm.DB, baseLog *logger.Logger) CharacterRepo {
	return ledger.NewCharacterRepo(db, baseLog)
}
func NewRawNotificationRepo(db *gorm.DB, baseLog *logger.Logger) RawNotificationRepo {
	return ledger.NewRawNotificationRepo(db, baseLog)
}
func NewClassRecordRepo(db *gorm.DB, baseLog *logger.Logger) ClassRecordRepo {
	return ledger.NewClassRecordRepo(db, baseLog)
}
func NewLevelRecordRepo(db *gorm.DB, baseLog *logger.Logger) LevelRecordRepo {
	return ledger.NewLevelRecordRepo(db, baseLog)
}
func NewAbilityRepo(db *gorm.DB, baseLog *logger.Logger) AbilityRepo {
	return ledger.NewAbilityRepo(db, baseLog)
}
func NewRemovalFactRepo(db *gorm.DB, baseLog *logger.Logger) RemovalFactRepo {
	return ledger.NewRemovalFactRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}

// Set bundles every repo over one connection.
type Set struct {
	Chapters      ChapterRepo
	Characters    CharacterRepo
	Notifications RawNotificationRepo
	Classes       ClassRecordRepo
	Levels        LevelRecordRepo
	Abilities     AbilityRepo
	Removals      RemovalFactRepo
	JobRuns       JobRunRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) *Set {
	return &Set{
		Chapters:      NewChapterRepo(db, baseLog),
		Characters:    NewCharacterRepo(db, baseLog),
		Notifications: NewRawNotificationRepo(db, baseLog),
		Classes:       NewClassRecordRepo(db, baseLog),
		Levels:        NewLevelRecordRepo(db, baseLog),
		Abilities:     NewAbilityRepo(db, baseLog),
		Removals:      NewRemovalFactRepo(db, baseLog),
		JobRuns:       NewJobRunRepo(db, baseLog),
	}
}
