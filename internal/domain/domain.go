package domain

import (
	"github.com/yungbote/progressledger/internal/domain/jobs"
	"github.com/yungbote/progressledger/internal/domain/ledger"
)

type Chapter = ledger.Chapter
type Character = ledger.Character
type CharacterAlias = ledger.CharacterAlias
type RawNotification = ledger.RawNotification
type ClassRecord = ledger.ClassRecord
type LevelRecord = ledger.LevelRecord
type AbilityCatalogEntry = ledger.AbilityCatalogEntry
type AbilityAcquisition = ledger.AbilityAcquisition
type RemovalFact = ledger.RemovalFact

type NotificationType = ledger.NotificationType
type NotificationState = ledger.NotificationState
type AbilityKind = ledger.AbilityKind
type Payload = ledger.Payload

type JobRun = jobs.JobRun

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&Chapter{},
		&Character{},
		&CharacterAlias{},
		&RawNotification{},
		&ClassRecord{},
		&LevelRecord{},
		&AbilityCatalogEntry{},
		&AbilityAcquisition{},
		&RemovalFact{},
		&JobRun{},
	}
}

const (
	TypeClassObtained      = ledger.TypeClassObtained
	TypeClassEvolution     = ledger.TypeClassEvolution
	TypeClassConsolidation = ledger.TypeClassConsolidation
	TypeClassRemoved       = ledger.TypeClassRemoved
	TypeLevelUp            = ledger.TypeLevelUp
	TypeAbilityObtained    = ledger.TypeAbilityObtained
	TypeAbilityRemoved     = ledger.TypeAbilityRemoved
	TypeSkillChange        = ledger.TypeSkillChange
	TypeSkillConsolidation = ledger.TypeSkillConsolidation
	TypeSpellRemoved       = ledger.TypeSpellRemoved
	TypeFalsePositive      = ledger.TypeFalsePositive
	TypeOther              = ledger.TypeOther
)

const (
	KindSkill     = ledger.KindSkill
	KindSpell     = ledger.KindSpell
	KindCondition = ledger.KindCondition
	KindAspect    = ledger.KindAspect
	KindTitle     = ledger.KindTitle
	KindRank      = ledger.KindRank
	KindOther     = ledger.KindOther
)

var AbilityRemovalTypes = ledger.AbilityRemovalTypes
