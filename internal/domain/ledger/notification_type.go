package ledger

import (
	"strings"
)

type NotificationType string

const (
	TypeClassObtained      NotificationType = "class_obtained"
	TypeClassEvolution     NotificationType = "class_evolution"
	TypeClassConsolidation NotificationType = "class_consolidation"
	TypeClassRemoved       NotificationType = "class_removed"
	TypeLevelUp            NotificationType = "level_up"
	TypeAbilityObtained    NotificationType = "ability_obtained"
	TypeAbilityRemoved     NotificationType = "ability_removed"
	TypeSkillChange        NotificationType = "skill_change"
	TypeSkillConsolidation NotificationType = "skill_consolidation"
	TypeSpellRemoved       NotificationType = "spell_removed"
	TypeFalsePositive      NotificationType = "false_positive"
	TypeOther              NotificationType = "other"
)

var notificationTypes = map[NotificationType]struct{}{
	TypeClassObtained:      {},
	TypeClassEvolution:     {},
	TypeClassConsolidation: {},
	TypeClassRemoved:       {},
	TypeLevelUp:            {},
	TypeAbilityObtained:    {},
	TypeAbilityRemoved:     {},
	TypeSkillChange:        {},
	TypeSkillConsolidation: {},
	TypeSpellRemoved:       {},
	TypeFalsePositive:      {},
	TypeOther:              {},
}

func (t NotificationType) Valid() bool {
	_, ok := notificationTypes[t]
	return ok
}

func (t NotificationType) String() string { return string(t) }

// IsClassSupersession reports whether the type closes earlier class records.
func (t NotificationType) IsClassSupersession() bool {
	switch t {
	case TypeClassEvolution, TypeClassConsolidation, TypeClassRemoved:
		return true
	}
	return false
}

// AbilityRemovalTypes are the removal kinds consulted for ability visibility.
var AbilityRemovalTypes = []NotificationType{
	TypeAbilityRemoved,
	TypeSkillChange,
	TypeSkillConsolidation,
	TypeSpellRemoved,
}

type AbilityKind string

const (
	KindSkill     AbilityKind = "skill"
	KindSpell     AbilityKind = "spell"
	KindCondition AbilityKind = "condition"
	KindAspect    AbilityKind = "aspect"
	KindTitle     AbilityKind = "title"
	KindRank      AbilityKind = "rank"
	KindOther     AbilityKind = "other"
)

func (k AbilityKind) Valid() bool {
	switch k {
	case KindSkill, KindSpell, KindCondition, KindAspect, KindTitle, KindRank, KindOther:
		return true
	}
	return false
}

// legacyTypes maps the older per-kind names some classifiers still emit.
var legacyTypes = map[string]struct {
	t    NotificationType
	kind AbilityKind
}{
	"skill_obtained": {TypeAbilityObtained, KindSkill},
	"spell_obtained": {TypeAbilityObtained, KindSpell},
	"condition":      {TypeAbilityObtained, KindCondition},
	"aspect":         {TypeAbilityObtained, KindAspect},
	"title":          {TypeAbilityObtained, KindTitle},
	"rank":           {TypeAbilityObtained, KindRank},
	"skill_removed":  {TypeAbilityRemoved, KindSkill},
}

// ParseNotificationType accepts canonical and legacy names. The returned kind
// is only set when the name implied one.
func ParseNotificationType(raw string) (NotificationType, AbilityKind, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", "", false
	}
	if t := NotificationType(s); t.Valid() {
		return t, "", true
	}
	if l, ok := legacyTypes[s]; ok {
		return l.t, l.kind, true
	}
	return "", "", false
}
