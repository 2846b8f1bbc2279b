package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

// Payload is the structured content of a notification. Each notification type
// has exactly one variant carrying the fields that type needs.
type Payload interface {
	NotificationType() NotificationType
}

type ClassObtained struct {
	ClassName string `json:"class_name" validate:"required"`
	// Level is set for "[Warrior Level 1!]" style notifications where the
	// first level doubles as the class grant.
	Level *int `json:"level,omitempty" validate:"omitempty,gte=1"`
}

type LevelUp struct {
	ClassName string `json:"class_name" validate:"required"`
	Level     int    `json:"level" validate:"gte=1"`
}

type ClassEvolution struct {
	From string `json:"from_class" validate:"required"`
	To   string `json:"to_class" validate:"required"`
}

type ClassConsolidation struct {
	From []string `json:"from_classes" validate:"required,min=1,dive,required"`
	Into string   `json:"into_class,omitempty"`
}

type ClassRemoved struct {
	ClassName string `json:"class_name" validate:"required"`
}

type AbilityObtained struct {
	Name      string      `json:"name" validate:"required"`
	Kind      AbilityKind `json:"kind" validate:"required,oneof=skill spell condition aspect title rank other"`
	ClassName string      `json:"class_name,omitempty"`
}

type AbilityRemoved struct {
	Name string      `json:"name" validate:"required"`
	Kind AbilityKind `json:"kind,omitempty" validate:"omitempty,oneof=skill spell condition aspect title rank other"`
}

type SkillChange struct {
	From string `json:"from_skill" validate:"required"`
	To   string `json:"to_skill,omitempty"`
}

type SkillConsolidation struct {
	From []string `json:"from_skills" validate:"required,min=1,dive,required"`
	Into string   `json:"into_skill,omitempty"`
}

type SpellRemoved struct {
	Name string `json:"name" validate:"required"`
}

type FalsePositive struct {
	Reason string `json:"reason,omitempty"`
}

type Other struct {
	Title string `json:"title,omitempty"`
}

func (ClassObtained) NotificationType() NotificationType      { return TypeClassObtained }
func (LevelUp) NotificationType() NotificationType            { return TypeLevelUp }
func (ClassEvolution) NotificationType() NotificationType     { return TypeClassEvolution }
func (ClassConsolidation) NotificationType() NotificationType { return TypeClassConsolidation }
func (ClassRemoved) NotificationType() NotificationType       { return TypeClassRemoved }
func (AbilityObtained) NotificationType() NotificationType    { return TypeAbilityObtained }
func (AbilityRemoved) NotificationType() NotificationType     { return TypeAbilityRemoved }
func (SkillChange) NotificationType() NotificationType        { return TypeSkillChange }
func (SkillConsolidation) NotificationType() NotificationType { return TypeSkillConsolidation }
func (SpellRemoved) NotificationType() NotificationType       { return TypeSpellRemoved }
func (FalsePositive) NotificationType() NotificationType      { return TypeFalsePositive }
func (Other) NotificationType() NotificationType              { return TypeOther }

var validate = validator.New()

// ValidatePayload checks the variant's required fields.
func ValidatePayload(p Payload) error {
	if p == nil {
		return fmt.Errorf("missing payload")
	}
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%s fields: %s", p.NotificationType(), strings.Join(parts, ", "))
		}
		return err
	}
	return nil
}

func newPayload(t NotificationType) (Payload, error) {
	switch t {
	case TypeClassObtained:
		return &ClassObtained{}, nil
	case TypeLevelUp:
		return &LevelUp{}, nil
	case TypeClassEvolution:
		return &ClassEvolution{}, nil
	case TypeClassConsolidation:
		return &ClassConsolidation{}, nil
	case TypeClassRemoved:
		return &ClassRemoved{}, nil
	case TypeAbilityObtained:
		return &AbilityObtained{}, nil
	case TypeAbilityRemoved:
		return &AbilityRemoved{}, nil
	case TypeSkillChange:
		return &SkillChange{}, nil
	case TypeSkillConsolidation:
		return &SkillConsolidation{}, nil
	case TypeSpellRemoved:
		return &SpellRemoved{}, nil
	case TypeFalsePositive:
		return &FalsePositive{}, nil
	case TypeOther:
		return &Other{}, nil
	}
	return nil, fmt.Errorf("unsupported notification type %q", t)
}

// legacyNameKeys are the per-kind field names older classifier output uses for
// the ability name.
var legacyNameKeys = []struct {
	key  string
	kind AbilityKind
}{
	{"skill_name", KindSkill},
	{"spell_name", KindSpell},
	{"condition_name", KindCondition},
	{"aspect_name", KindAspect},
	{"title_name", KindTitle},
	{"rank_name", KindRank},
}

// DecodePayload decodes raw structured fields for type t. kindHint fills the
// ability kind when the fields omit it (legacy type names imply one).
func DecodePayload(t NotificationType, raw []byte, kindHint AbilityKind) (Payload, error) {
	p, err := newPayload(t)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if s := strings.TrimSpace(string(raw)); s != "" && s != "null" {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decode %s fields: %w", t, err)
		}
	}
	normalizeLegacyFields(t, fields, kindHint)
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("decode %s fields: %w", t, err)
	}
	return derefPayload(p), nil
}

func normalizeLegacyFields(t NotificationType, fields map[string]any, kindHint AbilityKind) {
	switch t {
	case TypeAbilityObtained, TypeAbilityRemoved, TypeSpellRemoved:
		if isBlank(fields["name"]) {
			for _, lk := range legacyNameKeys {
				if v, ok := fields[lk.key]; ok && !isBlank(v) {
					fields["name"] = v
					if kindHint == "" {
						kindHint = lk.kind
					}
					break
				}
			}
		}
		if t != TypeSpellRemoved && isBlank(fields["kind"]) && kindHint != "" {
			fields["kind"] = string(kindHint)
		}
	case TypeClassRemoved:
		if isBlank(fields["class_name"]) && !isBlank(fields["from_class"]) {
			fields["class_name"] = fields["from_class"]
		}
	case TypeSkillChange:
		if isBlank(fields["from_skill"]) && !isBlank(fields["skill_name"]) {
			fields["from_skill"] = fields["skill_name"]
		}
	case TypeLevelUp, TypeClassObtained:
		// classifiers sometimes send the level as a string ("5")
		if s, ok := fields["level"].(string); ok {
			var n int
			if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err == nil {
				fields["level"] = n
			}
		}
	}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func derefPayload(p Payload) Payload {
	switch v := p.(type) {
	case *ClassObtained:
		return *v
	case *LevelUp:
		return *v
	case *ClassEvolution:
		return *v
	case *ClassConsolidation:
		return *v
	case *ClassRemoved:
		return *v
	case *AbilityObtained:
		return *v
	case *AbilityRemoved:
		return *v
	case *SkillChange:
		return *v
	case *SkillConsolidation:
		return *v
	case *SpellRemoved:
		return *v
	case *FalsePositive:
		return *v
	case *Other:
		return *v
	}
	return p
}

// EncodePayload is the inverse of DecodePayload for canonical field names.
func EncodePayload(p Payload) (datatypes.JSON, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
