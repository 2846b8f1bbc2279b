package extract

import (
	"regexp"
	"strconv"
	"strings"

	types "github.com/yungbote/progressledger/internal/domain"
	ledger "github.com/yungbote/progressledger/internal/domain/ledger"
)

// PatternConfidence is reported for every pattern match. It stays below the
// auto-accept threshold so pattern guesses alone always go to review.
const PatternConfidence = 0.75

// Guess is a type and payload inferred from bracket text alone.
type Guess struct {
	Type       types.NotificationType
	Payload    types.Payload
	Confidence float64
	Rule       string
}

const sep = `\s*[:\-–—]\s*`
const arrow = `\s*(?:→|->|=>)\s*`

var (
	reClassEvolved      = regexp.MustCompile(`(?i)^(.+?) class evolved into (.+)$`)
	reClassEvolution    = regexp.MustCompile(`(?i)^class evolution` + sep + `(.+?)` + arrow + `(.+)$`)
	reClassConsolidated = regexp.MustCompile(`(?i)^classes consolidated(?:` + sep + `|\s+)(.+?)\s*(?:=|→|->)\s*(.+)$`)
	reClassLostPrefix   = regexp.MustCompile(`(?i)^class` + sep + `(.+?) (?:lost|removed)$`)
	reClassLostSuffix   = regexp.MustCompile(`(?i)^(.+?) class (?:lost|removed)$`)
	reClassObtained     = regexp.MustCompile(`(?i)^(.+?) class obtained$`)
	reLevel             = regexp.MustCompile(`(?i)^(.+?) level (\d+)$`)
	reSkillChange       = regexp.MustCompile(`(?i)^skill change` + sep + `(.+?)` + arrow + `(.+)$`)
	reSkillsMerged      = regexp.MustCompile(`(?i)^skills consolidated(?:` + sep + `|\s+)(.+?)\s*(?:=|→|->)\s*(.+)$`)
	reAbilityObtained   = regexp.MustCompile(`(?i)^(skill|spell|condition|aspect|title|rank)` + sep + `(.+?) (?:obtained|learned|gained|received|acquired)$`)
	reAbilityLost       = regexp.MustCompile(`(?i)^(skill|spell|condition|aspect|title|rank)` + sep + `(.+?) (?:lost|removed|forgotten)$`)
	reListSplit         = regexp.MustCompile(`\s*(?:\+|,|&|\band\b)\s*`)
)

// Strip removes the brackets and the trailing punctuation the serial uses.
func Strip(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "!.? ")
	return strings.Join(strings.Fields(s), " ")
}

// Classify maps bracket text onto a notification type and payload. It reports
// false when no rule recognizes the text.
func Classify(raw string) (Guess, bool) {
	s := Strip(raw)
	if s == "" {
		return Guess{}, false
	}
	g := func(rule string, p types.Payload) (Guess, bool) {
		return Guess{Type: p.NotificationType(), Payload: p, Confidence: PatternConfidence, Rule: rule}, true
	}

	if m := reClassEvolved.FindStringSubmatch(s); m != nil {
		return g("class_evolved", ledger.ClassEvolution{From: m[1], To: m[2]})
	}
	if m := reClassEvolution.FindStringSubmatch(s); m != nil {
		return g("class_evolution", ledger.ClassEvolution{From: m[1], To: m[2]})
	}
	if m := reClassConsolidated.FindStringSubmatch(s); m != nil {
		return g("classes_consolidated", ledger.ClassConsolidation{From: splitList(m[1]), Into: strings.TrimSpace(m[2])})
	}
	if m := reSkillChange.FindStringSubmatch(s); m != nil {
		return g("skill_change", ledger.SkillChange{From: m[1], To: m[2]})
	}
	if m := reSkillsMerged.FindStringSubmatch(s); m != nil {
		return g("skills_consolidated", ledger.SkillConsolidation{From: splitList(m[1]), Into: strings.TrimSpace(m[2])})
	}
	if m := reAbilityObtained.FindStringSubmatch(s); m != nil {
		kind := types.AbilityKind(strings.ToLower(m[1]))
		return g("ability_obtained", ledger.AbilityObtained{Name: m[2], Kind: kind})
	}
	if m := reAbilityLost.FindStringSubmatch(s); m != nil {
		kind := types.AbilityKind(strings.ToLower(m[1]))
		if kind == ledger.KindSpell {
			return g("spell_removed", ledger.SpellRemoved{Name: m[2]})
		}
		return g("ability_removed", ledger.AbilityRemoved{Name: m[2], Kind: kind})
	}
	if m := reClassLostPrefix.FindStringSubmatch(s); m != nil {
		return g("class_lost", ledger.ClassRemoved{ClassName: m[1]})
	}
	if m := reClassLostSuffix.FindStringSubmatch(s); m != nil {
		return g("class_lost", ledger.ClassRemoved{ClassName: m[1]})
	}
	if m := reClassObtained.FindStringSubmatch(s); m != nil {
		return g("class_obtained", ledger.ClassObtained{ClassName: m[1]})
	}
	if m := reLevel.FindStringSubmatch(s); m != nil {
		level, err := strconv.Atoi(m[2])
		if err != nil || level < 1 {
			return Guess{}, false
		}
		if level == 1 {
			return g("first_level", ledger.ClassObtained{ClassName: m[1], Level: &level})
		}
		return g("level_up", ledger.LevelUp{ClassName: m[1], Level: level})
	}
	return Guess{}, false
}

func splitList(s string) []string {
	parts := reListSplit.Split(s, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
