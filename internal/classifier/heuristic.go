package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/progressledger/internal/domain/ledger"
	"github.com/yungbote/progressledger/internal/extract"
	"github.com/yungbote/progressledger/internal/observability"
)

const (
	mentionConfidence = extract.PatternConfidence
	soloConfidence    = 0.5
)

// Heuristic attributes a candidate to the only character whose name or alias
// appears in the surrounding text. It never reaches the auto-accept
// threshold, so its output always goes to review.
type Heuristic struct{}

func NewHeuristic() *Heuristic { return &Heuristic{} }

func (h *Heuristic) Classify(ctx context.Context, req Request) ([]Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	patterns := mentionPatterns(req.Characters)
	out := make([]Verdict, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		v := Verdict{NotificationID: c.NotificationID, Type: string(ledger.TypeOther)}
		g, typed := extract.Classify(c.RawText)
		if typed {
			v.Type = string(g.Type)
			if js, err := ledger.EncodePayload(g.Payload); err == nil {
				v.Fields = []byte(js)
			}
		}
		mentioned := mentionedIn(patterns, c.SurroundingText)
		switch {
		case !typed:
			v.Rationale = "bracket text matches no progression pattern"
		case len(mentioned) == 1:
			id := mentioned[0]
			v.CharacterID = &id
			v.Confidence = mentionConfidence
			v.Rationale = "only one known character is named near the notification"
		case len(mentioned) == 0 && len(req.Characters) == 1:
			id := req.Characters[0].ID
			v.CharacterID = &id
			v.Confidence = soloConfidence
			v.Rationale = "single registered character"
		default:
			v.Rationale = fmt.Sprintf("%d candidate characters named nearby", len(mentioned))
		}
		out = append(out, v)
	}
	observability.ObserveClassifier("heuristic", "ok")
	return Complete(req, out), nil
}

type mentionPattern struct {
	id uuid.UUID
	re *regexp.Regexp
}

func mentionPatterns(chars []Character) []mentionPattern {
	var out []mentionPattern
	for _, c := range chars {
		var alts []string
		for _, n := range append([]string{c.Name}, c.Aliases...) {
			if n = strings.TrimSpace(n); n != "" {
				alts = append(alts, regexp.QuoteMeta(n))
			}
		}
		if len(alts) == 0 {
			continue
		}
		re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
		if err != nil {
			continue
		}
		out = append(out, mentionPattern{id: c.ID, re: re})
	}
	return out
}

func mentionedIn(patterns []mentionPattern, text string) []uuid.UUID {
	var out []uuid.UUID
	for _, p := range patterns {
		if p.re.MatchString(text) {
			out = append(out, p.id)
		}
	}
	return out
}
