package classify

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/progressledger/internal/classifier"
	"github.com/yungbote/progressledger/internal/data/repos"
	types "github.com/yungbote/progressledger/internal/domain"
	jobrt "github.com/yungbote/progressledger/internal/jobs/runtime"
	"github.com/yungbote/progressledger/internal/platform/apierr"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/services"
)

const pageSize = 500

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	var cfg Config
	if err := jc.DecodeConfig(&cfg); err != nil {
		jc.Fail("validate", err)
		return nil
	}
	if p.classifier == nil {
		jc.Fail("validate", fmt.Errorf("no classifier configured"))
		return nil
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > classifier.MaxBatch {
		batchSize = classifier.MaxBatch
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	jc.Progress("collect", 2, "Collecting unassigned notifications")
	cands, err := p.collect(dbc, cfg)
	if err != nil {
		jc.Fail("collect", err)
		return nil
	}
	chars, err := p.roster(dbc)
	if err != nil {
		jc.Fail("collect", err)
		return nil
	}

	res := Result{Candidates: len(cands)}
	if len(cands) == 0 {
		jc.Succeed("done", res)
		return nil
	}

	batches := classifier.Batches(cands, batchSize)
	for i, batch := range batches {
		if err := jc.CheckCancelled(); err != nil {
			return err
		}
		req := classifier.Request{Candidates: batch, Characters: chars, KnownContext: cfg.Context}
		got, err := p.classifier.Classify(jc.Ctx, req)
		if err != nil {
			if jc.Ctx.Err() != nil {
				return jobrt.ErrCancelled
			}
			jc.Fail("classify", fmt.Errorf("batch %d: %w", i+1, err))
			return nil
		}
		for _, v := range classifier.Complete(req, got) {
			n, err := p.attribute(dbc, v)
			if err != nil {
				res.Failed++
				p.log.Warn("attribution rejected", "notification_id", v.NotificationID, "error", err)
				continue
			}
			switch {
			case !n.Assigned:
				res.Unattributed++
			case n.NeedsReview:
				res.NeedsReview++
			default:
				res.AutoAccepted++
			}
		}
		pct := 5 + (i+1)*90/len(batches)
		jc.Progress("classify", pct, fmt.Sprintf("Classified batch %d/%d", i+1, len(batches)))
	}

	p.log.Info("classify finished",
		"job_id", jc.Job.ID,
		"candidates", res.Candidates,
		"auto_accepted", res.AutoAccepted,
		"needs_review", res.NeedsReview,
	)
	jc.Succeed("done", res)
	return nil
}

// attribute stores the verdict. Fields the classifier got wrong are dropped
// and rederived from the raw text rather than losing the attribution.
func (p *Pipeline) attribute(dbc dbctx.Context, v classifier.Verdict) (*types.RawNotification, error) {
	in := services.Attribution{
		NotificationID: v.NotificationID,
		CharacterID:    v.CharacterID,
		Type:           v.Type,
		Fields:         v.Fields,
		Confidence:     v.Confidence,
		Rationale:      v.Rationale,
	}
	n, err := p.attribution.AutoAttribute(dbc, in)
	if err == nil || !errors.Is(err, apierr.ErrValidation) || len(in.Fields) == 0 {
		return n, err
	}
	in.Fields = nil
	return p.attribution.AutoAttribute(dbc, in)
}

// collect snapshots the unassigned set up front; attribution may leave rows
// unassigned, so paging over the live set would revisit them.
func (p *Pipeline) collect(dbc dbctx.Context, cfg Config) ([]classifier.Candidate, error) {
	var out []classifier.Candidate
	seen := map[uuid.UUID]bool{}
	for offset := 0; ; offset += pageSize {
		rows, _, err := p.notes.List(dbc, repos.NotificationFilter{
			Status:      repos.StatusUnassigned,
			ChapterFrom: cfg.ChapterFrom,
			ChapterTo:   cfg.ChapterTo,
			Limit:       pageSize,
			Offset:      offset,
		})
		if err != nil {
			return nil, apierr.Persistence("list unassigned notifications", err)
		}
		for _, n := range rows {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			out = append(out, candidateFor(n))
			if cfg.Limit > 0 && len(out) >= cfg.Limit {
				return out, nil
			}
		}
		if len(rows) < pageSize {
			return out, nil
		}
	}
}

func candidateFor(n *types.RawNotification) classifier.Candidate {
	c := classifier.Candidate{
		NotificationID:  n.ID,
		RawText:         n.RawText,
		SurroundingText: n.SurroundingText,
	}
	if n.Chapter != nil {
		c.ChapterOrder = n.Chapter.OrderIndex
		c.ChapterTitle = n.Chapter.Title
	}
	return c
}

func (p *Pipeline) roster(dbc dbctx.Context) ([]classifier.Character, error) {
	rows, err := p.characters.List(dbc)
	if err != nil {
		return nil, apierr.Persistence("list characters", err)
	}
	out := make([]classifier.Character, 0, len(rows))
	for _, c := range rows {
		names := c.Names()
		out = append(out, classifier.Character{ID: c.ID, Name: c.Name, Aliases: names[1:]})
	}
	return out, nil
}
