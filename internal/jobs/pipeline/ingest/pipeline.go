package ingest

import (
	"errors"
	"fmt"
	"sort"

	jobrt "github.com/yungbote/progressledger/internal/jobs/runtime"
	"github.com/yungbote/progressledger/internal/platform/apierr"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	var cfg Config
	if err := jc.DecodeConfig(&cfg); err != nil {
		jc.Fail("validate", err)
		return nil
	}
	if len(cfg.Chapters) == 0 {
		jc.Fail("validate", fmt.Errorf("config.chapters is empty"))
		return nil
	}
	sort.SliceStable(cfg.Chapters, func(i, j int) bool {
		return cfg.Chapters[i].OrderIndex < cfg.Chapters[j].OrderIndex
	})

	dbc := dbctx.Context{Ctx: jc.Ctx}
	var res Result

	if len(cfg.Characters) > 0 {
		jc.Progress("characters", 1, fmt.Sprintf("Registering %d characters", len(cfg.Characters)))
		for _, in := range cfg.Characters {
			_, err := p.characters.Create(dbc, in)
			switch {
			case err == nil:
				res.CharactersCreated++
			case errors.Is(err, apierr.ErrConflict):
				p.log.Debug("character already registered", "name", in.Name)
			default:
				jc.Fail("characters", err)
				return nil
			}
		}
	}

	total := len(cfg.Chapters)
	for i, in := range cfg.Chapters {
		if err := jc.CheckCancelled(); err != nil {
			return err
		}
		out, err := p.chapters.Ingest(dbc, in)
		if err != nil {
			jc.Fail("ingest", fmt.Errorf("chapter %d: %w", in.OrderIndex, err))
			return nil
		}
		res.Chapters++
		res.Candidates += out.Candidates
		res.Inserted += out.Inserted
		if out.Chapter != nil && out.Chapter.OrderIndex > res.LatestOrder {
			res.LatestOrder = out.Chapter.OrderIndex
		}
		pct := 5 + (i+1)*90/total
		jc.Progress("ingest", pct, fmt.Sprintf("Ingested chapter %d (%d/%d)", in.OrderIndex, i+1, total))
	}

	p.log.Info("ingest finished",
		"job_id", jc.Job.ID,
		"chapters", res.Chapters,
		"inserted", res.Inserted,
	)
	jc.Succeed("done", res)
	return nil
}
