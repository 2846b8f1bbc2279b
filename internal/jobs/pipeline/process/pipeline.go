package process

import (
	"fmt"

	"github.com/yungbote/progressledger/internal/data/repos"
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
	batchSize := p.batchSize
	if cfg.BatchSize > 0 {
		batchSize = cfg.BatchSize
	}

	if err := jc.CheckCancelled(); err != nil {
		return err
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}
	total, err := p.notes.CountByStatus(dbc, repos.StatusReady)
	if err != nil {
		jc.Fail("count", apierr.Persistence("count ready notifications", err))
		return nil
	}
	jc.Progress("process", 2, fmt.Sprintf("%d notifications ready", total))

	var res Result
	for {
		if err := jc.CheckCancelled(); err != nil {
			return err
		}
		// failed rows keep process_error and drop out of the ready listing,
		// so every pass makes progress
		ids, err := p.notes.ListReadyIDs(dbc, batchSize)
		if err != nil {
			jc.Fail("process", apierr.Persistence("list ready notifications", err))
			return nil
		}
		if len(ids) == 0 {
			break
		}
		out, err := p.writer.Process(dbc, ids)
		if err != nil {
			jc.Fail("process", err)
			return nil
		}
		res.Batches++
		res.ProcessedCount += out.ProcessedCount
		res.FailedCount += out.FailedCount
		for _, f := range out.Errors {
			if len(res.Errors) < maxReportedErrors {
				res.Errors = append(res.Errors, f)
			}
		}
		if out.ProcessedCount == 0 && out.FailedCount == 0 {
			break
		}
		jc.Progress("process", progressPct(res.ProcessedCount+res.FailedCount, total),
			fmt.Sprintf("Processed %d, failed %d", res.ProcessedCount, res.FailedCount))
	}

	p.log.Info("process finished",
		"job_id", jc.Job.ID,
		"processed", res.ProcessedCount,
		"failed", res.FailedCount,
	)
	jc.Succeed("done", res)
	return nil
}

func progressPct(done int, total int64) int {
	if total <= 0 {
		return 95
	}
	pct := 5 + int(int64(done)*90/total)
	if pct > 95 {
		pct = 95
	}
	return pct
}
