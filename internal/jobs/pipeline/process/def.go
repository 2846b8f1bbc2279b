package process

import (
	"github.com/yungbote/progressledger/internal/data/repos"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/services"
)

const (
	JobType          = services.JobTypeProcess
	DefaultBatchSize = 100
)

type Pipeline struct {
	log       *logger.Logger
	notes     repos.RawNotificationRepo
	writer    services.LedgerWriter
	batchSize int
}

func New(baseLog *logger.Logger, notes repos.RawNotificationRepo, writer services.LedgerWriter, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Pipeline{
		log:       baseLog.With("job", JobType),
		notes:     notes,
		writer:    writer,
		batchSize: batchSize,
	}
}

func (p *Pipeline) Type() string { return JobType }

type Config struct {
	BatchSize int `json:"batch_size,omitempty"`
}

type Result struct {
	Batches        int                       `json:"batches"`
	ProcessedCount int                       `json:"processed_count"`
	FailedCount    int                       `json:"failed_count"`
	Errors         []services.ProcessFailure `json:"errors,omitempty"`
}

// maxReportedErrors caps how many failures the job result carries.
const maxReportedErrors = 200
