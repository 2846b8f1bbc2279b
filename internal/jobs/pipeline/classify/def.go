package classify

import (
	"github.com/yungbote/progressledger/internal/classifier"
	"github.com/yungbote/progressledger/internal/data/repos"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/services"
)

const JobType = services.JobTypeClassify

type Pipeline struct {
	log         *logger.Logger
	notes       repos.RawNotificationRepo
	characters  repos.CharacterRepo
	attribution services.AttributionService
	classifier  classifier.Classifier
}

func New(
	baseLog *logger.Logger,
	notes repos.RawNotificationRepo,
	characters repos.CharacterRepo,
	attribution services.AttributionService,
	c classifier.Classifier,
) *Pipeline {
	return &Pipeline{
		log:         baseLog.With("job", JobType),
		notes:       notes,
		characters:  characters,
		attribution: attribution,
		classifier:  c,
	}
}

func (p *Pipeline) Type() string { return JobType }

// Config narrows which unassigned notifications are classified.
type Config struct {
	ChapterFrom *int   `json:"chapter_from,omitempty"`
	ChapterTo   *int   `json:"chapter_to,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty"`
	Context     string `json:"context,omitempty"`
}

type Result struct {
	Candidates   int `json:"candidates"`
	AutoAccepted int `json:"auto_accepted"`
	NeedsReview  int `json:"needs_review"`
	Unattributed int `json:"unattributed"`
	Failed       int `json:"failed"`
}
