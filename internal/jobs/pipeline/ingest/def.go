package ingest

import (
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/services"
)

const JobType = services.JobTypeIngest

type Pipeline struct {
	log        *logger.Logger
	chapters   services.ChapterService
	characters services.CharacterService
}

func New(baseLog *logger.Logger, chapters services.ChapterService, characters services.CharacterService) *Pipeline {
	return &Pipeline{
		log:        baseLog.With("job", JobType),
		chapters:   chapters,
		characters: characters,
	}
}

func (p *Pipeline) Type() string { return JobType }

// Config is the ingest job payload. Characters are created before any
// chapter is scanned; existing names are left untouched.
type Config struct {
	Chapters   []services.ChapterInput   `json:"chapters"`
	Characters []services.CharacterInput `json:"characters,omitempty"`
}

type Result struct {
	Chapters          int   `json:"chapters"`
	Candidates        int   `json:"candidates"`
	Inserted          int64 `json:"inserted"`
	CharactersCreated int   `json:"characters_created"`
	LatestOrder       int   `json:"latest_order"`
}
