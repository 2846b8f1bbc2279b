package services

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/progressledger/internal/data/repos"
	types "github.com/yungbote/progressledger/internal/domain"
	"github.com/yungbote/progressledger/internal/domain/ledger"
	"github.com/yungbote/progressledger/internal/extract"
	"github.com/yungbote/progressledger/internal/platform/apierr"
	"github.com/yungbote/progressledger/internal/platform/dbctx"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

// ChapterInput is one fetched chapter. Text is scanned for notifications and
// not stored.
type ChapterInput struct {
	OrderIndex  int        `json:"order_index" yaml:"order_index"`
	ExternalID  string     `json:"external_id" yaml:"external_id"`
	Title       string     `json:"title" yaml:"title"`
	URL         string     `json:"url" yaml:"url"`
	Text        string     `json:"text" yaml:"text"`
	PublishedAt *time.Time `json:"published_at,omitempty" yaml:"published_at"`
}

type IngestResult struct {
	Chapter    *types.Chapter `json:"chapter"`
	Candidates int            `json:"candidates"`
	Inserted   int64          `json:"inserted"`
}

type ChapterService interface {
	Upsert(dbc dbctx.Context, in ChapterInput) (*types.Chapter, error)
	// Ingest upserts the chapter and stores every bracket candidate found in
	// its text. Re-ingesting the same text inserts nothing new.
	Ingest(dbc dbctx.Context, in ChapterInput) (*IngestResult, error)
	Get(dbc dbctx.Context, orderIndex int) (*types.Chapter, error)
	List(dbc dbctx.Context, limit, offset int) ([]*types.Chapter, error)
	LatestOrder(dbc dbctx.Context) (int, bool, error)
}

type chapterService struct {
	db       *gorm.DB
	log      *logger.Logger
	chapters repos.ChapterRepo
	notes    repos.RawNotificationRepo
}

func NewChapterService(db *gorm.DB, baseLog *logger.Logger, chapters repos.ChapterRepo, notes repos.RawNotificationRepo) ChapterService {
	return &chapterService{
		db:       db,
		log:      baseLog.With("service", "ChapterService"),
		chapters: chapters,
		notes:    notes,
	}
}

func (s *chapterService) Upsert(dbc dbctx.Context, in ChapterInput) (*types.Chapter, error) {
	if in.OrderIndex < 0 {
		return nil, apierr.Validation("order_index must not be negative")
	}
	ch, err := s.chapters.Upsert(dbc, &types.Chapter{
		OrderIndex:  in.OrderIndex,
		ExternalID:  strings.TrimSpace(in.ExternalID),
		Title:       strings.TrimSpace(in.Title),
		URL:         strings.TrimSpace(in.URL),
		WordCount:   len(strings.Fields(in.Text)),
		PublishedAt: in.PublishedAt,
	})
	if err != nil {
		return nil, apierr.Persistence("upsert chapter", err)
	}
	return ch, nil
}

func (s *chapterService) Ingest(dbc dbctx.Context, in ChapterInput) (*IngestResult, error) {
	var out *IngestResult
	run := func(dbc dbctx.Context) error {
		ch, err := s.Upsert(dbc, in)
		if err != nil {
			return err
		}
		cands := extract.Scan(in.Text)
		rows := make([]*types.RawNotification, 0, len(cands))
		for _, c := range cands {
			n := &types.RawNotification{
				ChapterID:       ch.ID,
				Position:        c.Position,
				RawText:         c.RawText,
				SurroundingText: c.SurroundingText,
			}
			if g, ok := extract.Classify(c.RawText); ok {
				if js, err := ledger.EncodePayload(g.Payload); err == nil {
					conf := g.Confidence
					n.Type = g.Type
					n.Fields = js
					n.Confidence = &conf
					n.AttributedBy = ledger.AttributedPattern
				}
			}
			rows = append(rows, n)
		}
		inserted, err := s.notes.InsertCandidates(dbc, rows)
		if err != nil {
			return apierr.Persistence("insert notifications", err)
		}
		out = &IngestResult{Chapter: ch, Candidates: len(cands), Inserted: inserted}
		return nil
	}
	var err error
	if dbc.Tx != nil {
		err = run(dbc)
	} else {
		err = s.db.WithContext(dbc.Context()).Transaction(func(tx *gorm.DB) error {
			return run(dbc.WithTx(tx))
		})
	}
	if err != nil {
		return nil, err
	}
	s.log.Debug("chapter ingested", "order_index", in.OrderIndex, "candidates", out.Candidates, "inserted", out.Inserted)
	return out, nil
}

func (s *chapterService) Get(dbc dbctx.Context, orderIndex int) (*types.Chapter, error) {
	ch, err := s.chapters.GetByOrderIndex(dbc, orderIndex)
	if err != nil {
		return nil, apierr.Persistence("load chapter", err)
	}
	if ch == nil {
		return nil, apierr.NotFound("chapter %d not found", orderIndex)
	}
	return ch, nil
}

func (s *chapterService) List(dbc dbctx.Context, limit, offset int) ([]*types.Chapter, error) {
	out, err := s.chapters.List(dbc, limit, offset)
	if err != nil {
		return nil, apierr.Persistence("list chapters", err)
	}
	return out, nil
}

func (s *chapterService) LatestOrder(dbc dbctx.Context) (int, bool, error) {
	n, ok, err := s.chapters.MaxOrderIndex(dbc)
	if err != nil {
		return 0, false, apierr.Persistence("latest chapter", err)
	}
	return n, ok, nil
}
