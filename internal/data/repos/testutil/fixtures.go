package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/progressledger/internal/domain"
	jobtypes "github.com/yungbote/progressledger/internal/domain/jobs"
	"github.com/yungbote/progressledger/internal/normalization"
)

func SeedChapter(tb testing.TB, ctx context.Context, tx *gorm.DB, orderIndex int) *types.Chapter {
	tb.Helper()
	ch := &types.Chapter{
		ID:         uuid.New(),
		OrderIndex: orderIndex,
		ExternalID: uuid.NewString(),
		Title:      "chapter",
	}
	if err := tx.WithContext(ctx).Create(ch).Error; err != nil {
		tb.Fatalf("seed chapter: %v", err)
	}
	return ch
}

// SeedChapters creates chapters with order indexes 1..n and returns them by
// order index.
func SeedChapters(tb testing.TB, ctx context.Context, tx *gorm.DB, n int) map[int]*types.Chapter {
	tb.Helper()
	out := make(map[int]*types.Chapter, n)
	for i := 1; i <= n; i++ {
		out[i] = SeedChapter(tb, ctx, tx, i)
	}
	return out
}

func SeedCharacter(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, aliases ...string) *types.Character {
	tb.Helper()
	c := &types.Character{
		ID:             uuid.New(),
		Name:           name,
		NormalizedName: normalization.NormalizeName(name),
	}
	for _, a := range aliases {
		c.Aliases = append(c.Aliases, &types.CharacterAlias{
			ID:              uuid.New(),
			CharacterID:     c.ID,
			Alias:           a,
			NormalizedAlias: normalization.NormalizeName(a),
		})
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed character: %v", err)
	}
	return c
}

// SeedNotification stores a notification at position in chapter. A non-nil
// characterID marks it assigned.
func SeedNotification(tb testing.TB, ctx context.Context, tx *gorm.DB, chapter *types.Chapter, position int, t types.NotificationType, fields any, characterID *uuid.UUID) *types.RawNotification {
	tb.Helper()
	n := &types.RawNotification{
		ID:        uuid.New(),
		ChapterID: chapter.ID,
		Position:  position,
		RawText:   "[" + string(t) + "]",
		Type:      t,
	}
	if fields != nil {
		b, err := json.Marshal(fields)
		if err != nil {
			tb.Fatalf("marshal fields: %v", err)
		}
		n.Fields = datatypes.JSON(b)
	}
	if characterID != nil {
		id := *characterID
		n.CharacterID = &id
		n.Assigned = true
		n.AttributedBy = "manual"
	}
	if err := tx.WithContext(ctx).Create(n).Error; err != nil {
		tb.Fatalf("seed notification: %v", err)
	}
	return n
}

// SeedRunningJob stores a running job holding the ledger lease, as the worker
// leaves it right before calling a handler.
func SeedRunningJob(tb testing.TB, ctx context.Context, tx *gorm.DB, jobType string, config any) *types.JobRun {
	tb.Helper()
	now := time.Now()
	lease := jobtypes.LeaseKeyLedger
	job := &types.JobRun{
		ID:         uuid.New(),
		JobType:    jobType,
		Status:     jobtypes.StatusRunning,
		Stage:      "running",
		LeaseKey:   &lease,
		OwnerID:    "test",
		AcquiredAt: &now,
		StartedAt:  &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if config != nil {
		b, err := json.Marshal(config)
		if err != nil {
			tb.Fatalf("marshal job config: %v", err)
		}
		job.Config = datatypes.JSON(b)
	}
	if err := tx.WithContext(ctx).Create(job).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return job
}
