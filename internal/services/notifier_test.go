package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/progressledger/internal/data/repos/testutil"
	types "github.com/yungbote/progressledger/internal/domain"
	jobtypes "github.com/yungbote/progressledger/internal/domain/jobs"
	"github.com/yungbote/progressledger/internal/realtime"
)

type recordingBus struct {
	events []realtime.JobEvent
	err    error
}

func (b *recordingBus) Publish(_ context.Context, ev realtime.JobEvent) error {
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) StartForwarder(context.Context, func(realtime.JobEvent)) error { return nil }
func (b *recordingBus) Close() error { return nil }

func TestNotifierPrefersBusAndFallsBackToHub(t *testing.T) {
	log := testutil.Logger(t)
	hub := realtime.NewHub(log)
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	b := &recordingBus{}
	n := NewJobNotifier(log, hub, b)
	job := &types.JobRun{ID: uuid.New(), JobType: JobTypeProcess, Status: jobtypes.StatusRunning}

	n.JobProgress(job, "process", 40, "halfway")
	if len(b.events) != 1 || b.events[0].Event != realtime.EventJobProgress || b.events[0].Progress != 40 {
		t.Fatalf("expected one progress event on the bus, got %+v", b.events)
	}
	select {
	case ev := <-events:
		t.Fatalf("hub should not get bus-delivered events, got %+v", ev)
	default:
	}

	b.err = errors.New("redis gone")
	n.JobFailed(job, "process", "boom")
	select {
	case ev := <-events:
		if ev.Event != realtime.EventJobFailed || ev.Error != "boom" || ev.JobID != job.ID {
			t.Fatalf("unexpected fallback event %+v", ev)
		}
	default:
		t.Fatalf("failed publish should fall back to the hub")
	}
}
