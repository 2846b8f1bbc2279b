package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/progressledger/internal/platform/logger"
)

func recvEvent(t *testing.T, ch <-chan JobEvent, timeout time.Duration) JobEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for job event")
	}
	return JobEvent{}
}

func TestHubBroadcastsToEverySubscriber(t *testing.T) {
	hub := NewHub(logger.NewNop())
	a, unsubA := hub.Subscribe()
	defer unsubA()
	b, unsubB := hub.Subscribe()
	defer unsubB()

	id := uuid.New()
	hub.Broadcast(JobEvent{Event: EventJobProgress, JobID: id, Progress: 40})

	if ev := recvEvent(t, a, time.Second); ev.JobID != id || ev.Progress != 40 {
		t.Fatalf("unexpected event on a: %+v", ev)
	}
	if ev := recvEvent(t, b, time.Second); ev.JobID != id {
		t.Fatalf("unexpected event on b: %+v", ev)
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(logger.NewNop())
	ch, unsub := hub.Subscribe()
	unsub()
	if hub.Clients() != 0 {
		t.Fatalf("expected no clients after unsubscribe")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	hub.Broadcast(JobEvent{Event: EventJobDone})
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(logger.NewNop())
	ch, unsub := hub.Subscribe()
	defer unsub()
	for i := 0; i < clientBuffer+5; i++ {
		hub.Broadcast(JobEvent{Event: EventJobProgress, Progress: i})
	}
	if len(ch) != clientBuffer {
		t.Fatalf("expected %d buffered events, got %d", clientBuffer, len(ch))
	}
}
