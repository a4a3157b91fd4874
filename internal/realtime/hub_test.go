package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubDeliversInOrderAndSurvivesReconnect(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := uuid.New().String()

	clientA := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventRecordProgress, Data: map[string]any{"pct": 5}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventRecordProgress, Data: map[string]any{"pct": 80}})

	first := recvMessage(t, clientA.Outbound, time.Second)
	second := recvMessage(t, clientA.Outbound, time.Second)
	if first.Event != SSEEventRecordProgress || second.Event != SSEEventRecordProgress {
		t.Fatalf("unexpected events: %s then %s", first.Event, second.Event)
	}

	hub.CloseClient(clientA)
	select {
	case _, ok := <-clientA.Outbound:
		if ok {
			t.Fatalf("clientA outbound should be closed after disconnect")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for clientA channel close")
	}

	clientB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventRecordCompleted})
	got := recvMessage(t, clientB.Outbound, time.Second)
	if got.Event != SSEEventRecordCompleted {
		t.Fatalf("reconnect event: want=%s got=%s", SSEEventRecordCompleted, got.Event)
	}
}

func TestSSEHubIgnoresUnknownChannel(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, uuid.New().String())

	hub.Broadcast(SSEMessage{Channel: "nobody-listens-here", Event: SSEEventJobDone})

	select {
	case msg := <-client.Outbound:
		t.Fatalf("client should not receive cross-channel message, got %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
