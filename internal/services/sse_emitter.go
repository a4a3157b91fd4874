package services

import (
	"context"

	"github.com/OperativeX/processmind-sub001/internal/realtime"
	"github.com/OperativeX/processmind-sub001/internal/realtime/bus"
)

type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

// HubEmitter delivers to the local hub only; used in single-process mode
// and in tests.
type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.Hub.Broadcast(msg)
}

// RedisEmitter publishes to the shared bus so every API replica's hub sees
// the message.
type RedisEmitter struct{ Bus bus.Bus }

func (e *RedisEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	_ = e.Bus.Publish(ctx, msg)
}
