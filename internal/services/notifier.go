package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/realtime"
)

// =========================
// Job notifier
// =========================

type JobNotifier interface {
	JobCreated(userID uuid.UUID, job *domain.JobRun)
	JobProgress(userID uuid.UUID, job *domain.JobRun, stage string, progress int, message string)
	JobFailed(userID uuid.UUID, job *domain.JobRun, stage string, errorMessage string)
	JobDone(userID uuid.UUID, job *domain.JobRun)
}

type jobNotifier struct {
	emit SSEEmitter
}

func NewJobNotifier(emit SSEEmitter) JobNotifier {
	return &jobNotifier{emit: emit}
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, job *domain.JobRun) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: userID.String(),
		Event:   realtime.SSEEventJobCreated,
		Data:    map[string]any{"job": job},
	})
}

func (n *jobNotifier) JobProgress(userID uuid.UUID, job *domain.JobRun, stage string, progress int, message string) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: userID.String(),
		Event:   realtime.SSEEventJobProgress,
		Data: map[string]any{
			"job_id":   safeJobID(job),
			"job_type": safeJobType(job),
			"stage":    stage,
			"progress": progress,
			"message":  message,
			"job":      job,
		},
	})
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, job *domain.JobRun, stage string, errorMessage string) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: userID.String(),
		Event:   realtime.SSEEventJobFailed,
		Data: map[string]any{
			"job_id":   safeJobID(job),
			"job_type": safeJobType(job),
			"stage":    stage,
			"error":    errorMessage,
			"job":      job,
		},
	})
}

func (n *jobNotifier) JobDone(userID uuid.UUID, job *domain.JobRun) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: userID.String(),
		Event:   realtime.SSEEventJobDone,
		Data: map[string]any{
			"job_id":   safeJobID(job),
			"job_type": safeJobType(job),
			"job":      job,
		},
	})
}

// =========================
// Record notifier
// =========================

// RecordNotifier surfaces process-record level transitions (the thing the
// end user actually watches, as opposed to individual queue jobs).
type RecordNotifier interface {
	RecordProgress(userID uuid.UUID, recordID uuid.UUID, status domain.ProcessStatus, progress int, stage, message string)
	RecordFailed(userID uuid.UUID, recordID uuid.UUID, stage, errorMessage string)
	RecordCompleted(userID uuid.UUID, recordID uuid.UUID)
}

type recordNotifier struct {
	emit SSEEmitter
}

func NewRecordNotifier(emit SSEEmitter) RecordNotifier {
	return &recordNotifier{emit: emit}
}

func (n *recordNotifier) RecordProgress(userID uuid.UUID, recordID uuid.UUID, status domain.ProcessStatus, progress int, stage, message string) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: userID.String(),
		Event:   realtime.SSEEventRecordProgress,
		Data: map[string]any{
			"record_id": recordID,
			"status":    status,
			"progress":  progress,
			"stage":     stage,
			"message":   message,
		},
	})
}

func (n *recordNotifier) RecordFailed(userID uuid.UUID, recordID uuid.UUID, stage, errorMessage string) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: userID.String(),
		Event:   realtime.SSEEventRecordFailed,
		Data: map[string]any{
			"record_id": recordID,
			"stage":     stage,
			"error":     errorMessage,
		},
	})
}

func (n *recordNotifier) RecordCompleted(userID uuid.UUID, recordID uuid.UUID) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: userID.String(),
		Event:   realtime.SSEEventRecordCompleted,
		Data: map[string]any{
			"record_id": recordID,
		},
	})
}

// =========================
// helpers
// =========================

func safeJobID(job *domain.JobRun) uuid.UUID {
	if job == nil {
		return uuid.Nil
	}
	return job.ID
}

func safeJobType(job *domain.JobRun) string {
	if job == nil {
		return ""
	}
	return job.JobType
}
