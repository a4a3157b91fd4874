package local_cleanup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	jobrt "github.com/OperativeX/processmind-sub001/internal/jobs/runtime"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/perr"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}

	recID, ok := jc.RecordID()
	if !ok {
		return perr.Fatal(fmt.Errorf("missing record_id"))
	}
	rec, err := p.records.GetByID(dbc, recID)
	if err != nil {
		return err
	}

	// The audio branch reads chunks out of the same scratch directory. As
	// long as any of its stages is still runnable, push this job back by
	// another grace period without charging an attempt.
	for _, jobType := range []string{jobs.TypeAudioExtract, jobs.TypeAudioSegment, jobs.TypeTranscribe, jobs.TypeAIInsights} {
		busy, err := p.runs.HasRunnableForRecord(dbc, rec.ID, jobType)
		if err != nil {
			return err
		}
		if busy {
			p.log.Info("Sibling stage still active, deferring cleanup",
				"record_id", rec.ID,
				"waiting_on", jobType,
			)
			return p.deferCleanup(dbc, jc)
		}
	}

	jc.Progress("cleanup", 30, "Removing local files")

	var freed int64
	scratch := p.media.ScratchDir(rec.TenantID, rec.ID)
	if fi, err := os.Stat(scratch); err == nil && fi.IsDir() {
		freed = dirSize(scratch)
	}
	if err := p.media.CleanupScratch(jc.Ctx, rec.TenantID, rec.ID); err != nil {
		// Best-effort: log and succeed, the next delete or a disk sweep
		// gets another chance.
		p.log.Warn("Scratch cleanup failed", "record_id", rec.ID, "error", err)
		jc.Succeed("partial", map[string]any{"error": err.Error()})
		return nil
	}

	// With skipped compression the original itself is the uploaded
	// artifact, so it lives on remotely; otherwise only the re-encode was
	// uploaded and the original is simply gone.
	originalStorage := domain.StorageTypeDeleted
	if rec.SkippedCompression {
		originalStorage = domain.StorageTypeRemote
	}
	_ = p.records.UpdateFields(dbc, rec.ID, map[string]interface{}{
		"original_storage_type": originalStorage,
	})

	p.log.Info("Local files removed", "record_id", rec.ID, "bytes_freed", freed)
	jc.Succeed("done", map[string]any{"bytes_freed": freed})
	return nil
}

// deferCleanup requeues the job for one more grace period. The attempt that
// claimed it is refunded so waiting on a slow transcription cannot exhaust
// the retry budget.
func (p *Pipeline) deferCleanup(dbc dbctx.Context, jc *jobrt.Context) error {
	runAt := time.Now().Add(jobs.CleanupGracePeriod())
	return p.runs.UpdateFields(dbc, jc.Job.ID, map[string]interface{}{
		"status":       domain.JobStatusQueued,
		"run_at":       runAt,
		"attempts":     gorm.Expr("GREATEST(attempts - 1, 0)"),
		"locked_at":    nil,
		"heartbeat_at": nil,
	})
}

func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}
