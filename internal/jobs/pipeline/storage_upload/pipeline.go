package storage_upload

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/OperativeX/processmind-sub001/internal/domain"
	jobrt "github.com/OperativeX/processmind-sub001/internal/jobs/runtime"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/gcp"
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
	if rec.Status.IsTerminal() {
		jc.Succeed("skipped", map[string]any{"reason": "record already " + string(rec.Status)})
		return nil
	}

	localPath := rec.ProcessedPath
	if localPath == "" {
		localPath = jc.PayloadString("processed_path")
	}
	if localPath == "" {
		return perr.Fatal(fmt.Errorf("no processed file on record or payload"))
	}
	fi, err := os.Stat(localPath)
	if err != nil {
		return perr.Fatal(fmt.Errorf("processed file missing: %w", err))
	}
	if fi.Size() == 0 {
		return perr.Fatal(fmt.Errorf("processed file is empty"))
	}

	if _, err := p.records.UpdateFieldsUnlessStatus(dbc, rec.ID,
		domain.BlockedSources(domain.StatusUploading),
		map[string]interface{}{"status": domain.StatusUploading},
	); err != nil {
		return fmt.Errorf("set uploading: %w", err)
	}
	_ = p.records.SetProgress(dbc, rec.ID, domain.ProgressUploading, "storage_upload", "Uploading to storage")
	jc.Progress("upload", 30, "Uploading processed file")

	key := gcp.ObjectKey(rec.TenantID, rec.ID, "processed", filepath.Base(localPath))
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open processed file: %w", err)
	}
	uploadErr := p.bucket.UploadFile(jc.Ctx, key, f)
	_ = f.Close()
	if uploadErr != nil {
		return fmt.Errorf("upload %s: %w", key, uploadErr)
	}

	// Verify the object actually landed with the size we sent before any
	// status or accounting writes reference it.
	attrs, err := p.bucket.GetObjectAttrs(jc.Ctx, key)
	if err != nil {
		return fmt.Errorf("verify upload %s: %w", key, err)
	}
	if attrs.Size != fi.Size() {
		return fmt.Errorf("upload size mismatch for %s: local=%d remote=%d", key, fi.Size(), attrs.Size)
	}

	now := time.Now()
	if _, err := p.records.UpdateFieldsUnlessStatus(dbc, rec.ID,
		domain.BlockedSources(domain.StatusUploadComplete),
		map[string]interface{}{
			"status":                 domain.StatusUploadComplete,
			"processed_remote_key":   key,
			"processed_remote_url":   p.bucket.GetPublicURL(key),
			"processed_storage_type": domain.StorageTypeRemote,
			"processed_uploaded_at":  now,
			"processed_size":         fi.Size(),
		},
	); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	_ = p.records.SetProgress(dbc, rec.ID, domain.ProgressUploaded, "storage_upload", "Upload verified")

	applied, err := p.usage.RecordUpload(dbc, rec, p.Type(), fi.Size())
	if err != nil {
		// The object is in the bucket; failing the stage now would
		// re-upload on retry for nothing. Reconciliation picks the bytes
		// up later.
		p.log.Error("Usage accounting failed after upload", "record_id", rec.ID, "error", err)
	} else if !applied {
		p.log.Info("Upload bytes already counted", "record_id", rec.ID, "key", key)
	}

	completed, err := p.records.UpdateFieldsUnlessStatus(dbc, rec.ID,
		domain.BlockedSources(domain.StatusCompleted),
		map[string]interface{}{
			"status":           domain.StatusCompleted,
			"progress_percent": domain.ProgressCompleted,
			"progress_stage":   "completed",
			"progress_message": "Processing complete",
		},
	)
	if err != nil {
		return fmt.Errorf("complete record: %w", err)
	}
	if completed {
		// Winning the completed transition is the claim ticket for the
		// fan-out: a redelivered job loses the guarded update and must not
		// queue a second cleanup. Cleanup itself is best-effort, so an
		// enqueue error is logged rather than retried through a re-upload.
		if _, err := p.jobsSvc.EnqueueDependents(dbc, rec, p.Type(), nil); err != nil {
			p.log.Error("Enqueue dependents failed after completion", "record_id", rec.ID, "error", err)
		}
		if p.notify != nil {
			p.notify.RecordCompleted(rec.OwnerUserID, rec.ID)
		}
	}

	jc.Succeed("done", map[string]any{
		"remote_key":   key,
		"remote_bytes": attrs.Size,
	})
	return nil
}
