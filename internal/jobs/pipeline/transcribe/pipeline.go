package transcribe

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"gorm.io/datatypes"

	"github.com/OperativeX/processmind-sub001/internal/domain"
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
	// Only a failed sibling stops the audio branch. The video branch may
	// already have completed the record; the transcript still lands.
	if rec.Status == domain.StatusFailed {
		jc.Succeed("skipped", map[string]any{"reason": "record already failed"})
		return nil
	}

	chunkDir := jc.PayloadString("chunk_dir")
	if chunkDir == "" {
		return perr.Fatal(fmt.Errorf("missing chunk_dir in payload"))
	}
	chunks, err := filepath.Glob(filepath.Join(chunkDir, "chunk_*"))
	if err != nil || len(chunks) == 0 {
		return perr.Fatal(fmt.Errorf("no audio chunks under %s: %v", chunkDir, err))
	}
	sort.Strings(chunks)

	jc.Progress("transcribe", 20, fmt.Sprintf("Transcribing %d chunks", len(chunks)))
	_ = p.records.SetProgress(dbc, rec.ID, 40, "transcribe", "Transcribing audio")

	result, err := p.speech.TranscribeChunks(jc.Ctx, chunks, jc.PayloadString("language"))
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	var segmentsJSON datatypes.JSON
	if len(result.Segments) > 0 {
		if b, err := json.Marshal(result.Segments); err == nil {
			segmentsJSON = datatypes.JSON(b)
		}
	}
	updates := map[string]interface{}{
		"transcript_text": result.Text,
	}
	if segmentsJSON != nil {
		updates["transcript"] = segmentsJSON
	}
	if _, err := p.records.UpdateFieldsUnlessStatus(dbc, rec.ID,
		[]domain.ProcessStatus{domain.StatusFailed},
		updates,
	); err != nil {
		return fmt.Errorf("record transcript: %w", err)
	}

	if _, err := p.jobsSvc.EnqueueDependents(dbc, rec, p.Type(), nil); err != nil {
		return fmt.Errorf("enqueue dependents: %w", err)
	}

	_ = p.records.SetProgress(dbc, rec.ID, 60, "transcribe", "Transcript ready")
	jc.Succeed("done", map[string]any{
		"chars":    len(result.Text),
		"segments": len(result.Segments),
		"warnings": result.Warnings,
	})
	return nil
}
