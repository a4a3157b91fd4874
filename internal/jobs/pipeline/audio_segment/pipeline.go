package audio_segment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/OperativeX/processmind-sub001/internal/domain"
	jobrt "github.com/OperativeX/processmind-sub001/internal/jobs/runtime"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/envutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/localmedia"
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
	// already have completed the record; the chunks still get produced.
	if rec.Status == domain.StatusFailed {
		jc.Succeed("skipped", map[string]any{"reason": "record already failed"})
		return nil
	}

	audioPath := rec.AudioPath
	if audioPath == "" {
		audioPath = jc.PayloadString("audio_path")
	}
	if audioPath == "" {
		return perr.Fatal(fmt.Errorf("no audio path on record or payload"))
	}
	if _, err := os.Stat(audioPath); err != nil {
		return perr.Fatal(fmt.Errorf("audio file missing: %w", err))
	}

	jc.Progress("segment", 20, "Segmenting audio")
	_ = p.records.SetProgress(dbc, rec.ID, 25, "audio_segment", "Segmenting audio")

	chunkDir := filepath.Join(p.media.ScratchDir(rec.TenantID, rec.ID), "chunks")
	chunks, err := p.media.SegmentAudio(jc.Ctx, audioPath, chunkDir, localmedia.SegmentOptions{
		ChunkSeconds: envutil.Int("AUDIO_CHUNK_SECONDS", 120),
	})
	if err != nil {
		return fmt.Errorf("segment audio: %w", err)
	}
	if len(chunks) == 0 {
		return perr.Fatal(fmt.Errorf("segmentation produced no chunks"))
	}
	p.log.Info("Audio segmented", "record_id", rec.ID, "chunks", len(chunks))

	if _, err := p.jobsSvc.EnqueueDependents(dbc, rec, p.Type(), map[string]any{
		"chunk_dir":   chunkDir,
		"chunk_count": len(chunks),
	}); err != nil {
		return fmt.Errorf("enqueue dependents: %w", err)
	}

	_ = p.records.SetProgress(dbc, rec.ID, 30, "audio_segment", fmt.Sprintf("Audio split into %d chunks", len(chunks)))
	jc.Succeed("done", map[string]any{
		"chunk_dir":   chunkDir,
		"chunk_count": len(chunks),
	})
	return nil
}
