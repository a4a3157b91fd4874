package audio_extract

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/OperativeX/processmind-sub001/internal/domain"
	jobrt "github.com/OperativeX/processmind-sub001/internal/jobs/runtime"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
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
	// already have completed the record; the audio output still lands.
	if rec.Status == domain.StatusFailed {
		jc.Succeed("skipped", map[string]any{"reason": "record already failed"})
		return nil
	}
	if _, err := os.Stat(rec.OriginalPath); err != nil {
		return perr.Fatal(fmt.Errorf("original file missing: %w", err))
	}

	jc.Progress("probe", 5, "Inspecting media")
	probe, err := p.media.Probe(jc.Ctx, rec.OriginalPath)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	if !probe.HasAudio {
		p.log.Info("No audio track, skipping audio branch", "record_id", rec.ID)
		_ = p.records.SetProgress(dbc, rec.ID, 10, "audio_extract", "No audio track")
		jc.Succeed("no_audio", map[string]any{"has_audio": false})
		return nil
	}

	jc.Progress("extract", 30, "Extracting audio track")
	_ = p.records.SetProgress(dbc, rec.ID, 10, "audio_extract", "Extracting audio")

	outPath := filepath.Join(p.media.ScratchDir(rec.TenantID, rec.ID), "audio.mp3")
	audioPath, err := p.media.ExtractAudio(jc.Ctx, rec.OriginalPath, outPath, localmedia.AudioExtractOptions{})
	if err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	fi, err := os.Stat(audioPath)
	if err != nil || fi.Size() == 0 {
		return fmt.Errorf("extracted audio empty or unreadable: %v", err)
	}

	if _, err := p.records.UpdateFieldsUnlessStatus(dbc, rec.ID,
		[]domain.ProcessStatus{domain.StatusFailed},
		map[string]interface{}{"audio_path": audioPath},
	); err != nil {
		return fmt.Errorf("record audio path: %w", err)
	}

	if _, err := p.jobsSvc.EnqueueDependents(dbc, rec, p.Type(), map[string]any{
		"audio_path": audioPath,
	}); err != nil {
		return fmt.Errorf("enqueue dependents: %w", err)
	}

	_ = p.records.SetProgress(dbc, rec.ID, 20, "audio_extract", "Audio extracted")
	jc.Succeed("done", map[string]any{
		"audio_path":  audioPath,
		"audio_bytes": fi.Size(),
		"duration":    probe.DurationSec,
	})
	return nil
}
