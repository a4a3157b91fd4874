package video_compress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

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
	if rec.Status.IsTerminal() {
		jc.Succeed("skipped", map[string]any{"reason": "record already " + string(rec.Status)})
		return nil
	}
	if _, err := os.Stat(rec.OriginalPath); err != nil {
		return perr.Fatal(fmt.Errorf("original file missing: %w", err))
	}

	jc.Progress("probe", 5, "Inspecting video")
	probe, err := p.media.Probe(jc.Ctx, rec.OriginalPath)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	if _, err := p.records.UpdateFieldsUnlessStatus(dbc, rec.ID,
		domain.BlockedSources(domain.StatusCompressing),
		map[string]interface{}{"status": domain.StatusCompressing},
	); err != nil {
		return fmt.Errorf("set compressing: %w", err)
	}
	_ = p.records.SetProgress(dbc, rec.ID, 30, "video_compress", "Optimizing video")

	scratch := p.media.ScratchDir(rec.TenantID, rec.ID)
	var (
		processedPath string
		skipped       bool
	)
	if !probe.HasVideo {
		// Audio-only input: nothing to transcode, the original is the
		// artifact that gets uploaded.
		processedPath = rec.OriginalPath
		skipped = true
	} else if alreadyOptimized(probe) {
		jc.Progress("remux", 40, "Already optimized, remuxing")
		if probe.IsMP4() {
			processedPath = rec.OriginalPath
		} else {
			processedPath, err = p.media.RemuxToMP4(jc.Ctx, rec.OriginalPath, filepath.Join(scratch, "processed.mp4"))
			if err != nil {
				return fmt.Errorf("remux: %w", err)
			}
		}
		skipped = true
	} else {
		jc.Progress("transcode", 40, "Transcoding video")
		processedPath, err = p.media.CompressVideo(jc.Ctx, rec.OriginalPath, filepath.Join(scratch, "processed.mp4"), localmedia.CompressOptions{
			CRF:       envutil.Int("VIDEO_CRF", 26),
			Preset:    envutil.String("VIDEO_PRESET", "medium"),
			MaxWidth:  envutil.Int("VIDEO_MAX_WIDTH", 1920),
			MaxHeight: envutil.Int("VIDEO_MAX_HEIGHT", 1080),
		})
		if err != nil {
			return fmt.Errorf("transcode: %w", err)
		}
	}

	fi, err := os.Stat(processedPath)
	if err != nil || fi.Size() == 0 {
		return fmt.Errorf("processed file empty or unreadable: %v", err)
	}

	ratio := 0.0
	if !skipped && rec.OriginalSize > 0 {
		ratio = 1.0 - float64(fi.Size())/float64(rec.OriginalSize)
		if ratio < 0 {
			ratio = 0
		}
	}

	if _, err := p.records.UpdateFieldsUnlessStatus(dbc, rec.ID,
		[]domain.ProcessStatus{domain.StatusFailed},
		map[string]interface{}{
			"processed_path":         processedPath,
			"processed_size":         fi.Size(),
			"processed_storage_type": domain.StorageTypeLocal,
			"compression_ratio":      ratio,
			"skipped_compression":    skipped,
		},
	); err != nil {
		return fmt.Errorf("record processed file: %w", err)
	}

	if _, err := p.jobsSvc.EnqueueDependents(dbc, rec, p.Type(), map[string]any{
		"processed_path": processedPath,
	}); err != nil {
		return fmt.Errorf("enqueue dependents: %w", err)
	}

	_ = p.records.SetProgress(dbc, rec.ID, domain.ProgressPreUpload, "video_compress", "Video ready for upload")
	jc.Succeed("done", map[string]any{
		"processed_path":      processedPath,
		"processed_bytes":     fi.Size(),
		"skipped_compression": skipped,
		"compression_ratio":   ratio,
	})
	return nil
}

// alreadyOptimized decides whether a transcode would be wasted work: the
// stream is H.264/H.265, within 1080p, and under the bitrate ceiling. Such
// inputs are remuxed (stream copy) instead of re-encoded.
func alreadyOptimized(probe *localmedia.ProbeResult) bool {
	codec := strings.ToLower(probe.VideoCodec)
	if codec != "h264" && codec != "hevc" && codec != "h265" {
		return false
	}
	maxW := envutil.Int("VIDEO_MAX_WIDTH", 1920)
	maxH := envutil.Int("VIDEO_MAX_HEIGHT", 1080)
	if probe.Width > maxW || probe.Height > maxH {
		return false
	}
	maxBitrate := envutil.Int64("VIDEO_MAX_BITRATE", 5_000_000)
	return probe.BitRate > 0 && probe.BitRate < maxBitrate
}
