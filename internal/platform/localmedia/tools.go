package localmedia

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/platform/ctxutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/envutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

// Tools is the glue around system binaries.
//
// REQUIRED BINARIES in worker runtime:
// - ffmpeg for audio extraction, video compression and audio segmentation
// - ffprobe for media analysis
//
// This service is synchronous and deterministic, but should be called from
// worker jobs, not request handlers.
type Tools interface {
	AssertReady(ctx context.Context) error

	Probe(ctx context.Context, mediaPath string) (*ProbeResult, error)

	ExtractAudio(ctx context.Context, videoPath string, outPath string, opts AudioExtractOptions) (string, error)
	CompressVideo(ctx context.Context, videoPath string, outPath string, opts CompressOptions) (string, error)
	RemuxToMP4(ctx context.Context, videoPath string, outPath string) (string, error)
	SegmentAudio(ctx context.Context, audioPath string, outDir string, opts SegmentOptions) ([]string, error)

	// ScratchDir is the per-record working directory where stage outputs live
	// until the cleanup stage removes them.
	ScratchDir(tenantID, recordID uuid.UUID) string
	CleanupScratch(ctx context.Context, tenantID, recordID uuid.UUID) error
}

// ProbeResult is the subset of ffprobe output the pipeline decides on.
type ProbeResult struct {
	Container   string  `json:"container"`
	DurationSec float64 `json:"duration_sec"`
	SizeBytes   int64   `json:"size_bytes"`
	BitRate     int64   `json:"bit_rate"`

	HasVideo   bool   `json:"has_video"`
	VideoCodec string `json:"video_codec,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`

	HasAudio   bool   `json:"has_audio"`
	AudioCodec string `json:"audio_codec,omitempty"`
}

// IsMP4 reports whether the container is an MP4 family container. ffprobe
// reports these as a comma list ("mov,mp4,m4a,3gp,3g2,mj2").
func (p *ProbeResult) IsMP4() bool {
	c := strings.ToLower(p.Container)
	return strings.Contains(c, "mp4") || strings.Contains(c, "mov")
}

type AudioExtractOptions struct {
	SampleRateHz int
	Channels     int
	Format       string // "mp3", "wav" or "flac"
	BitRateKbps  int    // mp3 only
}

type CompressOptions struct {
	CRF        int
	Preset     string
	MaxWidth   int
	MaxHeight  int
	AudioCodec string // default "aac"
}

type SegmentOptions struct {
	ChunkSeconds int
	Format       string // "mp3" or "flac"
}

type tools struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string

	workRoot string

	defaultTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	slog := log.With("service", "MediaTools")
	return &tools{
		log:            slog,
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		workRoot:       envutil.String("MEDIA_WORK_ROOT", filepath.Join(os.TempDir(), "processmind-media")),
		defaultTimeout: envutil.Duration("MEDIA_TOOL_TIMEOUT", 30*time.Minute),
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *tools) ScratchDir(tenantID, recordID uuid.UUID) string {
	return filepath.Join(m.workRoot, tenantID.String(), recordID.String())
}

func (m *tools) CleanupScratch(ctx context.Context, tenantID, recordID uuid.UUID) error {
	dir := m.ScratchDir(tenantID, recordID)
	// Refuse to remove anything outside the work root.
	if rel, err := filepath.Rel(m.workRoot, dir); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("scratch dir %q escapes work root %q", dir, m.workRoot)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	// Drop the tenant dir too when it emptied out; best effort.
	_ = os.Remove(filepath.Dir(dir))
	return nil
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

func (m *tools) Probe(ctx context.Context, mediaPath string) (*ProbeResult, error) {
	ctx = ctxutil.Default(ctx)
	if mediaPath == "" {
		return nil, fmt.Errorf("mediaPath required")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		mediaPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var raw ffprobeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	res := &ProbeResult{
		Container:   raw.Format.FormatName,
		DurationSec: parseFloat(raw.Format.Duration),
		SizeBytes:   parseInt64(raw.Format.Size),
		BitRate:     parseInt64(raw.Format.BitRate),
	}
	for _, st := range raw.Streams {
		switch st.CodecType {
		case "video":
			if !res.HasVideo {
				res.HasVideo = true
				res.VideoCodec = st.CodecName
				res.Width = st.Width
				res.Height = st.Height
			}
		case "audio":
			if !res.HasAudio {
				res.HasAudio = true
				res.AudioCodec = st.CodecName
			}
		}
	}
	return res, nil
}

func (m *tools) ExtractAudio(ctx context.Context, videoPath string, outPath string, opts AudioExtractOptions) (string, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return "", fmt.Errorf("videoPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}

	sr := opts.SampleRateHz
	if sr <= 0 {
		sr = 16000
	}
	ch := opts.Channels
	if ch <= 0 {
		ch = 1
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "mp3"
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", strconv.Itoa(ch),
		"-ar", strconv.Itoa(sr),
	}
	switch format {
	case "mp3":
		kbps := opts.BitRateKbps
		if kbps <= 0 {
			kbps = 64
		}
		args = append(args, "-codec:a", "libmp3lame", "-b:a", fmt.Sprintf("%dk", kbps), "-f", "mp3", outPath)
	case "wav":
		args = append(args, "-f", "wav", outPath)
	case "flac":
		args = append(args, "-f", "flac", outPath)
	default:
		return "", fmt.Errorf("unsupported audio format: %s", format)
	}

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg extract audio failed: %w; out=%s", err, string(out))
	}

	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("audio output missing at %s", outPath)
	}
	return outPath, nil
}

func (m *tools) CompressVideo(ctx context.Context, videoPath string, outPath string, opts CompressOptions) (string, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return "", fmt.Errorf("videoPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}

	crf := opts.CRF
	if crf <= 0 {
		crf = 26
	}
	preset := strings.TrimSpace(opts.Preset)
	if preset == "" {
		preset = "medium"
	}
	acodec := strings.TrimSpace(opts.AudioCodec)
	if acodec == "" {
		acodec = "aac"
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", videoPath,
		"-codec:v", "libx264",
		"-crf", strconv.Itoa(crf),
		"-preset", preset,
	}
	if opts.MaxWidth > 0 && opts.MaxHeight > 0 {
		// Downscale only; never upscale, and keep even dimensions for yuv420p.
		args = append(args, "-vf", fmt.Sprintf(
			"scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease:force_divisible_by=2",
			opts.MaxWidth, opts.MaxHeight,
		))
	}
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-codec:a", acodec,
		"-movflags", "+faststart",
		"-f", "mp4",
		outPath,
	)

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg compress failed: %w; out=%s", err, string(out))
	}

	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("compressed output missing at %s", outPath)
	}
	return outPath, nil
}

func (m *tools) RemuxToMP4(ctx context.Context, videoPath string, outPath string) (string, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return "", fmt.Errorf("videoPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-codec", "copy",
		"-movflags", "+faststart",
		"-f", "mp4",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg remux failed: %w; out=%s", err, string(out))
	}

	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("remuxed output missing at %s", outPath)
	}
	return outPath, nil
}

func (m *tools) SegmentAudio(ctx context.Context, audioPath string, outDir string, opts SegmentOptions) ([]string, error) {
	ctx = ctxutil.Default(ctx)
	if audioPath == "" {
		return nil, fmt.Errorf("audioPath required")
	}
	if outDir == "" {
		return nil, fmt.Errorf("outDir required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}

	chunk := opts.ChunkSeconds
	if chunk <= 0 {
		chunk = 300
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "mp3"
	}
	if format != "mp3" && format != "flac" {
		return nil, fmt.Errorf("unsupported segment format: %s", format)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	outPattern := filepath.Join(outDir, "chunk_%04d."+format)
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-i", audioPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(chunk),
		"-codec", "copy",
		outPattern,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg segment failed: %w; out=%s", err, string(out))
	}

	chunks, _ := globSorted(outDir, `^chunk_\d+\.(mp3|flac)$`)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced by ffmpeg; out=%s", string(out))
	}
	return chunks, nil
}

// ---------- helpers ----------

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func globSorted(dir string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if re.MatchString(strings.ToLower(e.Name())) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
