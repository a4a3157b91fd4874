package services

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/platform/envutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/gcp"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

// TranscriptionProvider turns a set of audio chunk files into a single
// ordered transcript. Chunks are transcribed concurrently (bounded by
// TRANSCRIBE_CONCURRENCY) and reassembled in chunk order regardless of
// completion order.
type TranscriptionProvider interface {
	TranscribeChunks(ctx context.Context, chunkPaths []string, langCode string) (*TranscriptionResult, error)
}

type TranscriptionResult struct {
	Text     string           `json:"text"`
	Segments []domain.Segment `json:"segments,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
	Provider string           `json:"provider"`
}

type transcriptionProvider struct {
	log    *logger.Logger
	speech gcp.Speech
}

func NewTranscriptionProvider(baseLog *logger.Logger, speech gcp.Speech) TranscriptionProvider {
	return &transcriptionProvider{
		log:    baseLog.With("service", "TranscriptionProvider"),
		speech: speech,
	}
}

func (p *transcriptionProvider) TranscribeChunks(ctx context.Context, chunkPaths []string, langCode string) (*TranscriptionResult, error) {
	if len(chunkPaths) == 0 {
		return nil, fmt.Errorf("no audio chunks")
	}
	if langCode == "" {
		langCode = envutil.String("TRANSCRIBE_LANGUAGE", "en-US")
	}

	ordered := append([]string(nil), chunkPaths...)
	sort.Strings(ordered)

	concurrency := envutil.Int("TRANSCRIBE_CONCURRENCY", 3)
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	results := make([]*gcp.SpeechResult, len(ordered))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, chunkPath := range ordered {
		i, chunkPath := i, chunkPath
		g.Go(func() error {
			audio, err := os.ReadFile(chunkPath)
			if err != nil {
				return fmt.Errorf("read chunk %s: %w", filepath.Base(chunkPath), err)
			}
			res, err := p.speech.TranscribeAudioBytes(gctx, audio, mimeForAudio(chunkPath), gcp.SpeechConfig{
				LanguageCode:               langCode,
				EnableAutomaticPunctuation: true,
				EnableWordTimeOffsets:      true,
			})
			if err != nil {
				return fmt.Errorf("transcribe chunk %s: %w", filepath.Base(chunkPath), err)
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			p.log.Info("Chunk transcribed", "chunk", filepath.Base(chunkPath), "chars", len(res.PrimaryText))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := &TranscriptionResult{Provider: "gcp_speech"}
	var parts []string
	for _, res := range results {
		if res == nil {
			continue
		}
		if txt := strings.TrimSpace(res.PrimaryText); txt != "" {
			parts = append(parts, txt)
		}
		out.Segments = append(out.Segments, res.Segments...)
		out.Warnings = append(out.Warnings, res.Warnings...)
	}
	out.Text = strings.Join(parts, "\n")
	if strings.TrimSpace(out.Text) == "" {
		out.Warnings = append(out.Warnings, "no speech recognized in any chunk")
	}
	return out, nil
}

func mimeForAudio(p string) string {
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(p))); mt != "" {
		return mt
	}
	return "audio/mpeg"
}
