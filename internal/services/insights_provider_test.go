package services

import (
	"context"
	"strings"
	"testing"

	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestAnalyzeSummaryTakesLeadSentences(t *testing.T) {
	p := NewInsightsProvider(testLogger(t))

	transcript := "Kubernetes networking starts with pods. Every pod gets an address. " +
		"Services route traffic between pods. The fourth sentence must not appear. " +
		"Neither should the fifth."
	out, err := p.Analyze(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !strings.HasPrefix(out.Summary, "Kubernetes networking starts with pods") {
		t.Fatalf("summary should start with the first sentence: %q", out.Summary)
	}
	if strings.Contains(out.Summary, "fourth sentence") {
		t.Fatalf("summary should stop after three sentences: %q", out.Summary)
	}
	if !strings.HasSuffix(out.Summary, ".") {
		t.Fatalf("summary should end with a period: %q", out.Summary)
	}
}

func TestAnalyzeTagsRankByFrequency(t *testing.T) {
	p := NewInsightsProvider(testLogger(t))

	transcript := "Deployment deployment deployment rollout rollout cluster. " +
		"They they they once. Tiny cat cat cat."
	out, err := p.Analyze(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(out.Tags) == 0 || out.Tags[0] != "deployment" {
		t.Fatalf("most frequent token should rank first: %v", out.Tags)
	}
	for _, tag := range out.Tags {
		if tag == "they" {
			t.Fatalf("stopword leaked into tags: %v", out.Tags)
		}
		if tag == "cat" {
			t.Fatalf("short tokens should be dropped: %v", out.Tags)
		}
		if tag == "cluster" {
			t.Fatalf("single-occurrence tokens should be dropped: %v", out.Tags)
		}
	}
}

func TestAnalyzeRejectsEmptyTranscript(t *testing.T) {
	p := NewInsightsProvider(testLogger(t))
	if _, err := p.Analyze(context.Background(), "   \n"); err == nil {
		t.Fatal("expected error for empty transcript")
	}
}
