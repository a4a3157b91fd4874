package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/OperativeX/processmind-sub001/internal/platform/envutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

// InsightsProvider derives a short summary and a tag set from a finished
// transcript. The built-in implementation is purely lexical: lead sentences
// for the summary, term frequency for tags. It keeps the insights stage
// self-contained; an LLM-backed provider can replace it behind the same
// interface.
type InsightsProvider interface {
	Analyze(ctx context.Context, transcript string) (*Insights, error)
}

type Insights struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

type lexicalInsightsProvider struct {
	log          *logger.Logger
	maxSummary   int
	maxTags      int
	minTokenSize int
}

func NewInsightsProvider(baseLog *logger.Logger) InsightsProvider {
	return &lexicalInsightsProvider{
		log:          baseLog.With("service", "InsightsProvider"),
		maxSummary:   envutil.Int("INSIGHTS_SUMMARY_SENTENCES", 3),
		maxTags:      envutil.Int("INSIGHTS_MAX_TAGS", 8),
		minTokenSize: 4,
	}
}

var sentenceSplit = regexp.MustCompile(`[.!?]+[\s\n]+`)

func (p *lexicalInsightsProvider) Analyze(ctx context.Context, transcript string) (*Insights, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(transcript)
	if text == "" {
		return nil, fmt.Errorf("empty transcript")
	}

	out := &Insights{
		Summary: p.summarize(text),
		Tags:    p.tags(text),
	}
	p.log.Info("Transcript analyzed", "summary_chars", len(out.Summary), "tags", len(out.Tags))
	return out, nil
}

func (p *lexicalInsightsProvider) summarize(text string) string {
	sentences := sentenceSplit.Split(text, -1)
	var picked []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		picked = append(picked, s)
		if len(picked) >= p.maxSummary {
			break
		}
	}
	summary := strings.Join(picked, ". ")
	if summary != "" && !strings.HasSuffix(summary, ".") {
		summary += "."
	}
	return summary
}

var stopwords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true, "because": true,
	"been": true, "before": true, "being": true, "between": true, "could": true,
	"every": true, "from": true, "going": true, "have": true, "here": true,
	"into": true, "just": true, "like": true, "more": true, "most": true,
	"other": true, "over": true, "really": true, "some": true, "their": true,
	"them": true, "then": true, "there": true, "these": true, "they": true,
	"thing": true, "think": true, "this": true, "very": true,
	"want": true, "well": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "while": true, "will": true, "with": true,
	"would": true, "your": true,
}

func (p *lexicalInsightsProvider) tags(text string) []string {
	freq := map[string]int{}
	for _, raw := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(raw) < p.minTokenSize || stopwords[raw] {
			continue
		}
		freq[raw]++
	}

	type kv struct {
		word  string
		count int
	}
	ranked := make([]kv, 0, len(freq))
	for w, c := range freq {
		if c < 2 {
			continue
		}
		ranked = append(ranked, kv{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	tags := make([]string, 0, p.maxTags)
	for _, e := range ranked {
		tags = append(tags, e.word)
		if len(tags) >= p.maxTags {
			break
		}
	}
	return tags
}
