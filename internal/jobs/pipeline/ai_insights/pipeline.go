package ai_insights

import (
	"encoding/json"
	"fmt"
	"strings"

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
	if rec.Status == domain.StatusFailed {
		jc.Succeed("skipped", map[string]any{"reason": "record already failed"})
		return nil
	}

	if strings.TrimSpace(rec.TranscriptText) == "" {
		// A record with no recognizable speech still completes; there is
		// just nothing to analyze.
		p.log.Info("Empty transcript, skipping analysis", "record_id", rec.ID)
		jc.Succeed("no_transcript", nil)
		return nil
	}

	jc.Progress("analyze", 30, "Analyzing transcript")
	_ = p.records.SetProgress(dbc, rec.ID, 70, "ai_insights", "Analyzing transcript")

	insights, err := p.insights.Analyze(jc.Ctx, rec.TranscriptText)
	if err != nil {
		return fmt.Errorf("analyze transcript: %w", err)
	}

	var tagsJSON datatypes.JSON
	if b, err := json.Marshal(insights.Tags); err == nil {
		tagsJSON = datatypes.JSON(b)
	}
	if _, err := p.records.UpdateFieldsUnlessStatus(dbc, rec.ID,
		[]domain.ProcessStatus{domain.StatusFailed},
		map[string]interface{}{
			"ai_summary": insights.Summary,
			"ai_tags":    tagsJSON,
		},
	); err != nil {
		return fmt.Errorf("record insights: %w", err)
	}

	_ = p.records.SetProgress(dbc, rec.ID, 75, "ai_insights", "Insights ready")
	jc.Succeed("done", map[string]any{
		"summary_chars": len(insights.Summary),
		"tags":          insights.Tags,
	})
	return nil
}
