package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"manga-translate-pipeline/internal/assets"
	"manga-translate-pipeline/internal/domain"
	"manga-translate-pipeline/internal/domain/model"
	"manga-translate-pipeline/internal/domain/ports/gateway"
	"manga-translate-pipeline/internal/infra/metrics"
)

// runStageB executes the rendering pass for one page: gate on QA policy,
// call the image model, persist the output, and recompute job progress.
func (p *Pipeline) runStageB(ctx context.Context, pageID string) {
	page, job, ok := p.loadPage(ctx, pageID)
	if !ok {
		return
	}

	// Stage A's artifact is the prerequisite. Its absence is a policy
	// halt, not a failure.
	if page.JSONPath == "" {
		p.blockPage(ctx, page, model.StageB, "missing stage A layout")
		return
	}

	if err := p.transition(ctx, page, model.PageStatusBRunning, ""); err != nil {
		p.log.Debug().Err(err).Str("page_id", pageID).Msg("stage B not started")
		return
	}

	eff, apiKey, err := p.settings.ResolveJob(ctx, job)
	if err != nil {
		p.failPage(ctx, page, model.StageB, err)
		return
	}

	img, err := p.executeStageB(ctx, page, eff, apiKey)
	if err != nil {
		if domain.IsPolicyHalt(err) {
			p.blockPage(ctx, page, model.StageB, err.Error())
		} else {
			p.failPage(ctx, page, model.StageB, err)
		}
		return
	}

	outPath, err := p.artifacts.WriteOutput(job.ID, page.PageIndex, "png", img)
	if err != nil {
		p.failPage(ctx, page, model.StageB, fmt.Errorf("persist output: %w", err))
		return
	}
	page.OutputPath = outPath

	if err := p.transition(ctx, page, model.PageStatusDone, ""); err != nil {
		p.log.Warn().Err(err).Str("page_id", pageID).Msg("stage B result dropped")
		return
	}
	metrics.IncPage(string(model.StageB), string(model.PageStatusDone))

	p.recomputeProgress(ctx, job.ID)
}

// executeStageB loads and QA-gates the layout, then performs the render
// call. Returns the edited image bytes; a QA block surfaces as PolicyHalt.
func (p *Pipeline) executeStageB(ctx context.Context, page *model.Page, eff Effective, apiKey string) ([]byte, error) {
	rawLayout, err := p.artifacts.Read(page.JSONPath)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	var layout model.PageLayout
	if err := json.Unmarshal(rawLayout, &layout); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	decision := ClassifyLayout(&layout, QAMode(eff.String("qa_mode", string(QAModeAuto))))
	if !decision.Proceed {
		return nil, domain.Haltf("%s", decision.Reason)
	}

	if apiKey == "" {
		return nil, domain.Validationf("no API key configured")
	}

	payload, err := json.Marshal(decision.Filtered)
	if err != nil {
		return nil, fmt.Errorf("serialize layout: %w", err)
	}
	img, err := p.artifacts.Read(page.OriginalPath)
	if err != nil {
		return nil, fmt.Errorf("read original image: %w", err)
	}

	return p.gw.CallRender(ctx, gateway.RenderRequest{
		Image:  img,
		Prompt: assets.StageBPrompt,
		Layout: payload,
		Config: gateway.CallConfig{
			BaseURL:  eff.String("openai_base_url", "https://api.openai.com"),
			Model:    eff.String("model_b", ""),
			Protocol: eff.String("model_b_protocol", gateway.ProtocolImagesEdits),
			Endpoint: eff.String("model_b_endpoint", "/v1/images/edits"),
			Timeout:  eff.Seconds("stage_b_timeout", 300),
			Retries:  eff.Int("retries", 1),
		},
		APIKey: apiKey,
	})
}
