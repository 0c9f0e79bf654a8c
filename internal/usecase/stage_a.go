package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"manga-translate-pipeline/internal/assets"
	"manga-translate-pipeline/internal/domain"
	"manga-translate-pipeline/internal/domain/model"
	"manga-translate-pipeline/internal/domain/ports/gateway"
	"manga-translate-pipeline/internal/domain/ports/queue"
	"manga-translate-pipeline/internal/infra/metrics"
)

// runStageA executes the extraction/translation pass for one page: mark it
// running, call the model, persist the structured layout, and hand the page
// to Stage B when the QA mode allows it.
func (p *Pipeline) runStageA(ctx context.Context, pageID string) {
	page, job, ok := p.loadPage(ctx, pageID)
	if !ok {
		return
	}

	// Persist the running state first so pollers see progress.
	if err := p.transition(ctx, page, model.PageStatusARunning, ""); err != nil {
		p.log.Debug().Err(err).Str("page_id", pageID).Msg("stage A not started")
		return
	}

	eff, apiKey, err := p.settings.ResolveJob(ctx, job)
	if err != nil {
		p.failPage(ctx, page, model.StageA, err)
		return
	}

	raw, err := p.executeStageA(ctx, page, eff, apiKey)
	if err != nil {
		p.failPage(ctx, page, model.StageA, err)
		return
	}

	pretty := prettyJSON(raw)
	jsonPath, err := p.artifacts.WriteLayout(job.ID, page.PageIndex, pretty)
	if err != nil {
		p.failPage(ctx, page, model.StageA, fmt.Errorf("persist layout: %w", err))
		return
	}
	page.JSONPath = jsonPath

	if err := p.transition(ctx, page, model.PageStatusADone, ""); err != nil {
		p.log.Warn().Err(err).Str("page_id", pageID).Msg("stage A result dropped")
		return
	}
	metrics.IncPage(string(model.StageA), string(model.PageStatusADone))

	if QAMode(eff.String("qa_mode", string(QAModeAuto))) == QAModeAuto {
		if err := p.queue.Enqueue(ctx, queue.Task{Stage: model.StageB, PageID: page.ID}); err != nil {
			p.log.Error().Err(err).Str("page_id", page.ID).Msg("enqueue stage B")
		}
	}
}

// executeStageA performs the model call and returns the normalized layout
// JSON. It never mutates page state; the caller maps the error to a
// transition.
func (p *Pipeline) executeStageA(ctx context.Context, page *model.Page, eff Effective, apiKey string) (json.RawMessage, error) {
	if apiKey == "" {
		return nil, domain.Validationf("no API key configured")
	}

	img, err := p.artifacts.Read(page.OriginalPath)
	if err != nil {
		return nil, fmt.Errorf("read original image: %w", err)
	}

	var schemaDoc json.RawMessage
	if eff.Bool("model_a_use_schema", true) {
		schemaDoc = assets.LayoutSchema
	}

	raw, err := p.gw.CallExtract(ctx, gateway.ExtractRequest{
		Image:        img,
		SystemPrompt: assets.StageAPrompt,
		ContextText:  p.ctxB.Build(ctx, page, eff),
		Schema:       schemaDoc,
		Config: gateway.CallConfig{
			BaseURL:  eff.String("openai_base_url", "https://api.openai.com"),
			Model:    eff.String("model_a", ""),
			Protocol: eff.String("model_a_protocol", gateway.ProtocolChatCompletions),
			Timeout:  eff.Seconds("stage_a_timeout", 120),
			Retries:  eff.Int("retries", 1),
		},
		APIKey: apiKey,
	})
	if err != nil {
		return nil, err
	}

	if schemaDoc != nil {
		if err := p.validateLayout(raw); err != nil {
			return nil, domain.Gatewayf(err, "stage A output failed schema validation")
		}
	}
	return raw, nil
}

func (p *Pipeline) validateLayout(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return p.schema.Validate(v)
}

func prettyJSON(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return raw
	}
	return buf.Bytes()
}
