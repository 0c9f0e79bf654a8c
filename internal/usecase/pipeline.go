package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"manga-translate-pipeline/internal/assets"
	"manga-translate-pipeline/internal/domain"
	"manga-translate-pipeline/internal/domain/model"
	"manga-translate-pipeline/internal/domain/ports/gateway"
	"manga-translate-pipeline/internal/domain/ports/queue"
	"manga-translate-pipeline/internal/domain/ports/repository"
	"manga-translate-pipeline/internal/domain/ports/storage"
	"manga-translate-pipeline/internal/infra/logging"
	"manga-translate-pipeline/internal/infra/metrics"
)

// Pipeline drives pages through the two stages. It is the queue's executor:
// the queueing layer hands it typed tasks, it runs the matching stage worker
// and applies the resulting state transition.
type Pipeline struct {
	jobs      repository.JobRepository
	pages     repository.PageRepository
	settings  *SettingsStore
	artifacts storage.ArtifactStore
	gw        gateway.ModelGateway
	ctxB      *ContextBuilder
	schema    *jsonschema.Schema
	queue     queue.Queue
	log       *zerolog.Logger
}

var _ queue.Executor = (*Pipeline)(nil)

func NewPipeline(
	jobs repository.JobRepository,
	pages repository.PageRepository,
	settings *SettingsStore,
	artifacts storage.ArtifactStore,
	gw gateway.ModelGateway,
	ctxB *ContextBuilder,
	log *zerolog.Logger,
) (*Pipeline, error) {
	schema, err := compileLayoutSchema()
	if err != nil {
		return nil, fmt.Errorf("layout schema: %w", err)
	}
	return &Pipeline{
		jobs:      jobs,
		pages:     pages,
		settings:  settings,
		artifacts: artifacts,
		gw:        gw,
		ctxB:      ctxB,
		schema:    schema,
		log:       log,
	}, nil
}

// AttachQueue wires the queueing layer after construction; the queue needs
// the pipeline as its executor and the pipeline needs the queue to chain
// stages.
func (p *Pipeline) AttachQueue(q queue.Queue) { p.queue = q }

// compileLayoutSchema extracts the schema body from the embedded
// response-format document and compiles it for local validation.
func compileLayoutSchema() (*jsonschema.Schema, error) {
	var doc struct {
		Schema json.RawMessage `json:"schema"`
	}
	if err := json.Unmarshal(assets.LayoutSchema, &doc); err != nil {
		return nil, err
	}
	return jsonschema.CompileString("layout_schema.json", string(doc.Schema))
}

// Run enqueues Stage A for every eligible page of the job, marks the job
// running and sets the permanent configuration lock.
func (p *Pipeline) Run(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := p.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	pages, err := p.pages.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, domain.Validationf("job %s has no pages to process", jobID)
	}

	// Lock before dispatch so no worker can observe an unlocked running job.
	job.Status = model.JobStatusRunning
	job.Locked = true
	if err := p.jobs.Save(ctx, nil, job); err != nil {
		return nil, err
	}
	metrics.IncJobRun()

	ctx = logging.WithJobID(ctx, jobID)
	log := logging.With(ctx, p.log)
	for _, pg := range pages {
		if pg.Status != model.PageStatusQueued && pg.Status != model.PageStatusFailed {
			continue
		}
		if err := p.queue.Enqueue(ctx, queue.Task{Stage: model.StageA, PageID: pg.ID}); err != nil {
			log.Error().Err(err).Str("page_id", pg.ID).Msg("enqueue stage A")
		}
	}
	log.Info().Int("pages", len(pages)).Msg("job run started")
	return job, nil
}

// Rerun enqueues one page into the named stage. Legality depends on the
// page's current status: queued and failed pages may enter either stage,
// A_done and blocked pages only Stage B.
func (p *Pipeline) Rerun(ctx context.Context, pageID string, stage model.Stage) error {
	page, err := p.pages.FindByID(ctx, nil, pageID)
	if err != nil {
		return err
	}
	if !page.EligibleForStage(stage) {
		return domain.Validationf("page %s in status %s cannot be rerun into stage %s", pageID, page.Status, stage)
	}
	return p.queue.Enqueue(ctx, queue.Task{Stage: stage, PageID: pageID})
}

// Execute dispatches one task to its stage worker. Worker errors never
// escape: they end up recorded on the page.
func (p *Pipeline) Execute(ctx context.Context, task queue.Task) {
	ctx = logging.WithPageID(ctx, task.PageID)
	defer logging.TraceDuration(logging.With(ctx, p.log), "pipeline.Execute")()
	switch task.Stage {
	case model.StageB:
		p.runStageB(ctx, task.PageID)
	default:
		p.runStageA(ctx, task.PageID)
	}
}

// loadPage fetches the page and its owning job; a missing record is logged
// and swallowed, the task is simply dropped.
func (p *Pipeline) loadPage(ctx context.Context, pageID string) (*model.Page, *model.Job, bool) {
	page, err := p.pages.FindByID(ctx, nil, pageID)
	if err != nil {
		p.log.Warn().Err(err).Str("page_id", pageID).Msg("page not found for task")
		return nil, nil, false
	}
	job, err := p.jobs.FindByID(ctx, nil, page.JobID)
	if err != nil {
		p.log.Warn().Err(err).Str("job_id", page.JobID).Msg("job not found for task")
		return nil, nil, false
	}
	return page, job, true
}

// transition applies a legality-checked status change and persists it with
// compare-and-swap. A stale version means another writer won the race; the
// caller drops its work.
func (p *Pipeline) transition(ctx context.Context, page *model.Page, to model.PageStatus, errText string) error {
	if !model.CanTransition(page.Status, to) {
		return domain.Conflictf("illegal page transition %s -> %s", page.Status, to)
	}
	page.Status = to
	page.Error = errText
	return p.pages.SaveCAS(ctx, nil, page)
}

// failPage records the worker error on the page. One page's failure never
// propagates to any other page.
func (p *Pipeline) failPage(ctx context.Context, page *model.Page, stage model.Stage, cause error) {
	p.log.Error().Err(cause).Str("page_id", page.ID).Str("stage", string(stage)).Msg("stage failed")
	page.Status = model.PageStatusFailed
	page.Error = cause.Error()
	if err := p.pages.SaveCAS(ctx, nil, page); err != nil {
		p.log.Warn().Err(err).Str("page_id", page.ID).Msg("could not record failure")
	}
	metrics.IncPage(string(stage), string(model.PageStatusFailed))
}

// blockPage parks the page for human review. Not a failure.
func (p *Pipeline) blockPage(ctx context.Context, page *model.Page, stage model.Stage, reason string) {
	p.log.Info().Str("page_id", page.ID).Str("stage", string(stage)).Str("reason", reason).Msg("page blocked")
	page.Status = model.PageStatusBlocked
	page.Error = reason
	if err := p.pages.SaveCAS(ctx, nil, page); err != nil {
		p.log.Warn().Err(err).Str("page_id", page.ID).Msg("could not record block")
	}
	metrics.IncPage(string(stage), string(model.PageStatusBlocked))
}

// recomputeProgress recounts done pages from page statuses and promotes the
// job once every page is done. done_pages is never incremented in place.
func (p *Pipeline) recomputeProgress(ctx context.Context, jobID string) {
	job, err := p.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		p.log.Warn().Err(err).Str("job_id", jobID).Msg("recompute: job gone")
		return
	}
	done, err := p.pages.CountByJobAndStatus(ctx, jobID, model.PageStatusDone)
	if err != nil {
		p.log.Warn().Err(err).Str("job_id", jobID).Msg("recompute: count failed")
		return
	}
	job.DonePages = done
	if job.TotalPages > 0 && done == job.TotalPages {
		job.Status = model.JobStatusDone
	}
	if err := p.jobs.Save(ctx, nil, job); err != nil {
		p.log.Warn().Err(err).Str("job_id", jobID).Msg("recompute: save failed")
	}
}
