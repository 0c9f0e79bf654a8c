package queue

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"manga-translate-pipeline/internal/domain"
	"manga-translate-pipeline/internal/domain/model"
	ports "manga-translate-pipeline/internal/domain/ports/queue"
)

var _ ports.Queue = (*StagePool)(nil)

// StagePool is the in-process Queueing Layer: one bounded worker pool per
// stage, sized independently. Suited to a single-node deployment; pending
// tasks do not survive a process crash.
type StagePool struct {
	exec ports.Executor

	stageA chan ports.Task
	stageB chan ports.Task
	nA, nB int

	wg   sync.WaitGroup
	quit chan struct{}
	log  *zerolog.Logger
}

func NewStagePool(exec ports.Executor, stageAWorkers, stageBWorkers int, log *zerolog.Logger) *StagePool {
	if stageAWorkers <= 0 {
		stageAWorkers = runtime.NumCPU()
	}
	if stageBWorkers <= 0 {
		stageBWorkers = runtime.NumCPU()
	}
	return &StagePool{
		exec:   exec,
		stageA: make(chan ports.Task, stageAWorkers*16),
		stageB: make(chan ports.Task, stageBWorkers*16),
		nA:     stageAWorkers,
		nB:     stageBWorkers,
		quit:   make(chan struct{}),
		log:    log,
	}
}

func (p *StagePool) Start(ctx context.Context) {
	p.spawn(ctx, p.stageA, p.nA)
	p.spawn(ctx, p.stageB, p.nB)
}

func (p *StagePool) spawn(ctx context.Context, jobs chan ports.Task, n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-jobs:
					p.exec.Execute(ctx, task)
				}
			}
		}()
	}
}

// Enqueue is fire-and-forget. A saturated buffer surfaces an error instead
// of applying back-pressure to the caller.
func (p *StagePool) Enqueue(ctx context.Context, task ports.Task) error {
	ch := p.stageA
	if task.Stage == model.StageB {
		ch = p.stageB
	}
	select {
	case ch <- task:
		return nil
	default:
		p.log.Warn().Str("page_id", task.PageID).Str("stage", string(task.Stage)).Msg("queue saturated, task dropped")
		return domain.ErrQueueSaturated
	}
}

func (p *StagePool) Stop() {
	close(p.quit)
	p.wg.Wait()
}
