package queue

import (
	"context"

	"manga-translate-pipeline/internal/domain/model"
)

// Task is one page-stage work item. Dispatch is by typed variant, not by
// function name, so there is no runtime-lookup failure mode.
type Task struct {
	Stage  model.Stage `json:"stage"`
	PageID string      `json:"page_id"`
}

// Executor runs one task to completion. The pipeline implements this; queue
// implementations call it from their worker goroutines.
type Executor interface {
	Execute(ctx context.Context, task Task)
}

// Queue accepts page-stage work and executes it with bounded concurrency
// per stage. Enqueue is fire-and-forget: it returns as soon as the task is
// accepted, with no delivery guarantee across a process crash.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Start(ctx context.Context)
	Stop()
}
