package repository

import (
	"context"

	"manga-translate-pipeline/internal/domain/model"
)

type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	ListAll(ctx context.Context) ([]*model.Job, error)
	// Delete removes the job and cascades to its pages.
	Delete(ctx context.Context, tx Tx, id string) error
}
