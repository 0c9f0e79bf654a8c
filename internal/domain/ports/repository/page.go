package repository

import (
	"context"

	"manga-translate-pipeline/internal/domain/model"
)

type PageRepository interface {
	Save(ctx context.Context, tx Tx, page *model.Page) error
	// SaveCAS persists the page only if the stored version still matches
	// page.Version, then bumps it. A lost race returns
	// domain.ErrStaleVersion and the caller drops its write.
	SaveCAS(ctx context.Context, tx Tx, page *model.Page) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Page, error)
	FindByJobAndIndex(ctx context.Context, tx Tx, jobID string, pageIndex int) (*model.Page, error)
	ListByJob(ctx context.Context, jobID string) ([]*model.Page, error)
	CountByJob(ctx context.Context, jobID string) (int, error)
	CountByJobAndStatus(ctx context.Context, jobID string, status model.PageStatus) (int, error)
}
