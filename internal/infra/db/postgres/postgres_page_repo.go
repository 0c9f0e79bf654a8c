package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"manga-translate-pipeline/internal/domain"
	"manga-translate-pipeline/internal/domain/model"
	"manga-translate-pipeline/internal/domain/ports/repository"
)

var _ repository.PageRepository = (*pageRepo)(nil)

type pageRepo struct {
	pool *pgxpool.Pool
}

func NewPageRepo(pool *pgxpool.Pool) *pageRepo {
	return &pageRepo{pool: pool}
}

const pageColumns = `id, job_id, page_index, status, error, original_path, json_path, output_path, meta, version, created_at, updated_at`

func (r *pageRepo) Save(ctx context.Context, tx repository.Tx, page *model.Page) error {
	if page.ID == "" {
		page.ID = uuid.NewString()
	}
	if page.CreatedAt.IsZero() {
		page.CreatedAt = time.Now()
	}
	page.UpdatedAt = time.Now()

	meta, err := json.Marshal(orEmptyMap(page.Meta))
	if err != nil {
		return err
	}

	const q = `
INSERT INTO pages (` + pageColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  error = EXCLUDED.error,
  original_path = EXCLUDED.original_path,
  json_path = EXCLUDED.json_path,
  output_path = EXCLUDED.output_path,
  meta = EXCLUDED.meta,
  version = EXCLUDED.version,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		page.ID, page.JobID, page.PageIndex, string(page.Status), page.Error,
		page.OriginalPath, page.JSONPath, page.OutputPath, meta, page.Version,
		page.CreatedAt, page.UpdatedAt)
	return err
}

// SaveCAS persists the page only if the stored version still matches; the
// row's version is bumped on success and mirrored back into the struct.
// A lost race returns domain.ErrStaleVersion.
func (r *pageRepo) SaveCAS(ctx context.Context, tx repository.Tx, page *model.Page) error {
	meta, err := json.Marshal(orEmptyMap(page.Meta))
	if err != nil {
		return err
	}
	page.UpdatedAt = time.Now()

	const q = `
UPDATE pages SET
  status = $1, error = $2, original_path = $3, json_path = $4, output_path = $5,
  meta = $6, version = version + 1, updated_at = $7
WHERE id = $8 AND version = $9;`

	cmd, err := execSQL(ctx, r.pool, tx, q,
		string(page.Status), page.Error, page.OriginalPath, page.JSONPath, page.OutputPath,
		meta, page.UpdatedAt, page.ID, page.Version)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrStaleVersion
	}
	page.Version++
	return nil
}

func (r *pageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Page, error) {
	const q = `SELECT ` + pageColumns + ` FROM pages WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPage(row)
}

func (r *pageRepo) FindByJobAndIndex(ctx context.Context, tx repository.Tx, jobID string, pageIndex int) (*model.Page, error) {
	const q = `SELECT ` + pageColumns + ` FROM pages WHERE job_id = $1 AND page_index = $2;`
	row, err := pickRow(ctx, r.pool, tx, q, jobID, pageIndex)
	if err != nil {
		return nil, err
	}
	return scanPage(row)
}

func (r *pageRepo) ListByJob(ctx context.Context, jobID string) ([]*model.Page, error) {
	const q = `SELECT ` + pageColumns + ` FROM pages WHERE job_id = $1 ORDER BY page_index;`
	rows, err := pickRows(ctx, r.pool, nil, q, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*model.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

func (r *pageRepo) CountByJob(ctx context.Context, jobID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM pages WHERE job_id = $1;`, jobID).Scan(&n)
	return n, err
}

func (r *pageRepo) CountByJobAndStatus(ctx context.Context, jobID string, status model.PageStatus) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM pages WHERE job_id = $1 AND status = $2;`, jobID, string(status)).Scan(&n)
	return n, err
}

func scanPage(row pgx.Row) (*model.Page, error) {
	var (
		page   model.Page
		status string
		meta   []byte
	)
	err := row.Scan(&page.ID, &page.JobID, &page.PageIndex, &status, &page.Error,
		&page.OriginalPath, &page.JSONPath, &page.OutputPath, &meta, &page.Version,
		&page.CreatedAt, &page.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	page.Status = model.PageStatus(status)
	if err := json.Unmarshal(meta, &page.Meta); err != nil {
		return nil, err
	}
	return &page, nil
}
