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

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, title, status, config, notes, tags, priority, locked,
api_key_encrypted, api_key_last4, cover_path, total_pages, done_pages, created_at, updated_at`

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = time.Now()

	cfg, err := json.Marshal(orEmptyMap(job.Config))
	if err != nil {
		return err
	}
	tags, err := json.Marshal(orEmptySlice(job.Tags))
	if err != nil {
		return err
	}

	const q = `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  status = EXCLUDED.status,
  config = EXCLUDED.config,
  notes = EXCLUDED.notes,
  tags = EXCLUDED.tags,
  priority = EXCLUDED.priority,
  locked = EXCLUDED.locked,
  api_key_encrypted = EXCLUDED.api_key_encrypted,
  api_key_last4 = EXCLUDED.api_key_last4,
  cover_path = EXCLUDED.cover_path,
  total_pages = EXCLUDED.total_pages,
  done_pages = EXCLUDED.done_pages,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.Title, string(job.Status), cfg, job.Notes, tags, job.Priority, job.Locked,
		job.APIKeyEncrypted, job.APIKeyLast4, job.CoverPath, job.TotalPages, job.DonePages,
		job.CreatedAt, job.UpdatedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) ListAll(ctx context.Context) ([]*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC;`
	rows, err := pickRows(ctx, r.pool, nil, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *jobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	// Pages go with the job via ON DELETE CASCADE.
	cmd, err := execSQL(ctx, r.pool, tx, `DELETE FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		job       model.Job
		status    string
		cfg, tags []byte
	)
	err := row.Scan(&job.ID, &job.Title, &status, &cfg, &job.Notes, &tags, &job.Priority, &job.Locked,
		&job.APIKeyEncrypted, &job.APIKeyLast4, &job.CoverPath, &job.TotalPages, &job.DonePages,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Status = model.JobStatus(status)
	if err := json.Unmarshal(cfg, &job.Config); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &job.Tags); err != nil {
		return nil, err
	}
	return &job, nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
