package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
)

const ddl = `
CREATE TABLE IF NOT EXISTS jobs (
	id                TEXT PRIMARY KEY,
	title             TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'queued',
	config            JSONB NOT NULL DEFAULT '{}',
	notes             TEXT NOT NULL DEFAULT '',
	tags              JSONB NOT NULL DEFAULT '[]',
	priority          INT NOT NULL DEFAULT 0,
	locked            BOOLEAN NOT NULL DEFAULT FALSE,
	api_key_encrypted TEXT NOT NULL DEFAULT '',
	api_key_last4     TEXT NOT NULL DEFAULT '',
	cover_path        TEXT NOT NULL DEFAULT '',
	total_pages       INT NOT NULL DEFAULT 0,
	done_pages        INT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pages (
	id            TEXT PRIMARY KEY,
	job_id        TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	page_index    INT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	error         TEXT NOT NULL DEFAULT '',
	original_path TEXT NOT NULL DEFAULT '',
	json_path     TEXT NOT NULL DEFAULT '',
	output_path   TEXT NOT NULL DEFAULT '',
	meta          JSONB NOT NULL DEFAULT '{}',
	version       INT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (job_id, page_index)
);

CREATE INDEX IF NOT EXISTS idx_pages_job_status ON pages (job_id, status);

CREATE TABLE IF NOT EXISTS global_settings (
	id                INT PRIMARY KEY,
	config            JSONB NOT NULL DEFAULT '{}',
	api_key_encrypted TEXT NOT NULL DEFAULT '',
	api_key_last4     TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the tables on startup if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, ddl)
	return err
}
