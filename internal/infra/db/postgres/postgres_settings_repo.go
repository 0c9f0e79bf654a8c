package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"manga-translate-pipeline/internal/domain/model"
	"manga-translate-pipeline/internal/domain/ports/repository"
)

var _ repository.SettingsRepository = (*settingsRepo)(nil)

type settingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *settingsRepo {
	return &settingsRepo{pool: pool}
}

func (r *settingsRepo) Get(ctx context.Context, bootstrap *model.GlobalSettings) (*model.GlobalSettings, error) {
	const q = `SELECT id, config, api_key_encrypted, api_key_last4, created_at, updated_at
FROM global_settings ORDER BY id LIMIT 1;`

	var (
		gs  model.GlobalSettings
		cfg []byte
	)
	err := r.pool.QueryRow(ctx, q).Scan(&gs.ID, &cfg, &gs.APIKeyEncrypted, &gs.APIKeyLast4, &gs.CreatedAt, &gs.UpdatedAt)
	if err == nil {
		if err := json.Unmarshal(cfg, &gs.Config); err != nil {
			return nil, err
		}
		return &gs, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// First access: persist the bootstrap row.
	if bootstrap.ID == 0 {
		bootstrap.ID = 1
	}
	bootstrap.CreatedAt = time.Now()
	bootstrap.UpdatedAt = bootstrap.CreatedAt
	if err := r.Save(ctx, bootstrap); err != nil {
		return nil, err
	}
	return bootstrap, nil
}

func (r *settingsRepo) Save(ctx context.Context, settings *model.GlobalSettings) error {
	if settings.ID == 0 {
		settings.ID = 1
	}
	settings.UpdatedAt = time.Now()
	cfg, err := json.Marshal(orEmptyMap(settings.Config))
	if err != nil {
		return err
	}

	const q = `
INSERT INTO global_settings (id, config, api_key_encrypted, api_key_last4, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
  config = EXCLUDED.config,
  api_key_encrypted = EXCLUDED.api_key_encrypted,
  api_key_last4 = EXCLUDED.api_key_last4,
  updated_at = EXCLUDED.updated_at;`

	_, err = r.pool.Exec(ctx, q, settings.ID, cfg, settings.APIKeyEncrypted, settings.APIKeyLast4,
		orNow(settings.CreatedAt), settings.UpdatedAt)
	return err
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
