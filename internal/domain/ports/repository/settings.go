package repository

import (
	"context"

	"manga-translate-pipeline/internal/domain/model"
)

type SettingsRepository interface {
	// Get returns the single settings row, creating it with the given
	// bootstrap values on first access.
	Get(ctx context.Context, bootstrap *model.GlobalSettings) (*model.GlobalSettings, error)
	Save(ctx context.Context, settings *model.GlobalSettings) error
}
