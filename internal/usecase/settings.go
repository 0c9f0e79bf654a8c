package usecase

import (
	"context"
	"fmt"

	"manga-translate-pipeline/internal/domain/model"
	"manga-translate-pipeline/internal/domain/ports/repository"
	ports "manga-translate-pipeline/internal/domain/ports/security"
)

// SettingsStore wraps the global-settings record: lazy bootstrap from the
// built-in defaults, updates from the control API, and per-job resolution
// of effective configuration plus decrypted credential.
type SettingsStore struct {
	repo         repository.SettingsRepository
	vault        ports.Vault
	resolver     *ConfigResolver
	bootstrapKey string
}

func NewSettingsStore(repo repository.SettingsRepository, vault ports.Vault, resolver *ConfigResolver, bootstrapKey string) *SettingsStore {
	return &SettingsStore{repo: repo, vault: vault, resolver: resolver, bootstrapKey: bootstrapKey}
}

// Get returns the settings row, creating it on first access with the
// built-in config defaults and the bootstrap API key from process config.
func (s *SettingsStore) Get(ctx context.Context) (*model.GlobalSettings, error) {
	bootstrap := &model.GlobalSettings{
		ID:     1,
		Config: s.resolver.Resolve(nil, nil),
	}
	if s.bootstrapKey != "" {
		enc, err := s.vault.Encrypt(s.bootstrapKey)
		if err != nil {
			return nil, fmt.Errorf("encrypt bootstrap key: %w", err)
		}
		bootstrap.APIKeyEncrypted = enc
		bootstrap.APIKeyLast4 = ports.Last4(s.bootstrapKey)
	}
	return s.repo.Get(ctx, bootstrap)
}

// Update replaces the operator config and, when apiKey is non-nil, rotates
// the stored credential.
func (s *SettingsStore) Update(ctx context.Context, cfg map[string]any, apiKey *string) (*model.GlobalSettings, error) {
	row, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	row.Config = s.resolver.Resolve(cfg, nil)
	if apiKey != nil {
		enc, err := s.vault.Encrypt(*apiKey)
		if err != nil {
			return nil, err
		}
		row.APIKeyEncrypted = enc
		row.APIKeyLast4 = ports.Last4(*apiKey)
	}
	if err := s.repo.Save(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// ResolveJob merges the configuration tiers for one job and decrypts the
// credential: the job's own key when set, else the global one. An absent
// credential yields an empty key, not an error; the worker decides whether
// that is fatal.
func (s *SettingsStore) ResolveJob(ctx context.Context, job *model.Job, overrides ...map[string]any) (Effective, string, error) {
	gs, err := s.Get(ctx)
	if err != nil {
		return nil, "", err
	}
	eff := s.resolver.Resolve(gs.Config, job.Config, overrides...)

	enc := job.APIKeyEncrypted
	if enc == "" {
		enc = gs.APIKeyEncrypted
	}
	if enc == "" {
		return eff, "", nil
	}
	key, err := s.vault.Decrypt(enc)
	if err != nil {
		return nil, "", fmt.Errorf("decrypt credential: %w", err)
	}
	return eff, key, nil
}
