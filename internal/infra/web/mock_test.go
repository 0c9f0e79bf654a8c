package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"manga-translate-pipeline/internal/domain"
	"manga-translate-pipeline/internal/domain/model"
	"manga-translate-pipeline/internal/domain/ports/gateway"
	"manga-translate-pipeline/internal/domain/ports/queue"
	"manga-translate-pipeline/internal/domain/ports/repository"
	"manga-translate-pipeline/internal/infra/importer"
	"manga-translate-pipeline/internal/infra/storage"
	"manga-translate-pipeline/internal/usecase"
)

type memJobRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Job
	seq   int
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.Job)}
}

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		m.seq++
		job.ID = fmt.Sprintf("job-%d", m.seq)
	}
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) ListAll(ctx context.Context) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Job, 0, len(m.store))
	for _, j := range m.store {
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

type memPageRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Page
	seq   int
}

func newMemPageRepo() *memPageRepo {
	return &memPageRepo{store: make(map[string]*model.Page)}
}

func (m *memPageRepo) Save(ctx context.Context, tx repository.Tx, page *model.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if page.ID == "" {
		m.seq++
		page.ID = fmt.Sprintf("page-%d", m.seq)
	}
	cp := *page
	m.store[page.ID] = &cp
	return nil
}

func (m *memPageRepo) SaveCAS(ctx context.Context, tx repository.Tx, page *model.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.store[page.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != page.Version {
		return domain.ErrStaleVersion
	}
	page.Version++
	cp := *page
	m.store[page.ID] = &cp
	return nil
}

func (m *memPageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPageRepo) FindByJobAndIndex(ctx context.Context, tx repository.Tx, jobID string, pageIndex int) (*model.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.JobID == jobID && p.PageIndex == pageIndex {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPageRepo) ListByJob(ctx context.Context, jobID string) ([]*model.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Page
	for _, p := range m.store {
		if p.JobID == jobID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageIndex < out[j].PageIndex })
	return out, nil
}

func (m *memPageRepo) CountByJob(ctx context.Context, jobID string) (int, error) {
	pages, _ := m.ListByJob(ctx, jobID)
	return len(pages), nil
}

func (m *memPageRepo) CountByJobAndStatus(ctx context.Context, jobID string, status model.PageStatus) (int, error) {
	pages, _ := m.ListByJob(ctx, jobID)
	cnt := 0
	for _, p := range pages {
		if p.Status == status {
			cnt++
		}
	}
	return cnt, nil
}

type memSettingsRepo struct {
	mu  sync.Mutex
	row *model.GlobalSettings
}

func (m *memSettingsRepo) Get(ctx context.Context, bootstrap *model.GlobalSettings) (*model.GlobalSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.row == nil {
		cp := *bootstrap
		m.row = &cp
	}
	cp := *m.row
	return &cp, nil
}

func (m *memSettingsRepo) Save(ctx context.Context, settings *model.GlobalSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *settings
	m.row = &cp
	return nil
}

type nopTxManager struct{}

func (nopTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

type plainVault struct{}

func (plainVault) Encrypt(plaintext string) (string, error) { return plaintext, nil }
func (plainVault) Decrypt(token string) (string, error)     { return token, nil }

type fakeGateway struct{}

func (fakeGateway) CallExtract(ctx context.Context, req gateway.ExtractRequest) (json.RawMessage, error) {
	return json.RawMessage(`{"items":[{"jp_text":"a","cn_text":"甲","action":"replace","bbox":[0,0,1,1]}]}`), nil
}

func (fakeGateway) CallRender(ctx context.Context, req gateway.RenderRequest) ([]byte, error) {
	return []byte("rendered-png"), nil
}

type syncQueue struct {
	exec queue.Executor
}

func (q *syncQueue) Enqueue(ctx context.Context, task queue.Task) error {
	q.exec.Execute(ctx, task)
	return nil
}

func (q *syncQueue) Start(ctx context.Context) {}
func (q *syncQueue) Stop()                     {}

type serverFixture struct {
	srv   *httptest.Server
	jobs  *memJobRepo
	pages *memPageRepo
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	jobs := newMemJobRepo()
	pages := newMemPageRepo()
	artifacts := storage.NewFSArtifactStore(t.TempDir())

	resolver := usecase.NewConfigResolver(map[string]any{
		"model_a":            "vision-model",
		"model_b":            "image-model",
		"model_a_protocol":   "chat_completions",
		"model_b_protocol":   "images_edits",
		"model_b_endpoint":   "/v1/images/edits",
		"model_a_use_schema": true,
		"qa_mode":            "auto",
		"reading_direction":  "auto",
		"retries":            1,
		"stage_a_timeout":    120,
		"stage_b_timeout":    300,
	})
	settings := usecase.NewSettingsStore(&memSettingsRepo{}, plainVault{}, resolver, "sk-test-1234")

	log := zerolog.Nop()
	pipeline, err := usecase.NewPipeline(jobs, pages, settings, artifacts, fakeGateway{}, usecase.NewContextBuilder(pages, artifacts), &log)
	if err != nil {
		t.Fatal(err)
	}
	pipeline.AttachQueue(&syncQueue{exec: pipeline})

	imp := importer.New(pages, artifacts, nopTxManager{})
	server := NewServer(jobs, pages, artifacts, imp, pipeline, settings, plainVault{}, &log)

	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	return &serverFixture{srv: srv, jobs: jobs, pages: pages}
}
