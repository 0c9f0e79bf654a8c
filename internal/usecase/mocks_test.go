package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"manga-translate-pipeline/internal/domain"
	"manga-translate-pipeline/internal/domain/model"
	"manga-translate-pipeline/internal/domain/ports/gateway"
	"manga-translate-pipeline/internal/domain/ports/queue"
	"manga-translate-pipeline/internal/domain/ports/repository"
)

// memJobRepo is a small in-memory implementation used by unit tests.
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

// memArtifacts keeps artifact bytes in a map keyed by the path it invents.
type memArtifacts struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{files: make(map[string][]byte)}
}

func (m *memArtifacts) write(path string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[path] = cp
	return path, nil
}

func (m *memArtifacts) WriteOriginal(jobID string, pageIndex int, ext string, data []byte) (string, error) {
	return m.write(fmt.Sprintf("%s/original/%04d.%s", jobID, pageIndex, ext), data)
}

func (m *memArtifacts) WriteLayout(jobID string, pageIndex int, data []byte) (string, error) {
	return m.write(fmt.Sprintf("%s/json/%04d.json", jobID, pageIndex), data)
}

func (m *memArtifacts) WriteOutput(jobID string, pageIndex int, ext string, data []byte) (string, error) {
	return m.write(fmt.Sprintf("%s/output/%04d.%s", jobID, pageIndex, ext), data)
}

func (m *memArtifacts) WriteCover(jobID string, ext string, data []byte) (string, error) {
	return m.write(fmt.Sprintf("%s/cover.%s", jobID, ext), data)
}

func (m *memArtifacts) Read(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// plainVault is an identity "encryption" for tests.
type plainVault struct{}

func (plainVault) Encrypt(plaintext string) (string, error) { return plaintext, nil }
func (plainVault) Decrypt(token string) (string, error)     { return token, nil }

// fakeGateway returns scripted responses and records what it was asked.
type fakeGateway struct {
	mu sync.Mutex

	extractOut  json.RawMessage
	extractErr  error
	renderOut   []byte
	renderErr   error
	extractReqs []gateway.ExtractRequest
	renderReqs  []gateway.RenderRequest

	// onExtract, when set, runs during the call; tests use it to race a
	// concurrent writer against the in-flight stage.
	onExtract func()
}

func (f *fakeGateway) CallExtract(ctx context.Context, req gateway.ExtractRequest) (json.RawMessage, error) {
	f.mu.Lock()
	f.extractReqs = append(f.extractReqs, req)
	hook := f.onExtract
	out, err := f.extractOut, f.extractErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeGateway) CallRender(ctx context.Context, req gateway.RenderRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renderReqs = append(f.renderReqs, req)
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	return f.renderOut, nil
}

// syncQueue executes each task inline on Enqueue, making pipeline flows
// deterministic in tests.
type syncQueue struct {
	exec queue.Executor
}

func (q *syncQueue) Enqueue(ctx context.Context, task queue.Task) error {
	q.exec.Execute(ctx, task)
	return nil
}

func (q *syncQueue) Start(ctx context.Context) {}
func (q *syncQueue) Stop()                     {}
