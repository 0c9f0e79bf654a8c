package storage

import (
	"fmt"
	"os"
	"path/filepath"

	ports "manga-translate-pipeline/internal/domain/ports/storage"
)

var _ ports.ArtifactStore = (*FSArtifactStore)(nil)

// FSArtifactStore lays artifacts out under the data directory:
//
//	<data>/jobs/<job_id>/original/0001.png
//	<data>/jobs/<job_id>/json/0001.json
//	<data>/jobs/<job_id>/output/0001.png
//	<data>/jobs/<job_id>/cover.png
//
// Page ordinals are zero-padded so directory listings sort naturally.
type FSArtifactStore struct {
	dataDir string
}

func NewFSArtifactStore(dataDir string) *FSArtifactStore {
	return &FSArtifactStore{dataDir: dataDir}
}

func (s *FSArtifactStore) jobDir(jobID string) string {
	return filepath.Join(s.dataDir, "jobs", jobID)
}

func (s *FSArtifactStore) write(path string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *FSArtifactStore) WriteOriginal(jobID string, pageIndex int, ext string, data []byte) (string, error) {
	return s.write(filepath.Join(s.jobDir(jobID), "original", fmt.Sprintf("%04d.%s", pageIndex, ext)), data)
}

func (s *FSArtifactStore) WriteLayout(jobID string, pageIndex int, data []byte) (string, error) {
	return s.write(filepath.Join(s.jobDir(jobID), "json", fmt.Sprintf("%04d.json", pageIndex)), data)
}

func (s *FSArtifactStore) WriteOutput(jobID string, pageIndex int, ext string, data []byte) (string, error) {
	return s.write(filepath.Join(s.jobDir(jobID), "output", fmt.Sprintf("%04d.%s", pageIndex, ext)), data)
}

func (s *FSArtifactStore) WriteCover(jobID string, ext string, data []byte) (string, error) {
	return s.write(filepath.Join(s.jobDir(jobID), fmt.Sprintf("cover.%s", ext)), data)
}

func (s *FSArtifactStore) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}
