package storage

// ArtifactStore persists page artifacts at paths derived deterministically
// from the job id, the page ordinal, and the artifact kind. Write methods
// return the path they wrote so callers can record it on the page.
type ArtifactStore interface {
	WriteOriginal(jobID string, pageIndex int, ext string, data []byte) (string, error)
	WriteLayout(jobID string, pageIndex int, data []byte) (string, error)
	WriteOutput(jobID string, pageIndex int, ext string, data []byte) (string, error)
	WriteCover(jobID string, ext string, data []byte) (string, error)
	Read(path string) ([]byte, error)
}
