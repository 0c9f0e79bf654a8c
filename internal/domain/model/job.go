package model

import "time"

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusReady   JobStatus = "ready"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
)

// Job is a unit of work spanning N pages. DonePages is always recomputed
// from page statuses, never incremented in place.
type Job struct {
	ID       string
	Title    string
	Status   JobStatus
	Config   map[string]any
	Notes    string
	Tags     []string
	Priority int

	// Locked is set when a run starts and permanently forbids config and
	// credential edits.
	Locked bool

	APIKeyEncrypted string
	APIKeyLast4     string

	CoverPath  string
	TotalPages int
	DonePages  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Editable reports whether configuration and credential mutation is still
// allowed. Once a job is locked or has started running, edits are rejected
// with a conflict.
func (j *Job) Editable() bool {
	return !j.Locked && j.Status != JobStatusRunning && j.Status != JobStatusDone
}
