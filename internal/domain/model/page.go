package model

import "time"

type PageStatus string

const (
	PageStatusQueued   PageStatus = "queued"
	PageStatusARunning PageStatus = "A_running"
	PageStatusADone    PageStatus = "A_done"
	PageStatusBRunning PageStatus = "B_running"
	PageStatusDone     PageStatus = "done"
	PageStatusFailed   PageStatus = "failed"
	PageStatusBlocked  PageStatus = "blocked"
)

// Stage identifies one of the two pipeline passes.
type Stage string

const (
	StageA Stage = "A" // extraction/translation
	StageB Stage = "B" // rendering
)

// Page is one unit of pipeline work. PageIndex is 1-based, assigned once at
// import time in upload order, and never changes afterwards. Version backs
// compare-and-swap saves so a rerun racing an in-flight run cannot silently
// clobber a newer record.
type Page struct {
	ID        string
	JobID     string
	PageIndex int
	Status    PageStatus
	Error     string

	OriginalPath string
	JSONPath     string
	OutputPath   string
	Meta         map[string]any

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunningStatus returns the status a page enters when the given stage starts.
func (s Stage) RunningStatus() PageStatus {
	if s == StageB {
		return PageStatusBRunning
	}
	return PageStatusARunning
}

// EligibleForStage reports whether a page in its current status may be
// enqueued into the given stage. Queued and failed pages may enter either
// stage; A_done and blocked pages may only re-enter Stage B.
func (p *Page) EligibleForStage(stage Stage) bool {
	switch p.Status {
	case PageStatusQueued, PageStatusFailed:
		return true
	case PageStatusADone, PageStatusBlocked:
		return stage == StageB
	default:
		return false
	}
}

var pageTransitions = map[PageStatus][]PageStatus{
	PageStatusQueued:   {PageStatusARunning, PageStatusBRunning, PageStatusBlocked},
	PageStatusARunning: {PageStatusADone, PageStatusFailed},
	PageStatusADone:    {PageStatusBRunning, PageStatusBlocked},
	PageStatusBRunning: {PageStatusDone, PageStatusFailed, PageStatusBlocked},
	PageStatusDone:     {},
	PageStatusFailed:   {PageStatusARunning, PageStatusBRunning, PageStatusBlocked},
	PageStatusBlocked:  {PageStatusBRunning},
}

// CanTransition reports whether from -> to is a legal page transition.
func CanTransition(from, to PageStatus) bool {
	for _, next := range pageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
