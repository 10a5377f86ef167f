package queue

import "time"

// Status represents the lifecycle of a render job.
type Status string

const (
	StatusQueued           Status = "queued"
	StatusBundling         Status = "bundling"
	StatusFetchingMetadata Status = "fetching-metadata"
	StatusRendering        Status = "rendering"
	StatusEncoding         Status = "encoding"
	StatusDone             Status = "done"
	StatusError            Status = "error"
	StatusCancelled        Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusBundling,
	StatusFetchingMetadata,
	StatusRendering,
	StatusEncoding,
	StatusDone,
	StatusError,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// validTransitions describes the permitted edges of the job state machine.
// Still renders skip the encoding stage, hence the rendering→done edge.
var validTransitions = map[Status][]Status{
	StatusQueued:           {StatusBundling, StatusCancelled},
	StatusBundling:         {StatusFetchingMetadata, StatusError, StatusCancelled},
	StatusFetchingMetadata: {StatusRendering, StatusError, StatusCancelled},
	StatusRendering:        {StatusEncoding, StatusDone, StatusError, StatusCancelled},
	StatusEncoding:         {StatusDone, StatusError, StatusCancelled},
}

// IsTerminal reports whether the status ends the job lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the status represents in-flight work.
func (s Status) IsActive() bool {
	switch s {
	case StatusBundling, StatusFetchingMetadata, StatusRendering, StatusEncoding:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from→to is a valid state machine edge.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job represents a render job persisted in SQLite.
type Job struct {
	ID              int64
	CompositionID   string
	OutputPath      string
	Codec           string
	Concurrency     int
	StartFrame      int
	EndFrame        int
	InputPropsJSON  string
	Status          Status
	Progress        float64
	ErrorMessage    string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FrameCount returns the number of frames in the job's range.
func (j *Job) FrameCount() int {
	return j.EndFrame - j.StartFrame + 1
}
