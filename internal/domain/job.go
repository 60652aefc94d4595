package domain

import "time"

// JobState represents the pipeline state of a job.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateFetching  JobState = "fetching"
	StateEncoding  JobState = "encoding"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateReported  JobState = "reported"
)

// Terminal returns true once the job can no longer run.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateReported:
		return true
	}
	return false
}

// EncodeMethod identifies which encode path produced the output.
type EncodeMethod string

const (
	MethodGPU EncodeMethod = "gpu"
	MethodCPU EncodeMethod = "cpu"
)

// Job is one (url, requester) unit of work. It is not modified after creation.
type Job struct {
	ID         string
	URL        string
	Requester  string
	Channel    string
	EnqueuedAt time.Time
}

// FetchResult is the local input produced by a fetch.
type FetchResult struct {
	InputPath string
	Title     string
}

// EncodeRequest describes one encode. StartedAt is captured when the job
// leaves the queue and fixes the timestamp in the output name.
type EncodeRequest struct {
	InputPath string
	Title     string
	StartedAt time.Time
}

// EncodeResult is the finished output of an encode.
type EncodeResult struct {
	OutputPath string
	Method     EncodeMethod
}

// Record is the persisted view of a job.
type Record struct {
	ID         string
	URL        string
	Requester  string
	Channel    string
	State      JobState
	Method     EncodeMethod
	OutputFile string
	Error      string
	EnqueuedAt time.Time
	UpdatedAt  time.Time
}

// Job rebuilds the immutable job from its record.
func (r *Record) Job() Job {
	return Job{
		ID:         r.ID,
		URL:        r.URL,
		Requester:  r.Requester,
		Channel:    r.Channel,
		EnqueuedAt: r.EnqueuedAt,
	}
}
