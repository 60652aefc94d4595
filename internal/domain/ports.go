package domain

import "context"

// JobQueue is the FIFO between ingestion and the worker.
type JobQueue interface {
	Enqueue(job Job)
	Dequeue(ctx context.Context) (Job, error)
	Len() int
}

// URLExtractor finds video URLs in free text.
type URLExtractor interface {
	Extract(text string) []string
}

// Fetcher downloads a URL into a local input file inside a per-job work
// area. Cleanup removes whatever is left of that area.
type Fetcher interface {
	Fetch(ctx context.Context, job Job) (FetchResult, error)
	Cleanup(job Job) error
}

// Encoder transcodes an input file to the delivery profile.
type Encoder interface {
	Encode(ctx context.Context, req EncodeRequest) (EncodeResult, error)
}

// Notifier delivers a chat message to a channel or user. Delivery is
// fire-and-forget; callers log a returned error and move on.
type Notifier interface {
	Notify(ctx context.Context, target, text string) error
}

// JobRepository is the driven port for the job ledger.
type JobRepository interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	SetState(ctx context.Context, id string, state JobState) error
	Succeed(ctx context.Context, id string, outputFile string, method EncodeMethod) error
	Fail(ctx context.Context, id string, reason string) error
	FindUnfinished(ctx context.Context) ([]Record, error)
}
