// Package worker runs the single pipeline worker: one job at a time from
// the queue through fetch and encode to a chat report.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cwygoda/vidbot/internal/domain"
)

// Outcome is the terminal result of one job.
type Outcome struct {
	State     domain.JobState
	Result    domain.EncodeResult
	InputPath string
	Err       error
}

// Succeeded reports whether the job produced an output.
func (o Outcome) Succeeded() bool {
	return o.State == domain.StateSucceeded
}

// Worker pulls jobs from the queue and processes them one by one.
type Worker struct {
	queue    domain.JobQueue
	fetcher  domain.Fetcher
	encoder  domain.Encoder
	notifier domain.Notifier
	repo     domain.JobRepository
	baseURL  string
	logger   *slog.Logger

	now func() time.Time
}

// New creates a new worker. repo may be nil.
func New(queue domain.JobQueue, fetcher domain.Fetcher, encoder domain.Encoder, notifier domain.Notifier, repo domain.JobRepository, baseURL string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:    queue,
		fetcher:  fetcher,
		encoder:  encoder,
		notifier: notifier,
		repo:     repo,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger.With("component", "worker"),
		now:      time.Now,
	}
}

// Run processes jobs until ctx is cancelled. A failing job never stops it.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker shutting down")
				return
			}
			w.logger.Error("dequeue error", "error", err)
			continue
		}
		w.handle(ctx, job)
	}
}

// handle runs one job to its reported state.
func (w *Worker) handle(ctx context.Context, job domain.Job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job handling panicked", "job_id", job.ID, "panic", r)
		}
	}()

	log := w.logger.With("job_id", job.ID, "url", job.URL, "requester", job.Requester)
	log.Info("processing video", "waited", w.now().Sub(job.EnqueuedAt).Round(time.Second))

	out := w.processJob(ctx, job)
	w.cleanup(job, out, log)
	w.record(ctx, job, out, log)
	w.report(ctx, job, out, log)
}

// processJob runs fetch then encode. Every fault, panics included, comes
// back as a Failed outcome.
func (w *Worker) processJob(ctx context.Context, job domain.Job) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			out = Outcome{State: domain.StateFailed, InputPath: out.InputPath, Err: fmt.Errorf("%w: %v", domain.ErrJobPanic, r)}
		}
	}()

	startedAt := w.now()

	w.setState(ctx, job, domain.StateFetching)
	fetched, err := w.fetcher.Fetch(ctx, job)
	if err != nil {
		return Outcome{State: domain.StateFailed, Err: err}
	}
	out.InputPath = fetched.InputPath

	w.setState(ctx, job, domain.StateEncoding)
	res, err := w.encoder.Encode(ctx, domain.EncodeRequest{
		InputPath: fetched.InputPath,
		Title:     fetched.Title,
		StartedAt: startedAt,
	})
	if err != nil {
		return Outcome{State: domain.StateFailed, InputPath: fetched.InputPath, Err: err}
	}
	return Outcome{State: domain.StateSucceeded, Result: res, InputPath: fetched.InputPath}
}

// cleanup removes the input after a success and the work area in every
// case. Errors are logged only.
func (w *Worker) cleanup(job domain.Job, out Outcome, log *slog.Logger) {
	if out.Succeeded() && out.InputPath != "" {
		if err := os.Remove(out.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("remove input failed", "error", fmt.Errorf("%w: %v", domain.ErrCleanup, err))
		} else {
			log.Debug("cleaned up input file", "path", out.InputPath)
		}
	}
	if err := w.fetcher.Cleanup(job); err != nil {
		log.Warn("remove work dir failed", "error", err)
	}
}

func (w *Worker) record(ctx context.Context, job domain.Job, out Outcome, log *slog.Logger) {
	if w.repo == nil {
		return
	}
	var err error
	if out.Succeeded() {
		err = w.repo.Succeed(ctx, job.ID, filepath.Base(out.Result.OutputPath), out.Result.Method)
	} else {
		err = w.repo.Fail(ctx, job.ID, errorText(out.Err))
	}
	if err != nil {
		log.Warn("record outcome failed", "error", err)
	}
}

// report sends exactly one message for the job.
func (w *Worker) report(ctx context.Context, job domain.Job, out Outcome, log *slog.Logger) {
	var text string
	if out.Succeeded() {
		text = fmt.Sprintf("✅ Video ready: %s (requested by %s)", w.DeliveryURL(out.Result.OutputPath), job.Requester)
		log.Info("video processing completed", "output", out.Result.OutputPath, "method", out.Result.Method)
	} else {
		text = fmt.Sprintf("❌ Failed to process video: %s (requested by %s)", job.URL, job.Requester)
		log.Error("video processing failed", "error", out.Err)
	}

	if err := w.notifier.Notify(ctx, job.Channel, text); err != nil {
		log.Warn("notify failed", "error", err)
	}
	w.setState(ctx, job, domain.StateReported)
}

// DeliveryURL is where the file server exposes an output file.
func (w *Worker) DeliveryURL(outputPath string) string {
	return w.baseURL + "/" + filepath.Base(outputPath)
}

func (w *Worker) setState(ctx context.Context, job domain.Job, state domain.JobState) {
	if w.repo == nil {
		return
	}
	if err := w.repo.SetState(ctx, job.ID, state); err != nil {
		w.logger.Warn("record state failed", "job_id", job.ID, "state", state, "error", err)
	}
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
