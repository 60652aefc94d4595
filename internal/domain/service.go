package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one inbound chat line. Channel is empty for private messages.
type Message struct {
	Text      string
	Requester string
	Channel   string
}

// ReplyTarget is where acknowledgements for the message go.
func (m Message) ReplyTarget() string {
	if m.Channel != "" {
		return m.Channel
	}
	return m.Requester
}

// JobService turns inbound messages into queued jobs.
type JobService struct {
	extractor      URLExtractor
	queue          JobQueue
	repo           JobRepository
	notifier       Notifier
	defaultChannel string
	logger         *slog.Logger
	acks           sync.WaitGroup

	now   func() time.Time
	newID func() string
}

// NewJobService creates a new JobService. Completion reports for private
// messages go to defaultChannel.
func NewJobService(extractor URLExtractor, queue JobQueue, repo JobRepository, notifier Notifier, defaultChannel string, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		extractor:      extractor,
		queue:          queue,
		repo:           repo,
		notifier:       notifier,
		defaultChannel: defaultChannel,
		logger:         logger.With("component", "ingest"),
		now:            time.Now,
		newID:          newJobID,
	}
}

func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Submit extracts video URLs from msg and enqueues one job per match,
// duplicates included. A message without matches yields no jobs and no error.
// Jobs are queued before any acknowledgement is sent; acknowledgements go out
// in the background, in URL order.
func (s *JobService) Submit(ctx context.Context, msg Message) ([]Job, error) {
	msg.Requester = strings.TrimSpace(msg.Requester)
	msg.Channel = strings.TrimSpace(msg.Channel)
	if msg.Requester == "" {
		return nil, fmt.Errorf("%w: requester is required", ErrInvalidMessage)
	}

	urls := s.extractor.Extract(msg.Text)
	if len(urls) == 0 {
		return nil, nil
	}

	channel := msg.Channel
	if channel == "" {
		channel = s.defaultChannel
	}

	jobs := make([]Job, 0, len(urls))
	for _, u := range urls {
		job := Job{
			ID:         s.newID(),
			URL:        u,
			Requester:  msg.Requester,
			Channel:    channel,
			EnqueuedAt: s.now(),
		}
		s.logger.Info("found video url", "job_id", job.ID, "url", u, "requester", job.Requester, "private", msg.Channel == "")

		if s.repo != nil {
			if err := s.repo.Create(ctx, job); err != nil {
				s.logger.Warn("record job failed", "job_id", job.ID, "error", err)
			}
		}
		s.queue.Enqueue(job)
		jobs = append(jobs, job)
	}

	s.acknowledge(context.WithoutCancel(ctx), msg.ReplyTarget(), jobs)
	return jobs, nil
}

func (s *JobService) acknowledge(ctx context.Context, target string, jobs []Job) {
	if s.notifier == nil {
		return
	}
	s.acks.Add(1)
	go func() {
		defer s.acks.Done()
		for _, job := range jobs {
			if err := s.notifier.Notify(ctx, target, "📹 Processing video: "+job.URL); err != nil {
				s.logger.Warn("acknowledge failed", "job_id", job.ID, "error", err)
			}
		}
	}()
}

// Wait blocks until every pending acknowledgement has been sent.
func (s *JobService) Wait() {
	s.acks.Wait()
}

// Get retrieves a job record by ID.
func (s *JobService) Get(ctx context.Context, id string) (*Record, error) {
	if s.repo == nil {
		return nil, ErrJobNotFound
	}
	return s.repo.Get(ctx, id)
}

// Recent returns up to limit records, newest first.
func (s *JobService) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.List(ctx, limit)
}

// Recover re-enqueues jobs that were queued or in flight when the previous
// process stopped, in their original order.
func (s *JobService) Recover(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	records, err := s.repo.FindUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("find unfinished jobs: %w", err)
	}
	for i := range records {
		if err := s.repo.SetState(ctx, records[i].ID, StateQueued); err != nil {
			s.logger.Warn("reset recovered job failed", "job_id", records[i].ID, "error", err)
		}
		s.queue.Enqueue(records[i].Job())
	}
	return len(records), nil
}

// QueueLen reports the current backlog.
func (s *JobService) QueueLen() int {
	return s.queue.Len()
}
