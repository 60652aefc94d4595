package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwygoda/vidbot/internal/domain"
)

func setupTestRepo(t *testing.T) (*Repository, func()) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	repo, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cleanup := func() {
		repo.Close()
		os.Remove(dbPath)
	}
	return repo, cleanup
}

func testJob(n int) domain.Job {
	return domain.Job{
		ID:         fmt.Sprintf("job-%d", n),
		URL:        fmt.Sprintf("https://youtu.be/v%d", n),
		Requester:  "alice",
		Channel:    "#videos",
		EnqueuedAt: time.Date(2024, 3, 5, 14, 30, n, 0, time.UTC),
	}
}

func TestRepository_CreateGet(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	job := testJob(1)

	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.URL != job.URL || rec.Requester != "alice" || rec.Channel != "#videos" {
		t.Errorf("Get() = %+v, fields not stored", rec)
	}
	if rec.State != domain.StateQueued {
		t.Errorf("State = %q, want %q", rec.State, domain.StateQueued)
	}
	if !rec.EnqueuedAt.Equal(job.EnqueuedAt) {
		t.Errorf("EnqueuedAt = %v, want %v", rec.EnqueuedAt, job.EnqueuedAt)
	}

	// Get non-existent
	_, err = repo.Get(ctx, "missing")
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("Get() error = %v, want %v", err, domain.ErrJobNotFound)
	}
}

func TestRepository_Create_DuplicateID(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	repo.Create(ctx, testJob(1))
	if err := repo.Create(ctx, testJob(1)); err == nil {
		t.Error("Create() expected error for duplicate ID")
	}
}

func TestRepository_SetState(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	job := testJob(1)
	repo.Create(ctx, job)

	if err := repo.SetState(ctx, job.ID, domain.StateFetching); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	rec, _ := repo.Get(ctx, job.ID)
	if rec.State != domain.StateFetching {
		t.Errorf("State = %q, want %q", rec.State, domain.StateFetching)
	}

	if err := repo.SetState(ctx, "missing", domain.StateFetching); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("SetState() error = %v, want %v", err, domain.ErrJobNotFound)
	}
}

func TestRepository_Succeed(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	job := testJob(1)
	repo.Create(ctx, job)
	repo.SetState(ctx, job.ID, domain.StateEncoding)

	if err := repo.Succeed(ctx, job.ID, "clip-03-05-24_14:30-x220.mp4", domain.MethodCPU); err != nil {
		t.Fatalf("Succeed() error = %v", err)
	}

	rec, _ := repo.Get(ctx, job.ID)
	if rec.State != domain.StateSucceeded {
		t.Errorf("State = %q, want %q", rec.State, domain.StateSucceeded)
	}
	if rec.Method != domain.MethodCPU {
		t.Errorf("Method = %q, want %q", rec.Method, domain.MethodCPU)
	}
	if rec.OutputFile != "clip-03-05-24_14:30-x220.mp4" {
		t.Errorf("OutputFile = %q", rec.OutputFile)
	}

	// Reporting keeps the output details
	repo.SetState(ctx, job.ID, domain.StateReported)
	rec, _ = repo.Get(ctx, job.ID)
	if rec.State != domain.StateReported || rec.OutputFile == "" {
		t.Errorf("after report: %+v", rec)
	}
}

func TestRepository_Fail(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	job := testJob(1)
	repo.Create(ctx, job)

	if err := repo.Fail(ctx, job.ID, "download error"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	failed, _ := repo.Get(ctx, job.ID)
	if failed.State != domain.StateFailed {
		t.Errorf("State = %q, want %q", failed.State, domain.StateFailed)
	}
	if failed.Error != "download error" {
		t.Errorf("Error = %q, want %q", failed.Error, "download error")
	}
}

func TestRepository_List(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		repo.Create(ctx, testJob(i))
	}

	records, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(records))
	}
	if records[0].ID != "job-3" || records[1].ID != "job-2" {
		t.Errorf("List() order = %s, %s, want newest first", records[0].ID, records[1].ID)
	}
}

func TestRepository_FindUnfinished(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		repo.Create(ctx, testJob(i))
	}
	repo.SetState(ctx, "job-1", domain.StateEncoding)
	repo.Succeed(ctx, "job-2", "out.mp4", domain.MethodGPU)
	repo.Fail(ctx, "job-3", "boom")
	repo.SetState(ctx, "job-4", domain.StateFetching)
	// job-5 stays queued

	records, err := repo.FindUnfinished(ctx)
	if err != nil {
		t.Fatalf("FindUnfinished() error = %v", err)
	}

	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	want := []string{"job-1", "job-4", "job-5"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("FindUnfinished() = %v, want %v", ids, want)
	}
}

func TestNew_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "nested", "test.db")

	repo, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer repo.Close()

	// Verify directory was created
	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		t.Error("New() did not create parent directory")
	}
}

func TestNew_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	repo, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	repo.Create(ctx, testJob(1))
	repo.Close()

	repo, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer repo.Close()
	if _, err := repo.Get(ctx, "job-1"); err != nil {
		t.Errorf("job lost across reopen: %v", err)
	}
}
