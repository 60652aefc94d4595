// Package ytdlp fetches videos with the yt-dlp command line tool.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cwygoda/vidbot/internal/command"
	"github.com/cwygoda/vidbot/internal/domain"
)

const (
	DefaultBinary = "yt-dlp"
	DefaultFormat = "best[height<=720]"

	inputBaseName = "input_video"
)

// Options configures a Fetcher. Zero values fall back to defaults.
type Options struct {
	Binary          string
	Format          string
	WorkDir         string
	TitleMaxLen     int
	ProbeTimeout    time.Duration
	DownloadTimeout time.Duration
}

// Fetcher downloads one video per job into {WorkDir}/{job id}.
type Fetcher struct {
	runner command.Runner
	opts   Options
	logger *slog.Logger
}

// NewFetcher creates a new yt-dlp fetcher.
func NewFetcher(runner command.Runner, opts Options, logger *slog.Logger) *Fetcher {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.Format == "" {
		opts.Format = DefaultFormat
	}
	if opts.TitleMaxLen <= 0 {
		opts.TitleMaxLen = domain.DefaultTitleMaxLen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{runner: runner, opts: opts, logger: logger.With("component", "fetch")}
}

// JobDir returns the work area of a job.
func (f *Fetcher) JobDir(job domain.Job) string {
	return filepath.Join(f.opts.WorkDir, job.ID)
}

// Fetch probes the title, downloads the video capped at the configured
// format and returns the local input file with the sanitized title.
func (f *Fetcher) Fetch(ctx context.Context, job domain.Job) (domain.FetchResult, error) {
	dir := f.JobDir(job)
	// A recovered job reuses its ID; start from an empty work area.
	if err := os.RemoveAll(dir); err != nil {
		return domain.FetchResult{}, fmt.Errorf("reset work dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return domain.FetchResult{}, fmt.Errorf("create work dir: %w", err)
	}

	f.logger.Info("getting video info", "job_id", job.ID, "url", job.URL)
	res, err := f.runner.Run(ctx, command.Cmd{
		Name:    f.opts.Binary,
		Args:    []string{"--get-title", "--get-filename", "-o", "%(title)s.%(ext)s", job.URL},
		Dir:     dir,
		Timeout: f.opts.ProbeTimeout,
	})
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("%w: %w", domain.ErrFetchProbe, err)
	}
	rawTitle := firstLine(res.Stdout)
	title := domain.SanitizeTitle(rawTitle, f.opts.TitleMaxLen)

	f.logger.Info("downloading video", "job_id", job.ID, "title", rawTitle, "format", f.opts.Format)
	if _, err := f.runner.Run(ctx, command.Cmd{
		Name:    f.opts.Binary,
		Args:    []string{"-f", f.opts.Format, "-o", inputBaseName + ".%(ext)s", job.URL},
		Dir:     dir,
		Timeout: f.opts.DownloadTimeout,
	}); err != nil {
		return domain.FetchResult{}, fmt.Errorf("%w: %w", domain.ErrFetchDownload, err)
	}

	input, err := findInput(dir)
	if err != nil {
		return domain.FetchResult{}, err
	}
	f.logger.Debug("input file ready", "job_id", job.ID, "path", input)
	return domain.FetchResult{InputPath: input, Title: title}, nil
}

// Cleanup removes the job's work area.
func (f *Fetcher) Cleanup(job domain.Job) error {
	if err := os.RemoveAll(f.JobDir(job)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCleanup, err)
	}
	return nil
}

func firstLine(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(bytes.TrimSpace(out)))
	if sc.Scan() {
		return strings.TrimSpace(sc.Text())
	}
	return ""
}

// findInput returns the downloaded input file, ignoring partial downloads.
func findInput(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, inputBaseName+".*"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrFetchFileNotFound, err)
	}
	sort.Strings(matches)
	for _, m := range matches {
		switch filepath.Ext(m) {
		case ".part", ".ytdl":
			continue
		}
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w in %s", domain.ErrFetchFileNotFound, dir)
}
