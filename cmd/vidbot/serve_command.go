package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/cwygoda/vidbot/internal/adapter/ffmpeg"
	httpAdapter "github.com/cwygoda/vidbot/internal/adapter/http"
	"github.com/cwygoda/vidbot/internal/adapter/notify"
	"github.com/cwygoda/vidbot/internal/adapter/sqlite"
	"github.com/cwygoda/vidbot/internal/adapter/ytdlp"
	"github.com/cwygoda/vidbot/internal/command"
	"github.com/cwygoda/vidbot/internal/config"
	"github.com/cwygoda/vidbot/internal/deps"
	"github.com/cwygoda/vidbot/internal/domain"
	"github.com/cwygoda/vidbot/internal/logging"
	"github.com/cwygoda/vidbot/internal/queue"
	"github.com/cwygoda/vidbot/internal/worker"
)

const (
	lockFileName    = "vidbot.lock"
	shutdownTimeout = 10 * time.Second
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept messages over HTTP and process videos until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		LogDir: cfg.Paths.LogDir,
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.With("component", "serve")

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	lock := flock.New(filepath.Join(cfg.Paths.WorkDir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another vidbot instance holds %s", lock.Path())
	}
	defer lock.Unlock()

	repo, err := sqlite.New(cfg.Paths.DBPath)
	if err != nil {
		return fmt.Errorf("open job ledger: %w", err)
	}
	defer repo.Close()

	extractor, err := newExtractor(cfg)
	if err != nil {
		return err
	}

	runner := command.NewExecRunner()
	fetcher := ytdlp.NewFetcher(runner, ytdlp.Options{
		Binary:          cfg.Tools.YtDlp,
		Format:          cfg.Fetch.Format,
		WorkDir:         cfg.Paths.WorkDir,
		TitleMaxLen:     cfg.Fetch.TitleMaxLen,
		ProbeTimeout:    cfg.Timeouts.Probe.Duration,
		DownloadTimeout: cfg.Timeouts.Download.Duration,
	}, logger.Logger)
	encoder := ffmpeg.NewEncoder(runner, ffmpeg.Options{
		Binary:       cfg.Tools.FFmpeg,
		OutputDir:    cfg.Paths.OutputDir,
		ProfileTag:   cfg.Encode.ProfileTag,
		ProbeTimeout: cfg.Timeouts.Probe.Duration,
		Timeout:      cfg.Timeouts.Encode.Duration,
	}, logger.Logger)

	for _, s := range deps.Missing(deps.CheckBinaries(deps.Tools(cfg.Tools.YtDlp, cfg.Tools.FFmpeg))) {
		log.Warn("external tool unavailable, jobs will fail", "tool", s.Name, "detail", s.Detail)
	}

	q := queue.New()
	notifier := notify.New(cfg.Chat.WebhookURL, cfg.Chat.Timeout.Duration, logger.Logger)
	svc := domain.NewJobService(extractor, q, repo, notifier, cfg.Chat.Channel, logger.Logger)

	if recovered, err := svc.Recover(ctx); err != nil {
		log.Warn("failed to recover unfinished jobs", "error", err)
	} else if recovered > 0 {
		log.Info("recovered unfinished jobs", "count", recovered)
	}

	w := worker.New(q, fetcher, encoder, notifier, repo, cfg.Delivery.BaseURL, logger.Logger)
	srv := httpAdapter.NewServer(svc, cfg.Server.Listen, cfg.Paths.OutputDir, cfg.Server.Secret, logger.Logger)

	log.Info("starting vidbot",
		"listen", cfg.Server.Listen,
		"db", cfg.Paths.DBPath,
		"output_dir", cfg.Paths.OutputDir,
		"channel", cfg.Chat.Channel,
	)

	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	workerDone := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(workerDone)
	}()

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", "error", err)
	}

	<-workerDone
	svc.Wait()
	log.Info("shutdown complete")
	return runErr
}
