// Package http exposes message ingestion, job lookup and delivery of
// encoded files over HTTP.
package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cwygoda/vidbot/internal/domain"
)

const maxBodyBytes = 64 << 10

// Server is the HTTP adapter for the ingestion service.
type Server struct {
	svc    *domain.JobService
	mux    *http.ServeMux
	server *http.Server
	secret string
	logger *slog.Logger
}

// NewServer creates a new HTTP server. Files under outputDir are served at
// /files/. An empty secret disables signature checks.
func NewServer(svc *domain.JobService, addr, outputDir, secret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		mux:    http.NewServeMux(),
		secret: secret,
		logger: logger.With("component", "http"),
	}
	s.routes(outputDir)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(outputDir string) {
	s.mux.HandleFunc("POST /messages", s.handleMessage)
	s.mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if outputDir != "" {
		s.mux.Handle("GET /files/", http.StripPrefix("/files/", http.FileServer(noListing{http.Dir(outputDir)})))
	}
}

// messageRequest is the request body for POST /messages.
type messageRequest struct {
	Text      string `json:"text"`
	Requester string `json:"requester"`
	Channel   string `json:"channel"`
}

// queuedJob describes a job created from a message.
type queuedJob struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Channel    string `json:"channel"`
	EnqueuedAt string `json:"enqueued_at"`
}

type messageResponse struct {
	Jobs []queuedJob `json:"jobs"`
}

// jobResponse is the JSON response for GET /jobs/{id}.
type jobResponse struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Requester  string `json:"requester"`
	Channel    string `json:"channel"`
	State      string `json:"state"`
	Method     string `json:"method,omitempty"`
	OutputFile string `json:"output_file,omitempty"`
	Error      string `json:"error,omitempty"`
	EnqueuedAt string `json:"enqueued_at"`
	UpdatedAt  string `json:"updated_at"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if s.secret != "" {
		if err := s.verifySignature(r, body); err != nil {
			s.logger.Warn("message verification failed", "error", err)
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
	}

	var req messageRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	jobs, err := s.svc.Submit(r.Context(), domain.Message{
		Text:      req.Text,
		Requester: req.Requester,
		Channel:   req.Channel,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidMessage) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submit error", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := messageResponse{Jobs: make([]queuedJob, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, queuedJob{
			ID:         j.ID,
			URL:        j.URL,
			Channel:    j.Channel,
			EnqueuedAt: formatTime(j.EnqueuedAt),
		})
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

const maxTimestampSkew = 5 * time.Minute

func (s *Server) verifySignature(r *http.Request, body []byte) error {
	timestamp := r.Header.Get("X-Timestamp")
	if timestamp == "" {
		return fmt.Errorf("missing X-Timestamp header")
	}

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fmt.Errorf("invalid X-Timestamp: must be ISO8601/RFC3339 format")
	}

	skew := time.Since(ts).Abs()
	if skew > maxTimestampSkew {
		return fmt.Errorf("X-Timestamp too far from current time (skew: %v, max: %v)", skew.Truncate(time.Second), maxTimestampSkew)
	}

	signature := r.Header.Get("X-Signature")
	if signature == "" {
		return fmt.Errorf("missing X-Signature header")
	}

	if subtle.ConstantTimeCompare([]byte(signature), []byte(Sign(timestamp, body, s.secret))) != 1 {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// Sign computes the X-Signature value: hex SHA256("${timestamp}\n${body}\n${secret}").
func Sign(timestamp string, body []byte, secret string) string {
	payload := fmt.Sprintf("%s\n%s\n%s", timestamp, string(body), secret)
	hash := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(hash[:])
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	rec, err := s.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job error", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, recordToResponse(rec))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"queued": s.svc.QueueLen(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func recordToResponse(rec *domain.Record) jobResponse {
	return jobResponse{
		ID:         rec.ID,
		URL:        rec.URL,
		Requester:  rec.Requester,
		Channel:    rec.Channel,
		State:      string(rec.State),
		Method:     string(rec.Method),
		OutputFile: rec.OutputFile,
		Error:      rec.Error,
		EnqueuedAt: formatTime(rec.EnqueuedAt),
		UpdatedAt:  formatTime(rec.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// noListing hides directory indexes of the output dir and dotfiles such as
// in-progress encodes.
type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	if strings.HasPrefix(path.Base(name), ".") {
		return nil, fs.ErrNotExist
	}
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
