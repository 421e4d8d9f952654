// Package server exposes the task endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"time"

	"audio-extractor/internal/apperrors"
	"audio-extractor/internal/converter"
	"audio-extractor/internal/task"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"
)

// Runner runs one job to its terminal state. *job.Orchestrator is the
// production implementation. Accept records the task before it is queued;
// Withdraw undoes Accept when the job cannot be queued.
type Runner interface {
	Accept(ctx context.Context, taskID, sourceURL string) error
	Withdraw(ctx context.Context, taskID string)
	Run(ctx context.Context, taskID, sourceURL string) error
}

// Submitter schedules work on a bounded pool. *ants.Pool satisfies it.
type Submitter interface {
	Submit(task func()) error
}

type Options struct {
	Addr              string
	Codec             string
	RequestsPerSecond float64
	Burst             int
}

type Server struct {
	addr       string
	baseCtx    context.Context
	runner     Runner
	pool       Submitter
	gateway    *task.Gateway
	limiter    *rate.Limiter
	mediaType  string
	httpServer *http.Server
}

// New builds a server. Jobs run on baseCtx rather than the request context,
// so a client that hangs up does not abort its conversion.
func New(baseCtx context.Context, opts Options, runner Runner, pool Submitter, gateway *task.Gateway) *Server {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	s := &Server{
		addr:      opts.Addr,
		baseCtx:   baseCtx,
		runner:    runner,
		pool:      pool,
		gateway:   gateway,
		limiter:   rate.NewLimiter(limit, burst),
		mediaType: converter.ContentType(opts.Codec),
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/start-download", s.handleStartDownload)
	mux.HandleFunc("/start-download/{$}", s.handleStartDownload)
	mux.HandleFunc("GET /progress/{task_id}", s.handleProgress)
	mux.HandleFunc("GET /progress/{task_id}/{$}", s.handleProgress)
	mux.HandleFunc("GET /download-file/{task_id}", s.handleDownload)
	mux.HandleFunc("GET /download-file/{task_id}/{$}", s.handleDownload)

	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"ping": "pong"})
	})

	return recoverPanics(logRequests(mux))
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	slog.Info("Server starting", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type startRequest struct {
	URL    string `json:"url"`
	TaskID string `json:"task_id"`
}

type startResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleStartDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusBadRequest, "Invalid request method")
		return
	}
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	var body startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.URL == "" || body.TaskID == "" {
		writeError(w, http.StatusBadRequest, apperrors.ErrMissingParameters.Message)
		return
	}
	if err := s.runner.Accept(s.baseCtx, body.TaskID, body.URL); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			writeError(w, appErr.MapToHttpCode(), appErr.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	done := make(chan error, 1)
	err := s.pool.Submit(func() {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("Job panic", "task_id", body.TaskID, "panic", p)
				done <- apperrors.New(apperrors.ErrCodeInternal, fmt.Sprint(p), nil)
			}
		}()
		done <- s.runner.Run(s.baseCtx, body.TaskID, body.URL)
	})
	if err != nil {
		s.runner.Withdraw(s.baseCtx, body.TaskID)
		if errors.Is(err, ants.ErrPoolOverload) || errors.Is(err, ants.ErrPoolClosed) {
			busy := apperrors.New(apperrors.ErrCodeBusy, "Server busy, try again later", err)
			slog.Warn("Rejecting job", "task_id", body.TaskID, "error", busy)
			writeError(w, busy.MapToHttpCode(), busy.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	select {
	case err = <-done:
	case <-r.Context().Done():
		slog.Info("Client left before job finished", "task_id", body.TaskID)
		return
	}

	if err == nil {
		writeJSON(w, http.StatusAccepted, startResponse{Status: "completed"})
		return
	}
	slog.Info("Job failed", "task_id", body.TaskID, "code", apperrors.Code(err))

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.ErrCodeValidation {
		writeError(w, appErr.MapToHttpCode(), appErr.Message)
		return
	}
	msg := err.Error()
	if appErr != nil {
		msg = appErr.Message
	}
	writeJSON(w, http.StatusAccepted, startResponse{Status: "error", Message: msg})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gateway.QueryStatus(r.Context(), r.PathValue("task_id")))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	art, err := s.gateway.FetchArtifact(r.Context(), r.PathValue("task_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, apperrors.ErrNotReady.Message)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": art.Filename})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", s.mediaType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Data); err != nil {
		slog.Warn("Failed to send artifact", "task_id", r.PathValue("task_id"), "error", err)
	}
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.NewV7()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to allocate task id")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"task_id": id.String()})
}
