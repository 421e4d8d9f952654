// Package job runs one conversion from URL to a stored artifact, keeping the
// task record current along the way.
package job

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

	"audio-extractor/internal/apperrors"
	"audio-extractor/internal/converter"
	"audio-extractor/internal/events"
	"audio-extractor/internal/progress"
	"audio-extractor/internal/task"
	"audio-extractor/internal/workdir"
)

const (
	msgInitializing = "Initializing download..."
	msgCompleted    = "Download completed!"
	msgNoFile       = "No file produced"
	msgEmptyFile    = "Produced file is empty"
)

// URLResolver maps a user supplied URL to the one handed to the converter.
// It must return a usable URL even when it also returns an error.
type URLResolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

type Options struct {
	// WorkRoot is where per-job directories are created, os.TempDir when empty.
	WorkRoot string
	Codec    string
	Quality  string
	// Timeout bounds the converter call. Zero means no limit.
	Timeout time.Duration
}

type Orchestrator struct {
	store     task.Store
	converter converter.Converter
	resolver  URLResolver
	publisher events.Publisher
	opts      Options
	now       func() time.Time
}

func NewOrchestrator(store task.Store, conv converter.Converter, resolver URLResolver, publisher events.Publisher, opts Options) *Orchestrator {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if opts.Codec == "" {
		opts.Codec = "mp3"
	}
	return &Orchestrator{
		store:     store,
		converter: conv,
		resolver:  resolver,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
	}
}

// Accept validates a request and records the task as starting, so pollers
// find it while the job still waits for a worker.
func (o *Orchestrator) Accept(ctx context.Context, taskID, sourceURL string) error {
	if !validRequest(taskID, sourceURL) {
		return apperrors.ErrMissingParameters
	}
	o.put(ctx, taskID, startingRecord())
	return nil
}

// Withdraw forgets a task that was accepted but will never run.
func (o *Orchestrator) Withdraw(ctx context.Context, taskID string) {
	if err := o.store.Delete(ctx, taskID); err != nil {
		slog.Error("Failed to withdraw task", "task_id", taskID, "error", err)
	}
}

// Run converts sourceURL for taskID and blocks until the task reaches a
// terminal state. Every failure after validation, panics included, is also
// stored as the task's error record; the returned error is an
// *apperrors.AppError.
func (o *Orchestrator) Run(ctx context.Context, taskID, sourceURL string) (err error) {
	if !validRequest(taskID, sourceURL) {
		return apperrors.ErrMissingParameters
	}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("Job panic", "task_id", taskID, "panic", p, "stack", string(debug.Stack()))
			err = o.fail(ctx, taskID, apperrors.New(apperrors.ErrCodeInternal, fmt.Sprintf("panic: %v", p), nil), true)
		}
	}()

	target := sourceURL
	if o.resolver != nil {
		resolved, err := o.resolver.Resolve(ctx, sourceURL)
		if err != nil {
			slog.Warn("Failed to resolve source URL, using it as given", "task_id", taskID, "url", sourceURL, "error", err)
		}
		if resolved != "" {
			target = resolved
		}
	}

	o.put(ctx, taskID, startingRecord())

	dir, err := workdir.New(o.opts.WorkRoot, taskID)
	if err != nil {
		return o.fail(ctx, taskID, apperrors.New(apperrors.ErrCodeInternal, err.Error(), err), true)
	}
	defer func() {
		if err := dir.Cleanup(); err != nil {
			slog.Warn("Failed to remove working directory", "task_id", taskID, "dir", dir.Path(), "error", err)
		}
	}()

	slog.Info("Starting conversion", "task_id", taskID, "url", target)

	runCtx := ctx
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	reporter := progress.NewReporter(ctx, o.store, taskID, o.opts.Codec)
	res, err := o.converter.Convert(runCtx, converter.Request{
		URL:     target,
		Dir:     dir.Path(),
		Codec:   o.opts.Codec,
		Quality: o.opts.Quality,
	}, reporter)
	if err != nil {
		return o.fail(ctx, taskID, apperrors.New(apperrors.ErrCodeConversionFailed, err.Error(), err), true)
	}

	path, err := dir.Find(o.opts.Codec)
	if errors.Is(err, os.ErrNotExist) {
		return o.fail(ctx, taskID, apperrors.New(apperrors.ErrCodeArtifactMissing, msgNoFile, nil), false)
	}
	if err != nil {
		return o.fail(ctx, taskID, apperrors.New(apperrors.ErrCodeArtifactMissing, err.Error(), err), true)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return o.fail(ctx, taskID, apperrors.New(apperrors.ErrCodeArtifactMissing, err.Error(), err), true)
	}
	if len(data) == 0 {
		return o.fail(ctx, taskID, apperrors.New(apperrors.ErrCodeArtifactEmpty, msgEmptyFile, nil), false)
	}

	title := res.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	rec := task.Record{
		Status:   task.StatusCompleted,
		Progress: 100,
		Message:  msgCompleted,
		Artifact: &task.Artifact{
			Data:     data,
			Filename: SanitizeFilename(title) + "." + strings.ToLower(o.opts.Codec),
			Size:     int64(len(data)),
		},
	}
	if err := o.finish(ctx, taskID, rec); err != nil {
		return o.fail(ctx, taskID, apperrors.New(apperrors.ErrCodeInternal, "failed to store task result", err), true)
	}

	slog.Info("Conversion completed", "task_id", taskID, "filename", rec.Artifact.Filename, "size", rec.Artifact.Size)
	return nil
}

// fail stores the terminal error record for appErr. prefixed marks messages
// that describe an underlying error and are shown as "Error: <message>".
func (o *Orchestrator) fail(ctx context.Context, taskID string, appErr *apperrors.AppError, prefixed bool) error {
	slog.Error("Conversion failed", "task_id", taskID, "code", appErr.Code, "error", appErr)

	msg := appErr.Message
	if prefixed {
		msg = fmt.Sprintf("Error: %s", appErr.Message)
	}
	if err := o.finish(ctx, taskID, task.Record{
		Status:   task.StatusError,
		Progress: 100,
		Message:  msg,
	}); err != nil {
		slog.Error("Failed to store error record", "task_id", taskID, "error", err)
	}
	return appErr
}

// finish writes the terminal record and announces it. It outlives
// cancellation of ctx so shutdown still leaves a terminal record behind.
func (o *Orchestrator) finish(ctx context.Context, taskID string, rec task.Record) error {
	ctx = context.WithoutCancel(ctx)

	if err := o.store.Put(ctx, taskID, rec); err != nil {
		return apperrors.New(apperrors.ErrCodeInternal, "failed to store task result", err)
	}

	if err := o.publisher.Publish(ctx, events.FromRecord(taskID, rec, o.now())); err != nil {
		slog.Warn("Failed to publish task event", "task_id", taskID, "error", err)
	}
	return nil
}

func (o *Orchestrator) put(ctx context.Context, taskID string, rec task.Record) {
	if err := o.store.Put(ctx, taskID, rec); err != nil {
		slog.Error("Failed to store task", "task_id", taskID, "status", rec.Status, "error", err)
	}
}

func startingRecord() task.Record {
	return task.Record{
		Status:   task.StatusStarting,
		Progress: 0,
		Message:  msgInitializing,
	}
}

func validRequest(taskID, sourceURL string) bool {
	return strings.TrimSpace(taskID) != "" && strings.TrimSpace(sourceURL) != ""
}
