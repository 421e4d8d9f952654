// Package progress turns a converter's native progress callbacks into whole
// task records in the store.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"audio-extractor/internal/task"
)

type Phase string

const (
	PhaseDownloading Phase = "downloading"
	PhaseFinished    Phase = "finished"
	PhaseError       Phase = "error"
)

// ConvertingCheckpoint is the progress reported once the download is done,
// leaving room for the final jump to 100.
const ConvertingCheckpoint = 90

// Event is one raw progress notification. Percent, Speed and ETA are the
// converter's display strings, e.g. " 45.3%", "1.2MiB/s", "00:31".
type Event struct {
	Phase   Phase
	Percent string
	Speed   string
	ETA     string
}

// Sink receives progress events from a running conversion.
type Sink interface {
	Report(Event)
}

// Reporter writes events for one task into a store.
type Reporter struct {
	ctx    context.Context
	store  task.Store
	taskID string
	format string
}

// NewReporter binds a reporter to taskID. format is the target audio format
// named in the converting message, e.g. "mp3".
func NewReporter(ctx context.Context, store task.Store, taskID, format string) *Reporter {
	return &Reporter{ctx: ctx, store: store, taskID: taskID, format: format}
}

func (r *Reporter) Report(ev Event) {
	var rec task.Record

	switch ev.Phase {
	case PhaseDownloading:
		percent, err := ParsePercent(ev.Percent)
		if err != nil {
			slog.Debug("Skipping progress update", "task_id", r.taskID, "percent", ev.Percent, "error", err)
			return
		}
		rec = task.Record{
			Status:   task.StatusDownloading,
			Progress: percent,
			Message:  "Downloading... " + FormatPercent(percent),
			Speed:    orNA(ev.Speed),
			ETA:      orNA(ev.ETA),
		}
	case PhaseFinished:
		rec = task.Record{
			Status:   task.StatusConverting,
			Progress: ConvertingCheckpoint,
			Message:  fmt.Sprintf("Converting to %s...", strings.ToUpper(r.format)),
		}
	case PhaseError:
		// The orchestrator owns the terminal record.
		slog.Warn("Converter reported an error", "task_id", r.taskID)
		return
	default:
		slog.Debug("Ignoring progress event", "task_id", r.taskID, "phase", ev.Phase)
		return
	}

	if err := r.store.Put(r.ctx, r.taskID, rec); err != nil {
		slog.Error("Failed to store progress", "task_id", r.taskID, "error", err)
	}
}

// ParsePercent reads values like "45.3%", " 7%" or "12.5". Results are
// clamped to [0, 100].
func ParsePercent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty percent")
	}

	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if p != p { // NaN
		return 0, fmt.Errorf("percent is not a number")
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p, nil
}

// FormatPercent renders p the way ParsePercent reads it back, e.g. "45.3%".
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}

func orNA(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "N/A"
	}
	return s
}
