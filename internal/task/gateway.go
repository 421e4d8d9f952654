package task

import (
	"context"
	"fmt"
	"log/slog"

	"audio-extractor/internal/apperrors"
)

// Gateway is the read side of the store: status polling and the one-shot
// artifact download.
type Gateway struct {
	store Store
}

func NewGateway(store Store) *Gateway {
	return &Gateway{store: store}
}

// QueryStatus never fails. Missing tasks, and tasks the store could not be
// asked about, both read as unknown.
func (g *Gateway) QueryStatus(ctx context.Context, id string) Snapshot {
	rec, ok, err := g.store.Get(ctx, id)
	if err != nil {
		slog.Error("Failed to read task", "task_id", id, "error", err)
		return UnknownSnapshot()
	}
	if !ok {
		return UnknownSnapshot()
	}
	return rec.Snapshot()
}

// FetchArtifact returns the artifact of a completed task and deletes the
// task in the same step. Anything else is apperrors.ErrNotReady.
func (g *Gateway) FetchArtifact(ctx context.Context, id string) (Artifact, error) {
	rec, ok, err := g.store.Take(ctx, id, StatusCompleted)
	if err != nil {
		slog.Error("Failed to take task", "task_id", id, "error", err)
		return Artifact{}, apperrors.New(apperrors.ErrCodeNotReady, apperrors.ErrNotReady.Message, err)
	}
	if !ok {
		return Artifact{}, apperrors.ErrNotReady
	}
	if rec.Artifact == nil {
		return Artifact{}, apperrors.New(apperrors.ErrCodeNotReady, apperrors.ErrNotReady.Message,
			fmt.Errorf("task %s completed without artifact", id))
	}
	return *rec.Artifact, nil
}
