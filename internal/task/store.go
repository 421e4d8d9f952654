package task

import (
	"context"
	"time"
)

// Store is the process-wide registry of task records.
//
// Put overwrites the whole record. Get never observes a partially written
// record; it may leave Artifact.Data nil, since only Take hands out the
// bytes. Take reads and deletes a record in one atomic step, and only when
// its status equals want; it is what makes artifact retrieval consume-once.
// Sweep drops finished records whose last write is older than cutoff.
// Records of running jobs are never swept.
type Store interface {
	Put(ctx context.Context, id string, rec Record) error
	Get(ctx context.Context, id string) (Record, bool, error)
	Delete(ctx context.Context, id string) error
	Take(ctx context.Context, id string, want Status) (Record, bool, error)
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
