package task

import (
	"context"
	"testing"
	"time"
)

func TestRunJanitorSweepsExpiredTasks(t *testing.T) {
	store := NewMemoryStore()
	store.now = func() time.Time { return time.Now().Add(-time.Hour) }
	store.Put(context.Background(), "abandoned", Record{Status: StatusError, Progress: 100})
	store.now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, store, time.Minute, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if store.Len() != 0 {
		t.Errorf("Expected abandoned task to be swept, %d left", store.Len())
	}
}

func TestRunJanitorDisabled(t *testing.T) {
	finished := make(chan struct{})
	go func() {
		RunJanitor(context.Background(), NewMemoryStore(), 0, time.Second)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Expected RunJanitor to return immediately when ttl is zero")
	}
}

func TestRunJanitorKeepsRunningTasks(t *testing.T) {
	store := NewMemoryStore()
	store.now = func() time.Time { return time.Now().Add(-time.Hour) }
	store.Put(context.Background(), "transcoding", Record{Status: StatusConverting, Progress: 90})
	store.Put(context.Background(), "abandoned", Record{Status: StatusCompleted, Progress: 100})
	store.now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, store, time.Minute, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if _, ok, _ := store.Get(context.Background(), "transcoding"); !ok {
		t.Error("Expected the running task to survive the sweep")
	}
	if _, ok, _ := store.Get(context.Background(), "abandoned"); ok {
		t.Error("Expected the finished task to be swept")
	}
}
