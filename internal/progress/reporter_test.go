package progress

import (
	"context"
	"sync"
	"testing"

	"audio-extractor/internal/task"
)

func TestParsePercent(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		ok       bool
	}{
		{"45.3%", 45.3, true},
		{" 7%", 7, true},
		{"12.5", 12.5, true},
		{"100.0%", 100, true},
		{"130%", 100, true},
		{"-3%", 0, true},
		{"", 0, false},
		{"%", 0, false},
		{"N/A", 0, false},
		{"NaN%", 0, false},
		{"abc%", 0, false},
	}

	for _, test := range tests {
		result, err := ParsePercent(test.input)
		if (err == nil) != test.ok {
			t.Errorf("ParsePercent(%q) error = %v, expected ok=%v", test.input, err, test.ok)
			continue
		}
		if test.ok && result != test.expected {
			t.Errorf("ParsePercent(%q) = %v, expected %v", test.input, result, test.expected)
		}
	}
}

func TestReporterDownloading(t *testing.T) {
	ctx := context.Background()
	store := task.NewMemoryStore()
	r := NewReporter(ctx, store, "abc-1", "mp3")

	r.Report(Event{Phase: PhaseDownloading, Percent: " 30.0%", Speed: "1.2MiB/s", ETA: "00:12"})

	rec, ok, _ := store.Get(ctx, "abc-1")
	if !ok {
		t.Fatal("Expected record after downloading event")
	}
	if rec.Status != task.StatusDownloading || rec.Progress != 30 {
		t.Errorf("Expected downloading/30, got %s/%v", rec.Status, rec.Progress)
	}
	if rec.Message != "Downloading... 30.0%" {
		t.Errorf("Unexpected message %q", rec.Message)
	}
	if rec.Speed != "1.2MiB/s" || rec.ETA != "00:12" {
		t.Errorf("Unexpected speed/eta %q/%q", rec.Speed, rec.ETA)
	}

	r.Report(Event{Phase: PhaseDownloading, Percent: "60%"})
	rec, _, _ = store.Get(ctx, "abc-1")
	if rec.Speed != "N/A" || rec.ETA != "N/A" {
		t.Errorf("Expected N/A placeholders, got %q/%q", rec.Speed, rec.ETA)
	}
}

func TestReporterSkipsMalformedPercent(t *testing.T) {
	ctx := context.Background()
	store := task.NewMemoryStore()
	r := NewReporter(ctx, store, "abc-1", "mp3")

	r.Report(Event{Phase: PhaseDownloading, Percent: "42%"})
	r.Report(Event{Phase: PhaseDownloading, Percent: "\x1b[0;94m garbage"})

	rec, _, _ := store.Get(ctx, "abc-1")
	if rec.Progress != 42 || rec.Status != task.StatusDownloading {
		t.Errorf("Expected previous record to be preserved, got %s/%v", rec.Status, rec.Progress)
	}
}

func TestReporterFinishedMovesToConverting(t *testing.T) {
	ctx := context.Background()
	store := task.NewMemoryStore()
	r := NewReporter(ctx, store, "abc-1", "mp3")

	r.Report(Event{Phase: PhaseDownloading, Percent: "99.9%", Speed: "2MiB/s", ETA: "00:01"})
	r.Report(Event{Phase: PhaseFinished})

	rec, _, _ := store.Get(ctx, "abc-1")
	if rec.Status != task.StatusConverting || rec.Progress != ConvertingCheckpoint {
		t.Errorf("Expected converting/90, got %s/%v", rec.Status, rec.Progress)
	}
	if rec.Message != "Converting to MP3..." {
		t.Errorf("Unexpected message %q", rec.Message)
	}
	if rec.Speed != "" || rec.ETA != "" {
		t.Errorf("Expected transient metrics dropped, got %q/%q", rec.Speed, rec.ETA)
	}
}

func TestReporterErrorPhaseLeavesRecord(t *testing.T) {
	ctx := context.Background()
	store := task.NewMemoryStore()
	r := NewReporter(ctx, store, "abc-1", "mp3")

	r.Report(Event{Phase: PhaseDownloading, Percent: "10%"})
	r.Report(Event{Phase: PhaseError})

	rec, _, _ := store.Get(ctx, "abc-1")
	if rec.Status != task.StatusDownloading || rec.Progress != 10 {
		t.Errorf("Expected error phase to leave the record alone, got %s/%v", rec.Status, rec.Progress)
	}
}

func TestConcurrentPollersSeeNonDecreasingProgress(t *testing.T) {
	ctx := context.Background()
	store := task.NewMemoryStore()
	gw := task.NewGateway(store)
	r := NewReporter(ctx, store, "abc-1", "mp3")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := -1.0
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := gw.QueryStatus(ctx, "abc-1")
				if snap.Status == task.StatusUnknown {
					continue
				}
				if snap.Progress < last {
					t.Errorf("Progress went backwards: %v after %v", snap.Progress, last)
					return
				}
				last = snap.Progress
			}
		}()
	}

	for p := 0; p < ConvertingCheckpoint; p += 5 {
		r.Report(Event{Phase: PhaseDownloading, Percent: FormatPercent(float64(p))})
	}
	r.Report(Event{Phase: PhaseFinished})
	close(stop)
	wg.Wait()
}
