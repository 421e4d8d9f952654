package workdir

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewAndCleanup(t *testing.T) {
	root := t.TempDir()

	d, err := New(root, "abc-1/../../etc")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if filepath.Dir(d.Path()) != root {
		t.Fatalf("Expected dir inside root, got %s", d.Path())
	}
	if !strings.HasPrefix(filepath.Base(d.Path()), "job-abc-1etc-") {
		t.Errorf("Unexpected dir name %s", filepath.Base(d.Path()))
	}

	nested := filepath.Join(d.Path(), "sub")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "song.mp3"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := d.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(d.Path()); !os.IsNotExist(err) {
		t.Errorf("Expected work dir to be removed, stat err=%v", err)
	}
	if err := d.Cleanup(); err != nil {
		t.Errorf("Expected second Cleanup to be a no-op, got %v", err)
	}
}

func TestNewUniquePerCall(t *testing.T) {
	root := t.TempDir()
	a, err := New(root, "same")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(root, "same")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Path() == b.Path() {
		t.Errorf("Expected distinct directories for the same task id")
	}
}

func TestFind(t *testing.T) {
	d, err := New(t.TempDir(), "find")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Cleanup()

	if _, err := d.Find("mp3"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Expected ErrNotExist in empty dir, got %v", err)
	}

	files := []string{"b.webm", "a.mp3.part", "Song.MP3", "cover.jpg"}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(d.Path(), name), []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	got, err := d.Find(".mp3")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if filepath.Base(got) != "Song.MP3" {
		t.Errorf("Expected Song.MP3, got %s", filepath.Base(got))
	}
}
