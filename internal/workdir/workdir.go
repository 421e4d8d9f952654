// Package workdir provides the per-job scratch directory a conversion writes
// into. Everything under it is removed by Cleanup.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// partial download leftovers never count as produced files
var skippedSuffixes = []string{".part", ".ytdl", ".aria2", ".temp"}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

type Dir struct {
	path string
}

// New creates a fresh directory under root (os.TempDir when empty). The task
// id only labels the directory name.
func New(root, taskID string) (*Dir, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	label := unsafeIDChars.ReplaceAllString(taskID, "")
	if len(label) > 32 {
		label = label[:32]
	}
	path, err := os.MkdirTemp(root, "job-"+label+"-")
	if err != nil {
		return nil, err
	}
	return &Dir{path: path}, nil
}

func (d *Dir) Path() string {
	return d.path
}

// Find returns the first regular file (by name) ending in ext, searching the
// whole tree. ext may be given with or without the leading dot.
func (d *Dir) Find(ext string) (string, error) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	var matches []string
	err := filepath.WalkDir(d.path, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}
		name := entry.Name()
		for _, suffix := range skippedSuffixes {
			if strings.HasSuffix(name, suffix) {
				return nil
			}
		}
		if strings.EqualFold(filepath.Ext(name), ext) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", os.ErrNotExist
	}
	sort.Strings(matches)
	return matches[0], nil
}

// Cleanup removes the directory and everything in it.
func (d *Dir) Cleanup() error {
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("failed to remove work dir %s: %w", d.path, err)
	}
	return nil
}
