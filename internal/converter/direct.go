package converter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audio-extractor/internal/downloader"
	"audio-extractor/internal/progress"

	"github.com/dustin/go-humanize"
)

const sourceSubdir = "source"

// Direct fetches the media file with aria2 and transcodes it locally with
// ffmpeg. The aria2 daemon must write to the same filesystem as this process.
type Direct struct {
	aria2   *downloader.Aria2Client
	ffmpeg  FFmpeg
	headers map[string]string
	poll    time.Duration
}

func NewDirect(aria2 *downloader.Aria2Client, ffmpeg FFmpeg, headers map[string]string) *Direct {
	return &Direct{
		aria2:   aria2,
		ffmpeg:  ffmpeg,
		headers: headers,
		poll:    progressInterval,
	}
}

func (d *Direct) Convert(ctx context.Context, req Request, sink progress.Sink) (Result, error) {
	srcDir := filepath.Join(req.Dir, sourceSubdir)
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		return Result{}, err
	}

	gid, err := d.aria2.AddUri(ctx, req.URL, srcDir, "", d.headers)
	if err != nil {
		return Result{}, fmt.Errorf("aria2 add: %w", err)
	}

	st, err := d.wait(ctx, gid, sink)
	if err != nil {
		return Result{}, err
	}
	sink.Report(progress.Event{Phase: progress.PhaseFinished})

	input := downloadedPath(st)
	if input == "" {
		return Result{}, fmt.Errorf("aria2 reported no file for %s", req.URL)
	}
	title := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	output := filepath.Join(req.Dir, title+"."+strings.ToLower(req.Codec))

	if err := d.ffmpeg.Transcode(ctx, input, output, req.Codec, req.Quality); err != nil {
		return Result{Title: title}, err
	}
	// keep the source out of the artifact search
	if err := os.RemoveAll(srcDir); err != nil {
		slog.Warn("Failed to remove source download", "dir", srcDir, "error", err)
	}
	return Result{Title: title}, nil
}

// wait polls aria2 until gid completes, translating its counters into
// download events.
func (d *Direct) wait(ctx context.Context, gid string, sink progress.Sink) (downloader.Status, error) {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		st, err := d.aria2.TellStatus(ctx, gid)
		if err != nil && ctx.Err() == nil {
			return st, fmt.Errorf("aria2 status: %w", err)
		}

		if err == nil {
			switch st.Status {
			case downloader.StatusComplete:
				d.forget(gid)
				return st, nil
			case downloader.StatusError:
				d.forget(gid)
				return st, fmt.Errorf("aria2: %s", st.ErrorMessage)
			case downloader.StatusRemoved:
				d.forget(gid)
				return st, fmt.Errorf("aria2 download %s was removed", gid)
			default:
				sink.Report(statusEvent(st))
			}
		}

		select {
		case <-ctx.Done():
			// the request context is gone, talk to aria2 on a fresh one
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := d.aria2.ForceRemove(c, gid); err != nil {
				slog.Warn("Failed to stop aria2 download", "gid", gid, "error", err)
			}
			cancel()
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Direct) forget(gid string) {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.aria2.RemoveDownloadResult(c, gid); err != nil {
		slog.Debug("Failed to remove aria2 result", "gid", gid, "error", err)
	}
}

func statusEvent(st downloader.Status) progress.Event {
	ev := progress.Event{Phase: progress.PhaseDownloading}
	total, done, speed := st.Total(), st.Completed(), st.Speed()
	if total > 0 {
		ev.Percent = progress.FormatPercent(float64(done) / float64(total) * 100)
	}
	if speed > 0 {
		ev.Speed = humanize.IBytes(uint64(speed)) + "/s"
		if total > done {
			ev.ETA = formatETA(time.Duration(float64(total-done)/float64(speed)) * time.Second)
		}
	}
	return ev
}

func downloadedPath(st downloader.Status) string {
	for _, f := range st.Files {
		if f.Path != "" {
			return f.Path
		}
	}
	return ""
}
