package converter

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"audio-extractor/internal/progress"

	"github.com/dustin/go-humanize"
	"github.com/lrstanley/go-ytdlp"
)

const progressInterval = 500 * time.Millisecond

// YtDlp converts through the yt-dlp executable, which does both the download
// and the ffmpeg post-processing.
type YtDlp struct {
	FFmpegPath string
}

func NewYtDlp(ffmpegPath string) *YtDlp {
	return &YtDlp{FFmpegPath: ffmpegPath}
}

// Install makes sure a yt-dlp binary is available, downloading one into the
// user cache when it is not on PATH.
func Install(ctx context.Context) error {
	resolved, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return err
	}
	slog.Info("yt-dlp ready", "path", resolved.Executable, "version", resolved.Version)
	return nil
}

func (y *YtDlp) Convert(ctx context.Context, req Request, sink progress.Sink) (Result, error) {
	dl := ytdlp.New().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat(req.Codec).
		AudioQuality(req.Quality).
		NoPlaylist().
		ForceOverwrites().
		Output(filepath.Join(req.Dir, "%(title)s.%(ext)s"))

	if y.FFmpegPath != "" && y.FFmpegPath != "ffmpeg" {
		dl.FFmpegLocation(y.FFmpegPath)
	}

	m := &updateMapper{}
	dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
		if ev, ok := m.event(update, time.Now()); ok {
			sink.Report(ev)
		}
	})

	res, err := dl.Run(ctx, req.URL)
	if err != nil {
		return Result{Title: m.title()}, err
	}

	title := m.title()
	if title == "" && res != nil {
		if info, err := res.GetExtractedInfo(); err == nil && len(info) > 0 && info[0].Title != nil {
			title = *info[0].Title
		}
	}
	return Result{Title: title}, nil
}

// updateMapper turns yt-dlp progress updates into progress events. Once the
// download has finished, later download updates (extra fragments, retries)
// are dropped so reported progress never moves backwards.
type updateMapper struct {
	mu       sync.Mutex
	finished bool
	name     string
}

func (m *updateMapper) event(update ytdlp.ProgressUpdate, now time.Time) (progress.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if update.Info != nil && update.Info.Title != nil && *update.Info.Title != "" && m.name == "" {
		m.name = *update.Info.Title
	}

	switch update.Status {
	case ytdlp.ProgressStatusDownloading:
		if m.finished {
			return progress.Event{}, false
		}
		ev := progress.Event{Phase: progress.PhaseDownloading}
		if update.TotalBytes > 0 {
			ev.Percent = progress.FormatPercent(float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100)
		}
		if !update.Started.IsZero() {
			if elapsed := now.Sub(update.Started).Seconds(); elapsed > 0 {
				ev.Speed = humanize.IBytes(uint64(float64(update.DownloadedBytes)/elapsed)) + "/s"
			}
		}
		ev.ETA = formatETA(update.ETA())
		return ev, true
	case ytdlp.ProgressStatusFinished, ytdlp.ProgressStatusPostProcessing:
		if m.finished {
			return progress.Event{}, false
		}
		m.finished = true
		return progress.Event{Phase: progress.PhaseFinished}, true
	case ytdlp.ProgressStatusError:
		return progress.Event{Phase: progress.PhaseError}, true
	}
	return progress.Event{}, false
}

func (m *updateMapper) title() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}
