// Package converter fetches remote media and leaves an audio file in a
// working directory.
package converter

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"audio-extractor/internal/progress"
)

// Request describes one conversion. Dir is owned by the caller and already
// exists; the produced file must be written somewhere below it.
type Request struct {
	URL     string
	Dir     string
	Codec   string
	Quality string
}

type Result struct {
	// Title of the source media, empty when the backend could not tell.
	Title string
}

// Converter runs one conversion to completion, reporting progress to sink.
// It returns when the audio file is on disk or the conversion failed.
type Converter interface {
	Convert(ctx context.Context, req Request, sink progress.Sink) (Result, error)
}

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"opus": "audio/ogg",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"wav":  "audio/wav",
}

// ContentType returns the MIME type served for files of the given codec.
func ContentType(codec string) string {
	codec = strings.ToLower(codec)
	if ct, ok := contentTypes[codec]; ok {
		return ct
	}
	if ct := mime.TypeByExtension("." + codec); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// formatETA renders d as MM:SS, or H:MM:SS past an hour.
func formatETA(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	secs := int(d.Round(time.Second).Seconds())
	h, m, s := secs/3600, (secs/60)%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
