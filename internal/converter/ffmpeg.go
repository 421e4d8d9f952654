package converter

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const FFmpegCommand = "ffmpeg"

// audio encoders per output extension
var audioEncoders = map[string]string{
	"mp3":  "libmp3lame",
	"m4a":  "aac",
	"aac":  "aac",
	"opus": "libopus",
	"ogg":  "libvorbis",
	"flac": "flac",
	"wav":  "pcm_s16le",
}

var losslessCodecs = map[string]bool{"flac": true, "wav": true}

// FFmpeg transcodes a local media file into an audio-only file.
type FFmpeg struct {
	Path string
}

func (f FFmpeg) Transcode(ctx context.Context, input, output, codec, quality string) error {
	path := f.Path
	if path == "" {
		path = FFmpegCommand
	}

	cmd := exec.CommandContext(ctx, path, BuildFFmpegArgs(input, output, codec, quality)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(out))
	}
	return nil
}

// BuildFFmpegArgs builds the ffmpeg command arguments. quality is either a
// VBR level 0-10 or a bitrate in kbit/s, matching yt-dlp's --audio-quality.
func BuildFFmpegArgs(input, output, codec, quality string) []string {
	codec = strings.ToLower(codec)
	encoder, ok := audioEncoders[codec]
	if !ok {
		encoder = codec
	}

	args := []string{
		"-y",        // Overwrite output file
		"-i", input, // Input file
		"-vn",           // Drop video
		"-c:a", encoder, // Audio codec
	}

	if q := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(quality)), "k"); q != "" && !losslessCodecs[codec] {
		if n, err := strconv.Atoi(q); err == nil && n <= 10 {
			args = append(args, "-q:a", q)
		} else {
			args = append(args, "-b:a", q+"k")
		}
	}

	return append(args,
		"-nostats",
		"-loglevel", "error",
		output,
	)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
