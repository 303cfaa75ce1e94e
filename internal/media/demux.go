// Package media prepares audio and video sources for transcription:
// demuxing container formats down to the mono PCM WAV track a
// Whisper-style engine expects, and probing source duration so transcript
// paragraphs can carry timestamps.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	// wavSampleRate is the sample rate transcription engines are trained
	// on; everything is downsampled to it during demux.
	wavSampleRate = 16000
)

// DemuxToWAV extracts the audio track of src (any container ffmpeg can
// read) and re-encodes it as mono 16 kHz PCM WAV. ffmpegPath defaults to
// "ffmpeg" on PATH.
func DemuxToWAV(ctx context.Context, src []byte, ffmpegPath string) ([]byte, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	in, err := os.CreateTemp("", "demux-in-*")
	if err != nil {
		return nil, fmt.Errorf("demux: %w", err)
	}
	defer os.Remove(in.Name())
	if _, err := in.Write(src); err != nil {
		in.Close()
		return nil, fmt.Errorf("demux: %w", err)
	}
	in.Close()

	outPath := in.Name() + ".wav"
	defer os.Remove(outPath)

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-y",
		"-i", in.Name(),
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(wavSampleRate),
		"-f", "wav",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("demux: ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}

	wav, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("demux: %w", err)
	}
	return wav, nil
}

// ProbeDuration returns the duration of src via ffprobe, or 0 with an
// error when probing fails. ffprobePath defaults to "ffprobe" on PATH.
func ProbeDuration(ctx context.Context, src []byte, ffprobePath string) (time.Duration, error) {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	tmp, err := os.CreateTemp("", "probe-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(src); err != nil {
		tmp.Close()
		return 0, err
	}
	tmp.Close()

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		tmp.Name(),
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probe: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("probe: unparseable duration %q", strings.TrimSpace(string(out)))
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// IsVideo reports whether a MIME type names a video container that needs
// demuxing before transcription.
func IsVideo(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
