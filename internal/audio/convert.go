package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

var ErrFFmpegNotFound = errors.New("ffmpeg binary not found in PATH")

const convertTimeout = 30 * time.Second

// FFmpegConverter shells out to ffmpeg to convert Telegram OGG/Opus voice
// messages to MP3, which is what the transcription API accepts reliably.
type FFmpegConverter struct {
	binary string
	logger *zerolog.Logger
}

// NewFFmpegConverter locates ffmpeg and returns a converter.
func NewFFmpegConverter(logger *zerolog.Logger) (*FFmpegConverter, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, ErrFFmpegNotFound
	}
	return &FFmpegConverter{binary: path, logger: logger}, nil
}

// OggToMP3 converts the given OGG payload to MP3 via temp files.
func (f *FFmpegConverter) OggToMP3(ctx context.Context, ogg []byte) ([]byte, error) {
	if len(ogg) == 0 {
		return nil, fmt.Errorf("empty ogg payload")
	}

	dir, err := os.MkdirTemp("", "voice-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "voice.ogg")
	outPath := filepath.Join(dir, "voice.mp3")
	if err := os.WriteFile(inPath, ogg, 0o600); err != nil {
		return nil, fmt.Errorf("write temp ogg: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, convertTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, f.binary,
		"-hide_banner", "-loglevel", "error",
		"-i", inPath,
		"-acodec", "libmp3lame",
		"-ab", "64k",
		"-y", outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		f.logger.Error().Err(err).Str("output", string(out)).Msg("ffmpeg conversion failed")
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	mp3, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read converted mp3: %w", err)
	}
	return mp3, nil
}
