package audio

import (
	"context"
	"os/exec"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFFmpegConverter_Missing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	logger := zerolog.Nop()

	_, err := NewFFmpegConverter(&logger)
	assert.ErrorIs(t, err, ErrFFmpegNotFound)
}

func TestOggToMP3_EmptyPayload(t *testing.T) {
	logger := zerolog.Nop()
	conv := &FFmpegConverter{binary: "ffmpeg", logger: &logger}

	_, err := conv.OggToMP3(context.Background(), nil)
	assert.Error(t, err)
}

func TestOggToMP3_BadInput(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	logger := zerolog.Nop()
	conv, err := NewFFmpegConverter(&logger)
	require.NoError(t, err)

	_, err = conv.OggToMP3(context.Background(), []byte("not an ogg file"))
	assert.Error(t, err)
}
