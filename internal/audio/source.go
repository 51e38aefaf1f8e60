package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nupi-ai/plugin-live-translate/internal/config"
)

// Source acquires fixed-length blocks of mono PCM16 audio. Calls never
// overlap; each call holds the device exclusively until it returns.
type Source interface {
	Capture(ctx context.Context, duration time.Duration, sampleRate int) (Segment, error)
	Close() error
}

// NewSource builds the capture backend selected by cfg.CaptureBackend.
func NewSource(cfg config.Config, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.CaptureBackend {
	case config.CaptureArecord:
		return NewArecordSource(cfg.CaptureDevice, logger), nil
	case config.CaptureFFmpeg:
		return NewFFmpegSource(cfg.CaptureDevice, logger), nil
	case config.CaptureWAV:
		src, err := NewWAVSource(cfg.CaptureFile, logger)
		if err != nil {
			return nil, err
		}
		if src.SampleRate() != cfg.SampleRateHz {
			return nil, fmt.Errorf("audio: %s recorded at %d Hz, sample_rate_hz is %d", cfg.CaptureFile, src.SampleRate(), cfg.SampleRateHz)
		}
		return src, nil
	case config.CaptureSilence:
		return NewSilenceSource(logger), nil
	default:
		return nil, fmt.Errorf("audio: unknown capture backend %q", cfg.CaptureBackend)
	}
}
