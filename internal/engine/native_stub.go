//go:build !whispercpp

package engine

import (
	"context"
	"log/slog"

	"github.com/nupi-ai/plugin-live-translate/internal/audio"
)

// NativeAvailable reports whether the native whisper backend is compiled in.
func NativeAvailable() bool { return false }

// NewNativeEngine returns an error when the native backend is not built.
func NewNativeEngine(modelPath string, opts NativeOptions, logger *slog.Logger) (*NativeEngine, error) {
	return nil, ErrNativeEngineUnavailable
}

// NativeEngine is a stub that satisfies the Engine interface when the native backend is absent.
type NativeEngine struct{}

func (e *NativeEngine) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	return "", ErrNativeEngineUnavailable
}

func (e *NativeEngine) Translate(ctx context.Context, seg audio.Segment) (string, error) {
	return "", ErrNativeEngineUnavailable
}

func (e *NativeEngine) Close() error { return nil }
