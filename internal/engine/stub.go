package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nupi-ai/plugin-live-translate/internal/audio"
	"github.com/nupi-ai/plugin-live-translate/internal/moduleinfo"
)

// StubEngine produces deterministic transcripts without invoking Whisper.
// Both texts carry the segment ID so callers can verify pairing.
type StubEngine struct {
	log          *slog.Logger
	modelVariant string
	contract     InputContract
	calls        atomic.Int64
}

// NewStubEngine returns an Engine that generates placeholder transcripts.
func NewStubEngine(logger *slog.Logger, modelVariant string) *StubEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEngine{
		log: logger.With(
			"component", "engine.stub",
			"module", moduleinfo.Info.Slug,
			"model_variant", modelVariant,
		),
		modelVariant: modelVariant,
		contract:     WhisperContract,
	}
}

// Close implements the Engine interface.
func (e *StubEngine) Close() error {
	return nil
}

// Transcribe implements the Engine interface.
func (e *StubEngine) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	return e.run(ctx, seg, TaskTranscribe)
}

// Translate implements the Engine interface.
func (e *StubEngine) Translate(ctx context.Context, seg audio.Segment) (string, error) {
	return e.run(ctx, seg, TaskTranslate)
}

// Calls reports how many inference calls the stub has served.
func (e *StubEngine) Calls() int64 { return e.calls.Load() }

func (e *StubEngine) run(ctx context.Context, seg audio.Segment, task Task) (string, error) {
	if err := e.contract.Validate(seg); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", inferenceError("stub", task, err)
	}
	e.calls.Add(1)
	text := fmt.Sprintf("[stub:%s] %s %s (%d samples)", e.modelVariant, task, seg.ID, len(seg.Samples))
	e.log.Debug("stub transcript", "task", task, "segment", seg.ID, "sequence", seg.Sequence)
	return text, nil
}
