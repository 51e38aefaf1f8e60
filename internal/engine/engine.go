package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/nupi-ai/plugin-live-translate/internal/audio"
	"github.com/nupi-ai/plugin-live-translate/internal/config"
)

// Engine wraps a speech model. Transcribe returns text in the spoken
// language; Translate returns English text. Both operate on the whole segment.
type Engine interface {
	Transcribe(ctx context.Context, seg audio.Segment) (string, error)
	Translate(ctx context.Context, seg audio.Segment) (string, error)
	// Close releases underlying resources.
	Close() error
}

// Task selects which inference an engine runs.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// InputContract describes the audio format a model accepts.
type InputContract struct {
	SampleRate  int
	Channels    int
	SampleWidth int
}

// WhisperContract is the format every whisper backend expects.
var WhisperContract = InputContract{SampleRate: config.WhisperSampleRate, Channels: 1, SampleWidth: audio.SampleWidth}

// Validate checks seg against the contract.
func (c InputContract) Validate(seg audio.Segment) error {
	switch {
	case seg.Empty():
		return &InvalidInputError{Reason: "segment has no samples"}
	case seg.SampleRate != c.SampleRate:
		return &InvalidInputError{Reason: fmt.Sprintf("sample rate %d Hz, model expects %d Hz", seg.SampleRate, c.SampleRate)}
	case seg.Channels != c.Channels:
		return &InvalidInputError{Reason: fmt.Sprintf("%d channels, model expects %d", seg.Channels, c.Channels)}
	case seg.SampleWidth() != c.SampleWidth:
		return &InvalidInputError{Reason: fmt.Sprintf("sample width %d bytes, model expects %d", seg.SampleWidth(), c.SampleWidth)}
	}
	return nil
}

// InvalidInputError reports audio the model cannot accept.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "engine: invalid input: " + e.Reason
}

// InferenceError reports a model failure while processing valid input.
type InferenceError struct {
	Backend string
	Task    Task
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("engine: %s %s failed: %v", e.Backend, e.Task, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// ErrClosed is returned by engines used after Close.
var ErrClosed = errors.New("engine: closed")

func inferenceError(backend string, task Task, err error) error {
	return &InferenceError{Backend: backend, Task: task, Err: err}
}
