package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/nupi-ai/plugin-live-translate/internal/audio"
)

// OpenAIOptions configures the hosted whisper backend.
type OpenAIOptions struct {
	APIKey   string
	Model    string
	BaseURL  string
	Language string
	// SpoolDir holds temporary WAV files; empty uses os.TempDir.
	SpoolDir string
}

// OpenAIEngine calls the OpenAI audio transcription and translation endpoints.
type OpenAIEngine struct {
	client   *openai.Client
	model    string
	language string
	spoolDir string
	contract InputContract
	log      *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewOpenAIEngine validates opts and builds a client.
func NewOpenAIEngine(opts OpenAIOptions, logger *slog.Logger) (*OpenAIEngine, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("engine: openai api key required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	clientCfg := openai.DefaultConfig(opts.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIEngine{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		language: explicitLanguage(opts.Language),
		spoolDir: opts.SpoolDir,
		contract: WhisperContract,
		log:      logger.With("component", "engine.openai", "model", model),
	}, nil
}

// Transcribe implements the Engine interface.
func (e *OpenAIEngine) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	return e.run(ctx, seg, TaskTranscribe)
}

// Translate implements the Engine interface.
func (e *OpenAIEngine) Translate(ctx context.Context, seg audio.Segment) (string, error) {
	return e.run(ctx, seg, TaskTranslate)
}

// Close implements the Engine interface.
func (e *OpenAIEngine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func (e *OpenAIEngine) run(ctx context.Context, seg audio.Segment, task Task) (string, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}
	if err := e.contract.Validate(seg); err != nil {
		return "", err
	}

	path, cleanup, err := audio.WriteTempWAV(e.spoolDir, seg)
	if err != nil {
		return "", inferenceError("openai", task, err)
	}
	defer cleanup()

	req := openai.AudioRequest{
		Model:    e.model,
		FilePath: path,
		Format:   openai.AudioResponseFormatJSON,
	}

	var resp openai.AudioResponse
	switch task {
	case TaskTranslate:
		resp, err = e.client.CreateTranslation(ctx, req)
	default:
		req.Language = e.language
		resp, err = e.client.CreateTranscription(ctx, req)
	}
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			e.log.Debug("openai request rejected", "task", task, "status", apiErr.HTTPStatusCode, "segment", seg.ID)
		}
		return "", inferenceError("openai", task, err)
	}
	return cleanTranscript(resp.Text), nil
}
