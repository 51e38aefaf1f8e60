package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nupi-ai/plugin-live-translate/internal/config"
)

// ErrNativeEngineUnavailable indicates the binary was built without the whispercpp tag.
var ErrNativeEngineUnavailable = errors.New("engine: native backend unavailable")

// New builds the engine selected by cfg.Engine. A backend that cannot be
// built is reported, never replaced by the stub.
func New(cfg config.Config, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Engine {
	case config.EngineStub:
		logger.Warn("stub engine selected by configuration")
		return NewStubEngine(logger, cfg.ModelVariant), nil
	case config.EngineOpenAI:
		hosted, err := NewOpenAIEngine(OpenAIOptions{
			APIKey:   cfg.OpenAIAPIKey,
			Model:    cfg.OpenAIModel,
			BaseURL:  cfg.OpenAIBaseURL,
			Language: cfg.Language,
			SpoolDir: cfg.SpoolDir,
		}, logger)
		if err != nil {
			return nil, err
		}
		return hosted, nil
	case config.EngineHTTP:
		remote, err := NewHTTPEngine(cfg.WhisperHTTPURL, cfg.Language, nil, logger)
		if err != nil {
			return nil, err
		}
		return remote, nil
	case config.EngineNative:
		if !NativeAvailable() {
			return nil, fmt.Errorf("%w: rebuild with -tags whispercpp or choose another engine", ErrNativeEngineUnavailable)
		}
		modelPath, err := ResolveModelPath(cfg.ModelPath, cfg.ModelVariant)
		if err != nil {
			return nil, err
		}
		native, err := NewNativeEngine(modelPath, NativeOptions{
			Threads:  cfg.Threads,
			UseGPU:   cfg.UseGPU,
			Language: cfg.Language,
		}, logger)
		if err != nil {
			logger.Error("native engine initialisation failed", "error", err, "model_path", modelPath)
			return nil, err
		}
		logger.Info("native engine ready", "model_path", modelPath)
		return native, nil
	default:
		return nil, fmt.Errorf("engine: unknown backend %q", cfg.Engine)
	}
}

// ModelFilename is the ggml file name whisper.cpp publishes for variant.
func ModelFilename(variant string) string {
	variant = strings.TrimSpace(variant)
	if variant == "" {
		variant = config.DefaultModel
	}
	return "ggml-" + variant + ".bin"
}

// ResolveModelPath locates the model file. path may name the file itself or
// a directory holding ggml-<variant>.bin.
func ResolveModelPath(path, variant string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("models", ModelFilename(variant))
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("engine: model %s: %w", path, err)
	}
	if info.IsDir() {
		candidate := filepath.Join(path, ModelFilename(variant))
		if _, err := os.Stat(candidate); err != nil {
			return "", fmt.Errorf("engine: model %s: %w", candidate, err)
		}
		return candidate, nil
	}
	return path, nil
}
