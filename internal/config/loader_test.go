package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nupi-ai/plugin-live-translate/internal/config"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
}

func TestLoaderDefaults(t *testing.T) {
	loader := config.Loader{Lookup: mapLookup(nil)}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	assertEqual(t, config.DefaultListenAddr, cfg.ListenAddr, "listen addr")
	assertEqual(t, config.DefaultChannelEndpoint, cfg.ChannelEndpoint, "channel endpoint")
	assertEqual(t, config.DefaultEngine, cfg.Engine, "engine")
	assertEqual(t, config.DefaultCaptureBackend, cfg.CaptureBackend, "capture backend")
	assertEqual(t, config.DefaultTargetLanguage, cfg.TranslationTargetLanguage, "target language")
	assertEqual(t, config.DefaultLanguage, cfg.Language, "language")
	if cfg.CaptureDuration() != 5*time.Second {
		t.Fatalf("expected 5s capture duration, got %s", cfg.CaptureDuration())
	}
	if cfg.SampleRateHz != 16000 {
		t.Fatalf("expected 16000 Hz, got %d", cfg.SampleRateHz)
	}
	if cfg.MaxCaptureRetries != 0 {
		t.Fatalf("expected unbounded capture retries, got %d", cfg.MaxCaptureRetries)
	}
	if cfg.InferenceTimeout != 0 {
		t.Fatalf("expected no inference timeout by default, got %s", cfg.InferenceTimeout)
	}
	if !cfg.ReconnectOnPublishFailure {
		t.Fatalf("expected reconnect on publish failure by default")
	}
	if cfg.AutoStart {
		t.Fatalf("expected auto start disabled by default")
	}
	if cfg.Threads != nil || cfg.UseGPU != nil {
		t.Fatalf("expected native options unset, got threads=%v gpu=%v", cfg.Threads, cfg.UseGPU)
	}
}

func TestLoaderOverrides(t *testing.T) {
	env := map[string]string{
		"RELAY_CONFIG":                   `{"engine":"http","whisper_http_url":"http://whisper:9000/infer","sample_rate_hz":8000,"inference_timeout":"20s","threads":4}`,
		"RELAY_LISTEN_ADDR":              "0.0.0.0:8080",
		"RELAY_CHANNEL_ENDPOINT":         "hub:4000",
		"RELAY_CAPTURE_DURATION_SECONDS": "2.5",
		"RELAY_SAMPLE_RATE_HZ":           "16000",
		"RELAY_MAX_CAPTURE_RETRIES":      "3",
		"RELAY_AUTO_START":               "true",
		"RELAY_LOG_LEVEL":                "debug",
		"RELAY_CAPTURE_BACKEND":          "FFmpeg",
		"WHISPERCPP_USE_GPU":             "false",
	}

	cfg, err := config.Loader{Lookup: mapLookup(env)}.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	assertEqual(t, "0.0.0.0:8080", cfg.ListenAddr, "listen addr")
	assertEqual(t, "hub:4000", cfg.ChannelEndpoint, "channel endpoint")
	assertEqual(t, "http", cfg.Engine, "engine")
	assertEqual(t, "http://whisper:9000/infer", cfg.WhisperHTTPURL, "whisper url")
	assertEqual(t, "debug", cfg.LogLevel, "log level")
	assertEqual(t, "ffmpeg", cfg.CaptureBackend, "capture backend")
	if cfg.SampleRateHz != 16000 {
		t.Fatalf("env must win over JSON: got %d", cfg.SampleRateHz)
	}
	if cfg.CaptureDuration() != 2500*time.Millisecond {
		t.Fatalf("unexpected capture duration %s", cfg.CaptureDuration())
	}
	if cfg.MaxCaptureRetries != 3 {
		t.Fatalf("unexpected retries %d", cfg.MaxCaptureRetries)
	}
	if cfg.InferenceTimeout != 20*time.Second {
		t.Fatalf("unexpected inference timeout %s", cfg.InferenceTimeout)
	}
	if !cfg.AutoStart {
		t.Fatalf("expected auto start enabled")
	}
	if cfg.Threads == nil || *cfg.Threads != 4 {
		t.Fatalf("unexpected threads %v", cfg.Threads)
	}
	if cfg.UseGPU == nil || *cfg.UseGPU {
		t.Fatalf("unexpected use_gpu %v", cfg.UseGPU)
	}
}

func TestLoaderYAMLFileAndDotenv(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "relay.yaml")
	yamlBody := strings.Join([]string{
		"engine: stub",
		"capture_backend: silence",
		"capture_duration_seconds: 1",
		"channel_endpoint: ws://hub.internal:3000/ws",
		"reconnect_on_publish_failure: false",
		"write_timeout: 500ms",
	}, "\n")
	if err := os.WriteFile(yamlPath, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	envPath := filepath.Join(dir, ".env")
	envBody := "RELAY_CONFIG_FILE=" + yamlPath + "\nRELAY_LOG_LEVEL=warn\n"
	if err := os.WriteFile(envPath, []byte(envBody), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loader := config.Loader{
		Lookup:   mapLookup(map[string]string{"RELAY_LOG_LEVEL": "error"}),
		EnvFiles: []string{envPath, filepath.Join(dir, "missing.env")},
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	assertEqual(t, config.EngineStub, cfg.Engine, "engine")
	assertEqual(t, config.CaptureSilence, cfg.CaptureBackend, "capture backend")
	assertEqual(t, "ws://hub.internal:3000/ws", cfg.ChannelEndpoint, "channel endpoint")
	assertEqual(t, "error", cfg.LogLevel, "process env must win over .env")
	if cfg.ReconnectOnPublishFailure {
		t.Fatalf("expected reconnect disabled by YAML")
	}
	if cfg.WriteTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected write timeout %s", cfg.WriteTimeout)
	}
	if cfg.CaptureDuration() != time.Second {
		t.Fatalf("unexpected capture duration %s", cfg.CaptureDuration())
	}
}

func TestLoaderThreadsAuto(t *testing.T) {
	cfg, err := config.Loader{Lookup: mapLookup(map[string]string{
		"RELAY_CONFIG": `{"threads":0}`,
	})}.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Threads != nil {
		t.Fatalf("expected threads nil when configured as 0, got %v", *cfg.Threads)
	}
}

func TestLoaderRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad duration", map[string]string{"RELAY_INFERENCE_TIMEOUT": "soon"}, "RELAY_INFERENCE_TIMEOUT"},
		{"bad int", map[string]string{"RELAY_SAMPLE_RATE_HZ": "fast"}, "RELAY_SAMPLE_RATE_HZ"},
		{"non whisper sample rate", map[string]string{"RELAY_SAMPLE_RATE_HZ": "44100", "RELAY_ENGINE": "stub"}, "sample_rate_hz"},
		{"non whisper rate from json", map[string]string{"RELAY_CONFIG": `{"sample_rate_hz":8000}`}, "sample_rate_hz"},
		{"negative duration", map[string]string{"RELAY_CAPTURE_DURATION_SECONDS": "-1"}, "capture_duration_seconds"},
		{"negative retries", map[string]string{"RELAY_MAX_CAPTURE_RETRIES": "-2"}, "max_capture_retries"},
		{"non english target", map[string]string{"RELAY_TRANSLATION_TARGET_LANGUAGE": "de"}, "translation_target_language"},
		{"unknown engine", map[string]string{"RELAY_ENGINE": "parakeet"}, "unknown engine"},
		{"openai without key", map[string]string{"RELAY_ENGINE": "openai"}, "openai_api_key"},
		{"http without url", map[string]string{"RELAY_ENGINE": "http"}, "whisper_http_url"},
		{"wav without file", map[string]string{"RELAY_CAPTURE_BACKEND": "wav"}, "capture_file"},
		{"bad json", map[string]string{"RELAY_CONFIG": `{`}, "RELAY_CONFIG"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Loader{Lookup: mapLookup(tc.env)}.Load()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func assertEqual(t *testing.T, want, got, label string) {
	t.Helper()
	if want != got {
		t.Fatalf("unexpected %s: want %q, got %q", label, want, got)
	}
}
