package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader loads configuration from environment variables. Tests can override
// Lookup to inject deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
	// EnvFiles are dotenv files consulted after the process environment.
	// Missing files are ignored.
	EnvFiles []string
}

// Load retrieves the relay configuration and validates it. Precedence, lowest
// first: defaults, RELAY_CONFIG_FILE (YAML), RELAY_CONFIG (JSON), individual
// environment variables.
func (l Loader) Load() (Config, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if len(l.EnvFiles) > 0 {
		fileEnv, err := readEnvFiles(l.EnvFiles)
		if err != nil {
			return Config{}, err
		}
		lookup = layered(lookup, fileEnv)
	}

	cfg := Defaults()

	if path, ok := lookup("RELAY_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		if err := applyYAMLFile(strings.TrimSpace(path), &cfg); err != nil {
			return Config{}, err
		}
	}
	if raw, ok := lookup("RELAY_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		if err := applyJSON(raw, &cfg); err != nil {
			return Config{}, err
		}
	}

	overrideString(lookup, "RELAY_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(lookup, "RELAY_HEALTH_ADDR", &cfg.HealthAddr)
	overrideString(lookup, "RELAY_HUB_LISTEN_ADDR", &cfg.HubListenAddr)
	overrideString(lookup, "RELAY_LOG_LEVEL", &cfg.LogLevel)
	overrideString(lookup, "RELAY_CAPTURE_BACKEND", &cfg.CaptureBackend)
	overrideString(lookup, "RELAY_CAPTURE_DEVICE", &cfg.CaptureDevice)
	overrideString(lookup, "RELAY_CAPTURE_FILE", &cfg.CaptureFile)
	overrideString(lookup, "RELAY_ENGINE", &cfg.Engine)
	overrideString(lookup, "RELAY_MODEL_VARIANT", &cfg.ModelVariant)
	overrideString(lookup, "RELAY_MODEL_PATH", &cfg.ModelPath)
	overrideString(lookup, "RELAY_LANGUAGE_HINT", &cfg.Language)
	overrideString(lookup, "RELAY_TRANSLATION_TARGET_LANGUAGE", &cfg.TranslationTargetLanguage)
	overrideString(lookup, "RELAY_SPOOL_DIR", &cfg.SpoolDir)
	overrideString(lookup, "OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	overrideString(lookup, "RELAY_OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	overrideString(lookup, "RELAY_OPENAI_MODEL", &cfg.OpenAIModel)
	overrideString(lookup, "RELAY_OPENAI_BASE_URL", &cfg.OpenAIBaseURL)
	overrideString(lookup, "RELAY_WHISPER_HTTP_URL", &cfg.WhisperHTTPURL)
	overrideString(lookup, "RELAY_CHANNEL_ENDPOINT", &cfg.ChannelEndpoint)

	var errs []error
	errs = append(errs,
		overrideBool(lookup, "RELAY_AUTO_START", &cfg.AutoStart),
		overrideBool(lookup, "RELAY_RECONNECT_ON_PUBLISH_FAILURE", &cfg.ReconnectOnPublishFailure),
		overrideFloat(lookup, "RELAY_CAPTURE_DURATION_SECONDS", &cfg.CaptureDurationSeconds),
		overrideInt(lookup, "RELAY_SAMPLE_RATE_HZ", &cfg.SampleRateHz),
		overrideInt(lookup, "RELAY_MAX_CAPTURE_RETRIES", &cfg.MaxCaptureRetries),
		overrideInt(lookup, "RELAY_HUB_SEND_BUFFER", &cfg.HubSendBuffer),
		overrideDuration(lookup, "RELAY_INFERENCE_TIMEOUT", &cfg.InferenceTimeout),
		overrideDuration(lookup, "RELAY_DIAL_TIMEOUT", &cfg.DialTimeout),
		overrideDuration(lookup, "RELAY_WRITE_TIMEOUT", &cfg.WriteTimeout),
		overrideIntPtr(lookup, "WHISPERCPP_THREADS", &cfg.Threads),
		overrideBoolPtr(lookup, "WHISPERCPP_USE_GPU", &cfg.UseGPU),
	)
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	// Zero threads means "let whisper decide".
	if cfg.Threads != nil && *cfg.Threads == 0 {
		cfg.Threads = nil
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig is the shape shared by RELAY_CONFIG and RELAY_CONFIG_FILE.
// Pointers distinguish "absent" from zero values.
type fileConfig struct {
	ListenAddr    *string `json:"listen_addr" yaml:"listen_addr"`
	HealthAddr    *string `json:"health_addr" yaml:"health_addr"`
	HubListenAddr *string `json:"hub_listen_addr" yaml:"hub_listen_addr"`
	HubSendBuffer *int    `json:"hub_send_buffer" yaml:"hub_send_buffer"`
	LogLevel      *string `json:"log_level" yaml:"log_level"`
	AutoStart     *bool   `json:"auto_start" yaml:"auto_start"`

	CaptureBackend         *string  `json:"capture_backend" yaml:"capture_backend"`
	CaptureDevice          *string  `json:"capture_device" yaml:"capture_device"`
	CaptureFile            *string  `json:"capture_file" yaml:"capture_file"`
	CaptureDurationSeconds *float64 `json:"capture_duration_seconds" yaml:"capture_duration_seconds"`
	SampleRateHz           *int     `json:"sample_rate_hz" yaml:"sample_rate_hz"`
	MaxCaptureRetries      *int     `json:"max_capture_retries" yaml:"max_capture_retries"`

	Engine                    *string `json:"engine" yaml:"engine"`
	ModelVariant              *string `json:"model_variant" yaml:"model_variant"`
	ModelPath                 *string `json:"model_path" yaml:"model_path"`
	Language                  *string `json:"language" yaml:"language"`
	TranslationTargetLanguage *string `json:"translation_target_language" yaml:"translation_target_language"`
	InferenceTimeout          *string `json:"inference_timeout" yaml:"inference_timeout"`
	Threads                   *int    `json:"threads" yaml:"threads"`
	UseGPU                    *bool   `json:"use_gpu" yaml:"use_gpu"`
	SpoolDir                  *string `json:"spool_dir" yaml:"spool_dir"`

	OpenAIAPIKey   *string `json:"openai_api_key" yaml:"openai_api_key"`
	OpenAIModel    *string `json:"openai_model" yaml:"openai_model"`
	OpenAIBaseURL  *string `json:"openai_base_url" yaml:"openai_base_url"`
	WhisperHTTPURL *string `json:"whisper_http_url" yaml:"whisper_http_url"`

	ChannelEndpoint           *string `json:"channel_endpoint" yaml:"channel_endpoint"`
	DialTimeout               *string `json:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout              *string `json:"write_timeout" yaml:"write_timeout"`
	ReconnectOnPublishFailure *bool   `json:"reconnect_on_publish_failure" yaml:"reconnect_on_publish_failure"`
}

func applyJSON(raw string, cfg *Config) error {
	var payload fileConfig
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("config: decode RELAY_CONFIG: %w", err)
	}
	return payload.apply(cfg)
}

func applyYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var payload fileConfig
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return payload.apply(cfg)
}

func (f fileConfig) apply(cfg *Config) error {
	setString(f.ListenAddr, &cfg.ListenAddr)
	setString(f.HealthAddr, &cfg.HealthAddr)
	setString(f.HubListenAddr, &cfg.HubListenAddr)
	setString(f.LogLevel, &cfg.LogLevel)
	setString(f.CaptureBackend, &cfg.CaptureBackend)
	setString(f.CaptureDevice, &cfg.CaptureDevice)
	setString(f.CaptureFile, &cfg.CaptureFile)
	setString(f.Engine, &cfg.Engine)
	setString(f.ModelVariant, &cfg.ModelVariant)
	setString(f.ModelPath, &cfg.ModelPath)
	setString(f.Language, &cfg.Language)
	setString(f.TranslationTargetLanguage, &cfg.TranslationTargetLanguage)
	setString(f.SpoolDir, &cfg.SpoolDir)
	setString(f.OpenAIAPIKey, &cfg.OpenAIAPIKey)
	setString(f.OpenAIModel, &cfg.OpenAIModel)
	setString(f.OpenAIBaseURL, &cfg.OpenAIBaseURL)
	setString(f.WhisperHTTPURL, &cfg.WhisperHTTPURL)
	setString(f.ChannelEndpoint, &cfg.ChannelEndpoint)

	if f.HubSendBuffer != nil {
		cfg.HubSendBuffer = *f.HubSendBuffer
	}
	if f.AutoStart != nil {
		cfg.AutoStart = *f.AutoStart
	}
	if f.CaptureDurationSeconds != nil {
		cfg.CaptureDurationSeconds = *f.CaptureDurationSeconds
	}
	if f.SampleRateHz != nil {
		cfg.SampleRateHz = *f.SampleRateHz
	}
	if f.MaxCaptureRetries != nil {
		cfg.MaxCaptureRetries = *f.MaxCaptureRetries
	}
	if f.Threads != nil {
		threads := *f.Threads
		cfg.Threads = &threads
	}
	if f.UseGPU != nil {
		useGPU := *f.UseGPU
		cfg.UseGPU = &useGPU
	}
	if f.ReconnectOnPublishFailure != nil {
		cfg.ReconnectOnPublishFailure = *f.ReconnectOnPublishFailure
	}

	for _, d := range []struct {
		name   string
		raw    *string
		target *time.Duration
	}{
		{"inference_timeout", f.InferenceTimeout, &cfg.InferenceTimeout},
		{"dial_timeout", f.DialTimeout, &cfg.DialTimeout},
		{"write_timeout", f.WriteTimeout, &cfg.WriteTimeout},
	} {
		if d.raw == nil || strings.TrimSpace(*d.raw) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(*d.raw))
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.name, err)
		}
		*d.target = parsed
	}
	return nil
}

func setString(value *string, target *string) {
	if value != nil && strings.TrimSpace(*value) != "" {
		*target = strings.TrimSpace(*value)
	}
}

func readEnvFiles(paths []string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		// Earlier files win, matching godotenv.Load.
		for k, v := range values {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

// layered consults primary first and falls back to the dotenv values.
func layered(primary func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if value, ok := primary(key); ok {
			return value, true
		}
		value, ok := fallback[key]
		return value, ok
	}
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	if lookup == nil {
		return "", false
	}
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if target == nil {
		return
	}
	if value, ok := lookupTrimmed(lookup, key); ok {
		*target = value
	}
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = parsed
	return nil
}

func overrideBoolPtr(lookup func(string) (string, bool), key string, target **bool) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = &parsed
	return nil
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = parsed
	return nil
}

func overrideIntPtr(lookup func(string) (string, bool), key string, target **int) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = &parsed
	return nil
}

func overrideFloat(lookup func(string) (string, bool), key string, target *float64) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = parsed
	return nil
}

func overrideDuration(lookup func(string) (string, bool), key string, target *time.Duration) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = parsed
	return nil
}
