package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultListenAddr is where the control surface listens when nothing else is configured.
	DefaultListenAddr      = "127.0.0.1:8000"
	DefaultHealthAddr      = "127.0.0.1:50051"
	DefaultHubListenAddr   = "127.0.0.1:3000"
	DefaultChannelEndpoint = "localhost:3000"
	DefaultLogLevel        = "info"

	DefaultCaptureBackend  = CaptureArecord
	DefaultCaptureDevice   = "default"
	DefaultCaptureDuration = 5.0
	DefaultSampleRate      = WhisperSampleRate

	DefaultEngine         = EngineNative
	DefaultModel          = "base"
	DefaultLanguage       = "auto"
	DefaultTargetLanguage = "en"
	DefaultOpenAIModel    = "whisper-1"

	DefaultDialTimeout   = 10 * time.Second
	DefaultWriteTimeout  = 2 * time.Second
	DefaultHubSendBuffer = 16
)

// WhisperSampleRate is the only rate every engine backend accepts.
const WhisperSampleRate = 16000

// Capture backends.
const (
	CaptureArecord = "arecord"
	CaptureFFmpeg  = "ffmpeg"
	CaptureWAV     = "wav"
	CaptureSilence = "silence"
)

// Engine backends.
const (
	EngineNative = "native"
	EngineOpenAI = "openai"
	EngineHTTP   = "http"
	EngineStub   = "stub"
)

// Config captures bootstrap configuration extracted from environment variables,
// an optional YAML file, or an injected JSON payload (`RELAY_CONFIG`).
type Config struct {
	ListenAddr    string
	HealthAddr    string
	HubListenAddr string
	HubSendBuffer int
	LogLevel      string
	AutoStart     bool

	CaptureBackend         string
	CaptureDevice          string
	CaptureFile            string
	CaptureDurationSeconds float64
	SampleRateHz           int
	// MaxCaptureRetries bounds consecutive device failures; zero retries forever.
	MaxCaptureRetries int

	Engine                    string
	ModelVariant              string
	ModelPath                 string
	Language                  string
	TranslationTargetLanguage string
	InferenceTimeout          time.Duration
	Threads                   *int
	UseGPU                    *bool
	SpoolDir                  string

	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	WhisperHTTPURL string

	ChannelEndpoint           string
	DialTimeout               time.Duration
	WriteTimeout              time.Duration
	ReconnectOnPublishFailure bool
}

// Defaults returns a Config populated with every default value.
func Defaults() Config {
	return Config{
		ListenAddr:                DefaultListenAddr,
		HealthAddr:                DefaultHealthAddr,
		HubListenAddr:             DefaultHubListenAddr,
		HubSendBuffer:             DefaultHubSendBuffer,
		LogLevel:                  DefaultLogLevel,
		CaptureBackend:            DefaultCaptureBackend,
		CaptureDevice:             DefaultCaptureDevice,
		CaptureDurationSeconds:    DefaultCaptureDuration,
		SampleRateHz:              DefaultSampleRate,
		Engine:                    DefaultEngine,
		ModelVariant:              DefaultModel,
		Language:                  DefaultLanguage,
		TranslationTargetLanguage: DefaultTargetLanguage,
		OpenAIModel:               DefaultOpenAIModel,
		ChannelEndpoint:           DefaultChannelEndpoint,
		DialTimeout:               DefaultDialTimeout,
		WriteTimeout:              DefaultWriteTimeout,
		ReconnectOnPublishFailure: true,
	}
}

// CaptureDuration converts the configured seconds into a time.Duration.
func (c Config) CaptureDuration() time.Duration {
	return time.Duration(c.CaptureDurationSeconds * float64(time.Second))
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.HubListenAddr == "" {
		c.HubListenAddr = DefaultHubListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.ChannelEndpoint == "" {
		c.ChannelEndpoint = DefaultChannelEndpoint
	}
	if c.ModelVariant == "" {
		c.ModelVariant = DefaultModel
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.OpenAIModel == "" {
		c.OpenAIModel = DefaultOpenAIModel
	}
	if c.CaptureDevice == "" {
		c.CaptureDevice = DefaultCaptureDevice
	}
	if c.HubSendBuffer == 0 {
		c.HubSendBuffer = DefaultHubSendBuffer
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.CaptureDurationSeconds == 0 {
		c.CaptureDurationSeconds = DefaultCaptureDuration
	}
	if c.SampleRateHz == 0 {
		c.SampleRateHz = DefaultSampleRate
	}

	c.CaptureBackend = strings.ToLower(strings.TrimSpace(c.CaptureBackend))
	if c.CaptureBackend == "" {
		c.CaptureBackend = DefaultCaptureBackend
	}
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	c.TranslationTargetLanguage = strings.ToLower(strings.TrimSpace(c.TranslationTargetLanguage))
	if c.TranslationTargetLanguage == "" {
		c.TranslationTargetLanguage = DefaultTargetLanguage
	}

	if c.CaptureDurationSeconds < 0 {
		return fmt.Errorf("config: capture_duration_seconds must be > 0, got %v", c.CaptureDurationSeconds)
	}
	if c.SampleRateHz < 0 {
		return fmt.Errorf("config: sample_rate_hz must be > 0, got %d", c.SampleRateHz)
	}
	if c.MaxCaptureRetries < 0 {
		return fmt.Errorf("config: max_capture_retries must be >= 0, got %d", c.MaxCaptureRetries)
	}
	if c.InferenceTimeout < 0 {
		return fmt.Errorf("config: inference_timeout must be >= 0, got %s", c.InferenceTimeout)
	}
	if c.HubSendBuffer < 0 {
		return fmt.Errorf("config: hub_send_buffer must be > 0, got %d", c.HubSendBuffer)
	}
	if c.DialTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("config: channel timeouts must be >= 0")
	}
	if c.Threads != nil && *c.Threads < 0 {
		return fmt.Errorf("config: threads must be >= 0, got %d", *c.Threads)
	}
	if c.SampleRateHz != WhisperSampleRate {
		return fmt.Errorf("config: sample_rate_hz %d unsupported by the %q engine (requires %d)", c.SampleRateHz, c.Engine, WhisperSampleRate)
	}
	// whisper only translates into English.
	if c.TranslationTargetLanguage != DefaultTargetLanguage {
		return fmt.Errorf("config: translation_target_language %q unsupported (only %q)", c.TranslationTargetLanguage, DefaultTargetLanguage)
	}

	switch c.CaptureBackend {
	case CaptureArecord, CaptureFFmpeg, CaptureSilence:
	case CaptureWAV:
		if strings.TrimSpace(c.CaptureFile) == "" {
			return fmt.Errorf("config: capture_file is required for the %q capture backend", CaptureWAV)
		}
	default:
		return fmt.Errorf("config: unknown capture_backend %q", c.CaptureBackend)
	}

	switch c.Engine {
	case EngineNative, EngineStub:
	case EngineOpenAI:
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return fmt.Errorf("config: openai_api_key is required for the %q engine", EngineOpenAI)
		}
	case EngineHTTP:
		if strings.TrimSpace(c.WhisperHTTPURL) == "" {
			return fmt.Errorf("config: whisper_http_url is required for the %q engine", EngineHTTP)
		}
	default:
		return fmt.Errorf("config: unknown engine %q", c.Engine)
	}
	return nil
}
