package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nupi-ai/plugin-live-translate/internal/audio"
	"github.com/nupi-ai/plugin-live-translate/internal/moduleinfo"
)

// ensure this satisfies the interface
var _ Engine = (*HTTPEngine)(nil)

// HTTPEngine talks to a whisper inference service that accepts float32 PCM
// as JSON and answers with a transcription document.
type HTTPEngine struct {
	url      string
	language string
	client   *http.Client
	// ownsClient is set when the engine built client and may tear it down.
	ownsClient bool
	contract   InputContract
	log        *slog.Logger
}

type httpRequest struct {
	Audio      []float32 `json:"audio"`
	SampleRate int       `json:"sample_rate"`
	Task       Task      `json:"task"`
	Language   string    `json:"language,omitempty"`
}

type httpSegment struct {
	Text string `json:"text"`
}

type httpResponse struct {
	Text     string        `json:"text"`
	Language string        `json:"language"`
	Segments []httpSegment `json:"segments"`
}

// NewHTTPEngine returns an engine posting to url. A nil client is replaced
// by a private client on a cloned default transport.
func NewHTTPEngine(url, language string, client *http.Client, logger *slog.Logger) (*HTTPEngine, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("engine: invalid url for http engine %q", url)
	}
	owns := false
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
		owns = true
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPEngine{
		url:      url,
		language: explicitLanguage(language),
		client:     client,
		ownsClient: owns,
		contract:   WhisperContract,
		log:        logger.With("component", "engine.http", "url", url),
	}, nil
}

// Transcribe implements the Engine interface.
func (e *HTTPEngine) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	return e.run(ctx, seg, TaskTranscribe, e.language)
}

// Translate implements the Engine interface. Whisper only translates into
// English, so no target is sent.
func (e *HTTPEngine) Translate(ctx context.Context, seg audio.Segment) (string, error) {
	return e.run(ctx, seg, TaskTranslate, e.language)
}

// Close implements the Engine interface. A caller-supplied client is left alone.
func (e *HTTPEngine) Close() error {
	if e.ownsClient {
		e.client.CloseIdleConnections()
	}
	return nil
}

func (e *HTTPEngine) run(ctx context.Context, seg audio.Segment, task Task, language string) (string, error) {
	if err := e.contract.Validate(seg); err != nil {
		return "", err
	}

	payload, err := json.Marshal(httpRequest{
		Audio:      seg.Float32(),
		SampleRate: seg.SampleRate,
		Task:       task,
		Language:   language,
	})
	if err != nil {
		return "", inferenceError("http", task, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return "", inferenceError("http", task, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", moduleinfo.UserAgent())

	resp, err := e.client.Do(req)
	if err != nil {
		return "", inferenceError("http", task, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", inferenceError("http", task, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", inferenceError("http", task, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded httpResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", inferenceError("http", task, fmt.Errorf("decode response: %w", err))
	}
	text := decoded.Text
	if strings.TrimSpace(text) == "" && len(decoded.Segments) > 0 {
		parts := make([]string, 0, len(decoded.Segments))
		for _, s := range decoded.Segments {
			if t := strings.TrimSpace(s.Text); t != "" {
				parts = append(parts, t)
			}
		}
		text = strings.Join(parts, " ")
	}
	e.log.Debug("http inference complete", "task", task, "segment", seg.ID, "language", decoded.Language)
	return cleanTranscript(text), nil
}
