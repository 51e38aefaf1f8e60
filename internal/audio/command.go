package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nupi-ai/plugin-live-translate/internal/config"
)

// runFunc executes name with args and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// CommandSource records through an external recorder that writes raw
// S16_LE mono PCM to stdout.
type CommandSource struct {
	mu      sync.Mutex
	backend string
	device  string
	binary  string
	args    func(device string, duration time.Duration, sampleRate, samples int) []string
	run     runFunc
	log     *slog.Logger
}

// NewArecordSource records from an ALSA device using arecord.
func NewArecordSource(device string, logger *slog.Logger) *CommandSource {
	return newCommandSource(config.CaptureArecord, "arecord", device, arecordArgs, logger)
}

// NewFFmpegSource records through ffmpeg using the platform's capture input.
func NewFFmpegSource(device string, logger *slog.Logger) *CommandSource {
	return newCommandSource(config.CaptureFFmpeg, "ffmpeg", device, ffmpegArgs, logger)
}

func newCommandSource(backend, binary, device string, args func(string, time.Duration, int, int) []string, logger *slog.Logger) *CommandSource {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(device) == "" {
		device = config.DefaultCaptureDevice
	}
	return &CommandSource{
		backend: backend,
		device:  device,
		binary:  binary,
		args:    args,
		run:     runCommand,
		log:     logger.With("component", "audio."+backend, "device", device),
	}
}

// Capture records duration worth of audio. It blocks for roughly duration.
func (s *CommandSource) Capture(ctx context.Context, duration time.Duration, sampleRate int) (Segment, error) {
	want := SampleCount(duration, sampleRate)
	if want == 0 {
		return Segment{}, fmt.Errorf("audio: invalid capture request duration=%s sample_rate=%d", duration, sampleRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	args := s.args(s.device, duration, sampleRate, want)
	s.log.Debug("capture started", "binary", s.binary, "samples", want)
	out, err := s.run(ctx, s.binary, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Segment{}, ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) {
			return Segment{}, noDevice(s.backend, s.device, err)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if stderr := strings.TrimSpace(string(exitErr.Stderr)); stderr != "" {
				err = fmt.Errorf("%w: %s", err, stderr)
			}
		}
		return Segment{}, disconnected(s.backend, s.device, err)
	}

	samples := SamplesFromPCM(out)
	if len(samples) < want {
		return Segment{}, disconnected(s.backend, s.device, fmt.Errorf("short read: got %d of %d samples", len(samples), want))
	}
	return NewSegment(samples[:want], sampleRate), nil
}

// Close is a no-op; the device is released when each recorder exits.
func (s *CommandSource) Close() error { return nil }

func arecordArgs(device string, _ time.Duration, sampleRate, samples int) []string {
	return []string{
		"-q",
		"-t", "raw",
		"-f", "S16_LE",
		"-c", "1",
		"-r", strconv.Itoa(sampleRate),
		"-s", strconv.Itoa(samples),
		"-D", device,
	}
}

func ffmpegArgs(device string, duration time.Duration, sampleRate, _ int) []string {
	format, input := ffmpegInput(device)
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", format,
		"-i", input,
		"-t", strconv.FormatFloat(duration.Seconds(), 'f', 3, 64),
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	}
}

func ffmpegInput(device string) (string, string) {
	switch runtime.GOOS {
	case "darwin":
		if device == config.DefaultCaptureDevice {
			return "avfoundation", ":0"
		}
		return "avfoundation", device
	default:
		if strings.HasPrefix(device, "pulse:") {
			return "pulse", strings.TrimPrefix(device, "pulse:")
		}
		return "alsa", device
	}
}
