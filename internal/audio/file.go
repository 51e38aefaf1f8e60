package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// WAVSource replays a mono PCM16 WAV file in real time, looping at EOF.
type WAVSource struct {
	mu         sync.Mutex
	samples    []int16
	sampleRate int
	pos        int
	log        *slog.Logger
	// sleep paces capture; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWAVSource loads path into memory.
func NewWAVSource(path string, logger *slog.Logger) (*WAVSource, error) {
	samples, rate, err := ReadWAVFile(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return NewWAVSourceFromSamples(samples, rate, logger.With("file", path)), nil
}

// NewWAVSourceFromSamples replays samples recorded at sampleRate.
func NewWAVSourceFromSamples(samples []int16, sampleRate int, logger *slog.Logger) *WAVSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &WAVSource{
		samples:    samples,
		sampleRate: sampleRate,
		log:        logger.With("component", "audio.wav"),
		sleep:      sleepContext,
	}
}

// SampleRate is the rate the file was recorded at.
func (s *WAVSource) SampleRate() int { return s.sampleRate }

// Capture returns the next duration worth of the file. A rate other than the
// file's is a configuration error, not a device failure.
func (s *WAVSource) Capture(ctx context.Context, duration time.Duration, sampleRate int) (Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return Segment{}, noDevice("wav", "", fmt.Errorf("file has no samples"))
	}
	if sampleRate != s.sampleRate {
		return Segment{}, fmt.Errorf("audio: wav recorded at %d Hz, %d Hz requested", s.sampleRate, sampleRate)
	}
	want := SampleCount(duration, sampleRate)
	if want == 0 {
		return Segment{}, fmt.Errorf("audio: invalid capture request duration=%s sample_rate=%d", duration, sampleRate)
	}

	if err := s.sleep(ctx, duration); err != nil {
		return Segment{}, err
	}

	out := make([]int16, want)
	for i := range out {
		out[i] = s.samples[s.pos]
		s.pos = (s.pos + 1) % len(s.samples)
	}
	return NewSegment(out, sampleRate), nil
}

// Close implements Source.
func (s *WAVSource) Close() error { return nil }

// SilenceSource yields silent segments at real-time pace.
type SilenceSource struct {
	mu    sync.Mutex
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSilenceSource returns a dry-run capture source.
func NewSilenceSource(logger *slog.Logger) *SilenceSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SilenceSource{log: logger.With("component", "audio.silence"), sleep: sleepContext}
}

// Capture waits duration and returns zeroed samples.
func (s *SilenceSource) Capture(ctx context.Context, duration time.Duration, sampleRate int) (Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := SampleCount(duration, sampleRate)
	if want == 0 {
		return Segment{}, fmt.Errorf("audio: invalid capture request duration=%s sample_rate=%d", duration, sampleRate)
	}
	if err := s.sleep(ctx, duration); err != nil {
		return Segment{}, err
	}
	return NewSegment(make([]int16, want), sampleRate), nil
}

// Close implements Source.
func (s *SilenceSource) Close() error { return nil }

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
