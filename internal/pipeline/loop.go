package pipeline

//go:generate mockgen -destination=mock_publisher_test.go -package=pipeline github.com/nupi-ai/plugin-live-translate/internal/pipeline Publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nupi-ai/plugin-live-translate/internal/audio"
	"github.com/nupi-ai/plugin-live-translate/internal/channel"
	"github.com/nupi-ai/plugin-live-translate/internal/engine"
	"github.com/nupi-ai/plugin-live-translate/internal/telemetry"
)

var (
	// ErrCaptureRetriesExhausted stops the loop after too many consecutive device failures.
	ErrCaptureRetriesExhausted = errors.New("pipeline: capture retries exhausted")
	// ErrStopped is returned by Start once the loop has stopped.
	ErrStopped = errors.New("pipeline: loop stopped")
)

// Capturer records one segment per call.
type Capturer interface {
	Capture(ctx context.Context, duration time.Duration, sampleRate int) (audio.Segment, error)
}

// Transcriber runs both inference passes on a segment.
type Transcriber interface {
	Transcribe(ctx context.Context, seg audio.Segment) (string, error)
	Translate(ctx context.Context, seg audio.Segment) (string, error)
}

// Publisher emits results to subscribers.
type Publisher interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, payload channel.Payload) error
	Close() error
}

// Options tunes the loop.
type Options struct {
	CaptureDuration time.Duration
	SampleRate      int
	// MaxCaptureRetries bounds consecutive device failures; zero retries forever.
	MaxCaptureRetries int
	// CaptureRetryDelay pauses between failed captures.
	CaptureRetryDelay time.Duration
	// InferenceTimeout bounds each Transcribe and Translate call; zero disables it.
	InferenceTimeout          time.Duration
	ReconnectOnPublishFailure bool
	// OnStateChange observes every transition. It runs on the loop goroutine.
	OnStateChange func(State)
}

// Loop drives capture → transcribe → translate → publish on one goroutine.
// Stop is honoured between iterations; in-flight work is not preempted.
type Loop struct {
	opts      Options
	source    Capturer
	engine    Transcriber
	publisher Publisher
	recorder  *telemetry.Recorder
	log       *slog.Logger

	startMu sync.Mutex

	mu      sync.Mutex
	state   State
	started bool
	err     error

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	seq uint64
}

// New wires a loop. It panics on nil collaborators.
func New(opts Options, source Capturer, eng Transcriber, publisher Publisher, logger *slog.Logger, recorder *telemetry.Recorder) (*Loop, error) {
	if source == nil || eng == nil || publisher == nil {
		panic("pipeline: source, engine and publisher are required")
	}
	if opts.CaptureDuration <= 0 {
		return nil, fmt.Errorf("pipeline: capture duration must be > 0, got %s", opts.CaptureDuration)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("pipeline: sample rate must be > 0, got %d", opts.SampleRate)
	}
	if opts.MaxCaptureRetries < 0 {
		return nil, fmt.Errorf("pipeline: max capture retries must be >= 0, got %d", opts.MaxCaptureRetries)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		opts:      opts,
		source:    source,
		engine:    eng,
		publisher: publisher,
		recorder:  recorder,
		log:       logger.With("component", "pipeline.Loop"),
		state:     StateIdle,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start connects the publisher and launches the loop. Only the first
// successful call starts it; later calls return nil. A connection failure
// is returned before any capture happens and leaves the loop idle, so a
// later Start may retry. ctx bounds the connect only.
func (l *Loop) Start(ctx context.Context) error {
	l.startMu.Lock()
	defer l.startMu.Unlock()

	l.mu.Lock()
	started, state := l.started, l.state
	l.mu.Unlock()
	if state == StateStopped {
		return ErrStopped
	}
	if started {
		return nil
	}

	if err := l.publisher.Connect(ctx); err != nil {
		l.log.Error("channel connect failed; loop not started", "error", err)
		return err
	}

	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		// Stopped while connecting; the loop never owns this connection.
		if err := l.publisher.Close(); err != nil {
			l.log.Warn("closing channel after stop failed", "error", err)
		}
		return ErrStopped
	}
	l.started = true
	l.mu.Unlock()

	runID := uuid.NewString()
	l.log.Info("transcription loop starting",
		"run_id", runID,
		"capture_duration", l.opts.CaptureDuration,
		"sample_rate", l.opts.SampleRate,
	)
	go l.run(l.recorder.StartRun(runID))
	return nil
}

// Run starts the loop and blocks until it stops. Cancelling ctx requests a
// stop at the next iteration boundary.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		l.Stop()
	case <-l.done:
	}
	return l.Wait()
}

// Stop requests termination. It does not block; use Wait or Done.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.mu.Lock()
		idle := !l.started
		if idle {
			l.state = StateStopped
		}
		l.mu.Unlock()
		if idle {
			if l.opts.OnStateChange != nil {
				l.opts.OnStateChange(StateStopped)
			}
			close(l.done)
		}
	})
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Wait blocks until the loop stops and returns the terminal error, if any.
func (l *Loop) Wait() error {
	<-l.done
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the terminal error of a stopped loop.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	changed := l.state != s
	l.state = s
	l.mu.Unlock()
	if changed && l.opts.OnStateChange != nil {
		l.opts.OnStateChange(s)
	}
}

func (l *Loop) stopRequested() bool {
	select {
	case <-l.stopCh:
		return true
	default:
		return false
	}
}

func (l *Loop) run(metrics *telemetry.RunMetrics) {
	err := l.iterate(metrics)
	if err != nil {
		l.log.Error("transcription loop halted", "error", err)
	} else {
		l.log.Info("transcription loop stopped")
	}
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	l.setState(StateStopped)
	metrics.Finish(err)
	close(l.done)
}

func (l *Loop) iterate(metrics *telemetry.RunMetrics) error {
	ctx := context.Background()
	var (
		failures       int
		needsReconnect bool
	)

	for {
		if l.stopRequested() {
			return nil
		}

		l.setState(StateCapturing)
		seg, err := l.source.Capture(ctx, l.opts.CaptureDuration, l.opts.SampleRate)
		if err != nil {
			var devErr *audio.DeviceError
			if !errors.As(err, &devErr) {
				return fmt.Errorf("pipeline: capture: %w", err)
			}
			failures++
			metrics.RecordCaptureFailure()
			l.log.Warn("capture failed", "error", err, "consecutive_failures", failures)
			if l.opts.MaxCaptureRetries > 0 && failures > l.opts.MaxCaptureRetries {
				return fmt.Errorf("%w after %d attempts: %w", ErrCaptureRetriesExhausted, failures, err)
			}
			l.pause(l.opts.CaptureRetryDelay)
			continue
		}
		failures = 0
		l.seq++
		seg.Sequence = l.seq
		metrics.RecordCapture(seg.Sequence, len(seg.Samples))

		l.setState(StateTranscribing)
		result, err := l.infer(seg)
		if err != nil {
			var (
				invalid   *engine.InvalidInputError
				inference *engine.InferenceError
			)
			switch {
			case errors.As(err, &invalid):
				metrics.RecordDrop(seg.Sequence, telemetry.DropInvalidInput)
			case errors.As(err, &inference):
				metrics.RecordDrop(seg.Sequence, telemetry.DropInference)
			default:
				return fmt.Errorf("pipeline: inference: %w", err)
			}
			l.log.Warn("segment dropped", "sequence", seg.Sequence, "segment", seg.ID, "error", err)
			continue
		}

		l.setState(StatePublishing)
		if needsReconnect {
			metrics.RecordReconnect()
			if err := l.publisher.Connect(ctx); err != nil {
				var connErr *channel.ConnectionError
				if !errors.As(err, &connErr) {
					return fmt.Errorf("pipeline: reconnect: %w", err)
				}
				metrics.RecordDrop(seg.Sequence, telemetry.DropPublish)
				l.log.Warn("reconnect failed; result dropped", "sequence", seg.Sequence, "error", err)
				continue
			}
			needsReconnect = false
		}

		if err := l.publisher.Publish(ctx, result.Payload()); err != nil {
			var pubErr *channel.PublishError
			if !errors.As(err, &pubErr) {
				return fmt.Errorf("pipeline: publish: %w", err)
			}
			metrics.RecordDrop(seg.Sequence, telemetry.DropPublish)
			l.log.Warn("publish failed; result dropped", "sequence", seg.Sequence, "error", err)
			needsReconnect = l.opts.ReconnectOnPublishFailure
			continue
		}
		metrics.RecordPublished(seg.Sequence, result.Original, result.Translated)
	}
}

// infer runs transcribe then translate on the same segment. Either failure
// discards the whole result.
func (l *Loop) infer(seg audio.Segment) (Result, error) {
	original, err := l.call(engine.TaskTranscribe, l.engine.Transcribe, seg)
	if err != nil {
		return Result{}, err
	}
	translated, err := l.call(engine.TaskTranslate, l.engine.Translate, seg)
	if err != nil {
		return Result{}, err
	}
	return Result{
		SegmentID:  seg.ID,
		Sequence:   seg.Sequence,
		Original:   original,
		Translated: translated,
	}, nil
}

func (l *Loop) call(task engine.Task, fn func(context.Context, audio.Segment) (string, error), seg audio.Segment) (string, error) {
	ctx := context.Background()
	if l.opts.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.InferenceTimeout)
		defer cancel()
	}
	text, err := fn(ctx, seg)
	if err == nil {
		return text, nil
	}
	var (
		invalid   *engine.InvalidInputError
		inference *engine.InferenceError
	)
	if !errors.As(err, &invalid) && !errors.As(err, &inference) && errors.Is(err, context.DeadlineExceeded) {
		return "", &engine.InferenceError{Backend: "timeout", Task: task, Err: err}
	}
	return "", err
}

func (l *Loop) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-l.stopCh:
	case <-timer.C:
	}
}
