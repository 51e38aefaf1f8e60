package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// DropReason classifies why a segment never reached the channel.
type DropReason string

const (
	DropInvalidInput DropReason = "invalid_input"
	DropInference    DropReason = "inference"
	DropPublish      DropReason = "publish"
)

// Recorder tracks relay-level telemetry exposed on the status route and
// logged at shutdown.
type Recorder struct {
	log *slog.Logger

	totalRuns        atomic.Uint64
	activeRuns       atomic.Int64
	segmentsCaptured atomic.Uint64
	captureFailures  atomic.Uint64
	invalidDrops     atomic.Uint64
	inferenceDrops   atomic.Uint64
	published        atomic.Uint64
	publishFailures  atomic.Uint64
	reconnects       atomic.Uint64
	fanoutDelivered  atomic.Uint64
	fanoutDropped    atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	TotalRuns        uint64 `json:"total_runs"`
	ActiveRuns       int64  `json:"active_runs"`
	SegmentsCaptured uint64 `json:"segments_captured"`
	CaptureFailures  uint64 `json:"capture_failures"`
	InvalidDrops     uint64 `json:"invalid_input_drops"`
	InferenceDrops   uint64 `json:"inference_drops"`
	Published        uint64 `json:"results_published"`
	PublishFailures  uint64 `json:"publish_failures"`
	Reconnects       uint64 `json:"reconnects"`
	FanoutDelivered  uint64 `json:"fanout_delivered"`
	FanoutDropped    uint64 `json:"fanout_dropped"`
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log: logger.With("component", "telemetry.Recorder"),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalRuns:        r.totalRuns.Load(),
		ActiveRuns:       r.activeRuns.Load(),
		SegmentsCaptured: r.segmentsCaptured.Load(),
		CaptureFailures:  r.captureFailures.Load(),
		InvalidDrops:     r.invalidDrops.Load(),
		InferenceDrops:   r.inferenceDrops.Load(),
		Published:        r.published.Load(),
		PublishFailures:  r.publishFailures.Load(),
		Reconnects:       r.reconnects.Load(),
		FanoutDelivered:  r.fanoutDelivered.Load(),
		FanoutDropped:    r.fanoutDropped.Load(),
	}
}

// RecordFanout counts hub deliveries for one broadcast.
func (r *Recorder) RecordFanout(delivered, dropped int) {
	if r == nil {
		return
	}
	if delivered > 0 {
		r.fanoutDelivered.Add(uint64(delivered))
	}
	if dropped > 0 {
		r.fanoutDropped.Add(uint64(dropped))
	}
}

// RunMetrics accumulates statistics for a single transcription loop run.
// It is owned by the loop goroutine.
type RunMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	runID string

	started         time.Time
	captured        int
	captureFailures int
	dropped         map[DropReason]int
	published       int
	reconnects      int
	lastSequence    uint64
	closed          atomic.Bool
}

// StartRun initialises a RunMetrics instance bound to the recorder.
func (r *Recorder) StartRun(runID string) *RunMetrics {
	if r == nil {
		return nil
	}
	r.totalRuns.Add(1)
	r.activeRuns.Add(1)

	return &RunMetrics{
		recorder: r,
		log:      r.log.With("run_id", runID),
		runID:    runID,
		started:  time.Now(),
		dropped:  make(map[DropReason]int),
	}
}

// RecordCapture updates counters for a captured segment.
func (m *RunMetrics) RecordCapture(sequence uint64, samples int) {
	if m == nil {
		return
	}
	m.captured++
	m.lastSequence = sequence
	m.recorder.segmentsCaptured.Add(1)

	m.log.Debug("segment captured",
		"sequence", sequence,
		"samples", samples,
	)
}

// RecordCaptureFailure counts a device error.
func (m *RunMetrics) RecordCaptureFailure() {
	if m == nil {
		return
	}
	m.captureFailures++
	m.recorder.captureFailures.Add(1)
}

// RecordDrop counts a segment discarded before or during publish.
func (m *RunMetrics) RecordDrop(sequence uint64, reason DropReason) {
	if m == nil {
		return
	}
	m.dropped[reason]++
	switch reason {
	case DropInvalidInput:
		m.recorder.invalidDrops.Add(1)
	case DropInference:
		m.recorder.inferenceDrops.Add(1)
	case DropPublish:
		m.recorder.publishFailures.Add(1)
	}
	m.log.Debug("segment dropped", "sequence", sequence, "reason", reason)
}

// RecordPublished stores statistics for an emitted result.
func (m *RunMetrics) RecordPublished(sequence uint64, original, translated string) {
	if m == nil {
		return
	}
	m.published++
	m.recorder.published.Add(1)

	m.log.Debug("result published",
		"sequence", sequence,
		"original_runes", utf8.RuneCountInString(original),
		"translated_runes", utf8.RuneCountInString(translated),
	)
}

// RecordReconnect counts a channel reconnect attempt.
func (m *RunMetrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnects++
	m.recorder.reconnects.Add(1)
}

// Finish logs a summary and updates active run counters.
func (m *RunMetrics) Finish(err error) {
	if m == nil {
		return
	}
	if !m.closed.CompareAndSwap(false, true) {
		return
	}

	defer m.recorder.activeRuns.Add(-1)

	args := []any{
		"duration_ms", time.Since(m.started).Milliseconds(),
		"captured", m.captured,
		"capture_failures", m.captureFailures,
		"published", m.published,
		"dropped_invalid", m.dropped[DropInvalidInput],
		"dropped_inference", m.dropped[DropInference],
		"dropped_publish", m.dropped[DropPublish],
		"reconnects", m.reconnects,
		"last_sequence", m.lastSequence,
	}

	if err != nil {
		m.log.Error("run completed with error", append(args, "error", err)...)
		return
	}

	m.log.Info("run completed", args...)
}
