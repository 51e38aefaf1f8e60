package audio

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// SampleWidth is the size in bytes of one PCM16 sample.
const SampleWidth = 2

// Segment is a fixed-duration block of mono PCM16 audio captured in one call.
type Segment struct {
	ID         uuid.UUID
	Sequence   uint64
	Samples    []int16
	SampleRate int
	Channels   int
	CapturedAt time.Time
}

// NewSegment stamps samples with a fresh identifier.
func NewSegment(samples []int16, sampleRate int) Segment {
	return Segment{
		ID:         uuid.New(),
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   1,
		CapturedAt: time.Now(),
	}
}

// SampleWidth reports the byte width of a sample. Segments are always PCM16.
func (s Segment) SampleWidth() int { return SampleWidth }

// Empty reports whether the segment holds no audio.
func (s Segment) Empty() bool { return len(s.Samples) == 0 }

// Duration derives the play time from the sample count.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 || s.Channels <= 0 {
		return 0
	}
	frames := len(s.Samples) / s.Channels
	return time.Duration(frames) * time.Second / time.Duration(s.SampleRate)
}

// PCM returns the samples as little-endian bytes.
func (s Segment) PCM() []byte {
	buf := make([]byte, len(s.Samples)*SampleWidth)
	for i, v := range s.Samples {
		binary.LittleEndian.PutUint16(buf[i*SampleWidth:], uint16(v))
	}
	return buf
}

// Float32 returns samples normalised to [-1, 1) as whisper expects.
func (s Segment) Float32() []float32 {
	if len(s.Samples) == 0 {
		return nil
	}
	out := make([]float32, len(s.Samples))
	for i, v := range s.Samples {
		out[i] = float32(v) / 32768.0
	}
	return out
}

// SamplesFromPCM decodes little-endian PCM16 bytes. A trailing odd byte is ignored.
func SamplesFromPCM(buf []byte) []int16 {
	n := len(buf) / SampleWidth
	if n == 0 {
		return nil
	}
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[SampleWidth*i:]))
	}
	return samples
}

// SampleCount returns how many mono samples cover duration at sampleRate.
func SampleCount(duration time.Duration, sampleRate int) int {
	if duration <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(duration * time.Duration(sampleRate) / time.Second)
}
