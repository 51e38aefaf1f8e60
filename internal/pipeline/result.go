package pipeline

import (
	"github.com/google/uuid"

	"github.com/nupi-ai/plugin-live-translate/internal/channel"
)

// Result pairs the transcription and translation of one segment.
type Result struct {
	SegmentID  uuid.UUID
	Sequence   uint64
	Original   string
	Translated string
}

// Payload converts the result to its wire form.
func (r Result) Payload() channel.Payload {
	return channel.Payload{Original: r.Original, Translated: r.Translated}
}
