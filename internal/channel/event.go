package channel

import (
	"encoding/json"
	"fmt"
)

// Event names carried in the envelope.
const (
	EventTranscriptionResult = "transcription_result"
	EventMessage             = "message"
)

// Payload is the transcription_result body. Both fields come from the same
// audio segment.
type Payload struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
}

// Envelope frames every event on the wire as {"event": ..., "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeEvent marshals data under the given event name.
func EncodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("channel: encode %s data: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeEnvelope parses a frame; the data stays raw for the caller.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("channel: decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("channel: envelope missing event name")
	}
	return env, nil
}
