package pipeline

// State is the loop's position in the capture → transcribe → publish cycle.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateTranscribing
	StatePublishing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateTranscribing:
		return "transcribing"
	case StatePublishing:
		return "publishing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Running reports whether the loop is between start and stop.
func (s State) Running() bool {
	return s == StateCapturing || s == StateTranscribing || s == StatePublishing
}
