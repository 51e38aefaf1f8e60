package moduleinfo

// Metadata captures static identifiers for the module. Centralising the values
// makes it easy to clone this repository for new relays.
type Metadata struct {
	Name          string
	BinaryName    string
	Slug          string
	Description   string
	HealthService string
	Version       string
}

// Info describes the current module.
var Info = Metadata{
	Name:          "Nupi Live Translate Relay",
	BinaryName:    "plugin-live-translate",
	Slug:          "live-translate",
	Description:   "Captures microphone audio, transcribes and translates it, and broadcasts the results.",
	HealthService: "nupi.relay.v1.TranscriptionLoop",
	Version:       "0.3.0",
}

// UserAgent identifies the relay when it dials the broadcast hub.
func UserAgent() string {
	return Info.BinaryName + "/" + Info.Version
}
