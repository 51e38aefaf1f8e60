package engine

// NativeOptions tunes the in-process whisper.cpp backend.
type NativeOptions struct {
	// Threads overrides whisper's thread count; nil keeps its default.
	Threads *int
	UseGPU  *bool
	// Language is the source language hint; "auto" detects it.
	Language string
}
