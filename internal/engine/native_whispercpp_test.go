//go:build whispercpp

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nupi-ai/plugin-live-translate/internal/audio"
)

func TestNativeEngineTranscribesAndTranslatesFixture(t *testing.T) {
	engine := openTestNativeEngine(t)
	seg := loadTestSegment(t)
	ctx := context.Background()

	original, err := engine.Transcribe(ctx, seg)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	translated, err := engine.Translate(ctx, seg)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	// The fixture is English speech, so both passes should agree on content.
	for _, text := range []string{original, translated} {
		lower := strings.ToLower(text)
		if !strings.Contains(lower, "show me what you can do") {
			t.Fatalf("transcript %q missing expected phrase", text)
		}
	}
}

func TestNativeEngineRespectsContextCancellation(t *testing.T) {
	engine := openTestNativeEngine(t)
	seg := loadTestSegment(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Transcribe(ctx, seg)
	var inference *InferenceError
	if !errors.As(err, &inference) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled InferenceError, got %v", err)
	}
}

func TestNativeEngineRejectsWrongRate(t *testing.T) {
	engine := openTestNativeEngine(t)
	seg := audio.NewSegment(make([]int16, 8000), 8000)
	_, err := engine.Translate(context.Background(), seg)
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
}

func TestNewNativeEngineRejectsEmptyPath(t *testing.T) {
	if _, err := NewNativeEngine("", NativeOptions{}, nil); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func openTestNativeEngine(tb testing.TB) *NativeEngine {
	tb.Helper()

	modelRel := filepath.Join("testdata", "models", ModelFilename("base.en"))
	modelPath := locateFixture(tb, modelRel, "run `go run ./cmd/tools/download_model -variant base.en -dir testdata/models`")
	native, err := NewNativeEngine(modelPath, NativeOptions{Language: "en"}, discardLogger())
	if err != nil {
		tb.Fatalf("NewNativeEngine: %v", err)
	}
	tb.Cleanup(func() {
		if cerr := native.Close(); cerr != nil {
			tb.Errorf("engine.Close: %v", cerr)
		}
	})
	return native
}

func loadTestSegment(tb testing.TB) audio.Segment {
	tb.Helper()
	path := locateFixture(tb, filepath.Join("testdata", "test.wav"), "")
	samples, rate, err := audio.ReadWAVFile(path)
	if err != nil {
		tb.Fatalf("ReadWAVFile: %v", err)
	}
	if rate != 16000 {
		tb.Fatalf("unexpected sample rate: got %d, want 16000", rate)
	}
	return audio.NewSegment(samples, rate)
}

func locateFixture(tb testing.TB, relativePath string, suggestion string) string {
	tb.Helper()

	wd, err := os.Getwd()
	if err != nil {
		tb.Fatalf("getwd: %v", err)
	}

	visited := make([]string, 0, 4)
	for {
		candidate := filepath.Join(wd, relativePath)
		visited = append(visited, candidate)

		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			tb.Fatalf("stat %s: %v", candidate, err)
		}

		parent := filepath.Dir(wd)
		if parent == wd {
			msg := fmt.Sprintf("fixture %s not found (checked: %s)", relativePath, strings.Join(visited, ", "))
			if suggestion != "" {
				msg = fmt.Sprintf("%s; %s", msg, suggestion)
			}
			tb.Skip(msg)
		}
		wd = parent
	}
}
