package engine

import (
	"context"
	"testing"

	"github.com/nupi-ai/plugin-live-translate/internal/audio"
)

func BenchmarkStubEngineTranslate(b *testing.B) {
	eng := NewStubEngine(discardLogger(), "base")
	seg := audio.NewSegment(make([]int16, 16000*5), 16000)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		seg.Sequence = uint64(i)
		if _, err := eng.Transcribe(ctx, seg); err != nil {
			b.Fatalf("Transcribe failed: %v", err)
		}
		if _, err := eng.Translate(ctx, seg); err != nil {
			b.Fatalf("Translate failed: %v", err)
		}
	}
}
