//go:build whispercpp

package engine

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo CXXFLAGS: -std=c++17 -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/whisper.cpp/build -L${SRCDIR}/../../third_party/whisper.cpp/build/src -Wl,-rpath,${SRCDIR}/../../third_party/whisper.cpp/build/src -lwhisper -lstdc++ -lm

#include "stdlib.h"
#include "include/whisper.h"
#include "ggml.h"

bool whisperGoAbort(void * user_data);
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/cgo"
	"strings"
	"sync"
	"unsafe"

	"github.com/nupi-ai/plugin-live-translate/internal/audio"
)

// NativeAvailable reports whether the native whisper backend is compiled in.
func NativeAvailable() bool { return true }

// NativeEngine runs whisper.cpp in-process. Inference calls are serialised;
// each call gets a fresh whisper state so transcribe and translate never
// share decoder context.
type NativeEngine struct {
	mu       sync.Mutex
	ctx      *C.struct_whisper_context
	opts     NativeOptions
	contract InputContract
	log      *slog.Logger
}

// NewNativeEngine loads the ggml model at modelPath.
func NewNativeEngine(modelPath string, opts NativeOptions, logger *slog.Logger) (*NativeEngine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cPath))
	cParams := C.whisper_context_default_params()
	cParams.use_gpu = C.bool(opts.UseGPU != nil && *opts.UseGPU)

	ctx := C.whisper_init_from_file_with_params(cPath, cParams)
	if ctx == nil {
		return nil, fmt.Errorf("whisper: failed to initialise context for %s", modelPath)
	}

	return &NativeEngine{
		ctx:      ctx,
		opts:     opts,
		contract: WhisperContract,
		log:      logger.With("component", "engine.native", "model_path", modelPath),
	}, nil
}

// Transcribe implements the Engine interface.
func (e *NativeEngine) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	return e.run(ctx, seg, TaskTranscribe)
}

// Translate implements the Engine interface.
func (e *NativeEngine) Translate(ctx context.Context, seg audio.Segment) (string, error) {
	return e.run(ctx, seg, TaskTranslate)
}

// Close implements the Engine interface.
func (e *NativeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		C.whisper_free(e.ctx)
		e.ctx = nil
	}
	return nil
}

func (e *NativeEngine) run(ctx context.Context, seg audio.Segment, task Task) (string, error) {
	if err := e.contract.Validate(seg); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", inferenceError("native", task, err)
	}

	samples := seg.Float32()
	lang := normaliseLanguage(e.opts.Language, "")

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return "", ErrClosed
	}

	state := C.whisper_init_state(e.ctx)
	if state == nil {
		return "", inferenceError("native", task, errors.New("whisper: failed to initialise state"))
	}
	defer C.whisper_free_state(state)

	cSamples := (*C.float)(unsafe.Pointer(&samples[0]))
	nSamples := C.int(len(samples))

	params := C.whisper_full_default_params(C.WHISPER_SAMPLING_GREEDY)
	params.print_progress = C.bool(false)
	params.print_realtime = C.bool(false)
	params.print_timestamps = C.bool(false)
	params.translate = C.bool(task == TaskTranslate)
	params.no_context = C.bool(true)
	params.single_segment = C.bool(false)
	if e.opts.Threads != nil && *e.opts.Threads > 0 {
		params.n_threads = C.int(*e.opts.Threads)
	}

	cLang := C.CString(lang)
	defer C.free(unsafe.Pointer(cLang))
	// "auto" lets whisper pick the language; detect_language would stop after detection.
	params.language = cLang

	handle := cgo.NewHandle(ctx)
	defer handle.Delete()
	params.abort_callback = (C.ggml_abort_callback)(C.whisperGoAbort)
	params.abort_callback_user_data = unsafe.Pointer(&handle)

	if ret := C.whisper_full_with_state(e.ctx, state, params, cSamples, nSamples); ret != 0 {
		if err := ctx.Err(); err != nil {
			return "", inferenceError("native", task, err)
		}
		return "", inferenceError("native", task, fmt.Errorf("whisper: inference failed with code %d", int(ret)))
	}

	text := collectText(state)
	e.log.Debug("native inference complete", "task", task, "segment", seg.ID, "language", lang, "samples", len(samples))
	return text, nil
}

//export whisperGoAbort
func whisperGoAbort(userData unsafe.Pointer) C.bool {
	if shouldAbort(userData) {
		return C.bool(true)
	}
	return C.bool(false)
}

func collectText(state *C.struct_whisper_state) string {
	if state == nil {
		return ""
	}
	count := int(C.whisper_full_n_segments_from_state(state))
	var builder strings.Builder
	for i := 0; i < count; i++ {
		text := strings.TrimSpace(C.GoString(C.whisper_full_get_segment_text_from_state(state, C.int(i))))
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(text)
	}
	return cleanTranscript(builder.String())
}
