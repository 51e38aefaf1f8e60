//go:build cgo

package engine

import (
	"context"
	"runtime/cgo"
	"unsafe"
)

// handleContext recovers the context stored behind a cgo.Handle pointer.
// A deleted or invalid handle yields false instead of panicking.
func handleContext(userData unsafe.Pointer) (ctx context.Context, ok bool) {
	if userData == nil {
		return nil, false
	}
	handle := *(*cgo.Handle)(userData)
	if handle == 0 {
		return nil, false
	}
	defer func() {
		if recover() != nil {
			ctx, ok = nil, false
		}
	}()
	ctx, ok = handle.Value().(context.Context)
	return ctx, ok
}

// shouldAbort is polled by whisper between decoder steps.
func shouldAbort(userData unsafe.Pointer) bool {
	ctx, ok := handleContext(userData)
	return ok && ctx.Err() != nil
}
