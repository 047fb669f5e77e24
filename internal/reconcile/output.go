package reconcile

import (
	"bytes"
	"io"
	"sync"
)

// Gate is the writer the test runner's side-channel output goes through.
// While a review group is active it buffers everything so interactive
// prompts never interleave with ordinary test output; when the group
// releases, the buffer is flushed verbatim.
type Gate struct {
	mu        sync.Mutex
	w         io.Writer
	buffering bool
	buf       bytes.Buffer
}

// NewGate wraps w. A nil writer discards output.
func NewGate(w io.Writer) *Gate {
	if w == nil {
		w = io.Discard
	}
	return &Gate{w: w}
}

func (g *Gate) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.buffering {
		return g.buf.Write(p)
	}
	return g.w.Write(p)
}

// SetBuffering toggles capture. Turning it off flushes the captured bytes
// verbatim before passthrough resumes.
func (g *Gate) SetBuffering(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.buffering == on {
		return
	}
	g.buffering = on
	if !on {
		g.flushLocked()
	}
}

// Flush writes any captured bytes without changing the buffering state.
func (g *Gate) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.flushLocked()
}

// Buffering reports whether the gate is currently capturing.
func (g *Gate) Buffering() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buffering
}

func (g *Gate) flushLocked() {
	if g.buf.Len() == 0 {
		return
	}
	_, _ = g.w.Write(g.buf.Bytes())
	g.buf.Reset()
}

// direct writes straight to the underlying writer, bypassing capture. The
// coordinator uses it for the prompt and the final report, which must never
// land in the buffer they are protecting.
func (g *Gate) direct(p []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, _ = g.w.Write(p)
}
