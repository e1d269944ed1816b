// Package buffer implements the bounded single-producer/single-consumer
// lookahead buffers: video (depth in frames) and audio (depth in
// milliseconds). Push blocks only once the buffer is full beyond its
// configured high-water mark; pop never blocks and underflow is
// metric-counted, never silently retried.
package buffer

import (
	"sync"

	"github.com/alxayo/playout-engine/internal/playout/media"
)

// VideoLookaheadBuffer is a bounded FIFO of decoded video frames.
type VideoLookaheadBuffer struct {
	mu            sync.Mutex
	notFull       *sync.Cond
	frames        []media.VideoFrame
	highWaterMark int

	pushed    uint64
	popped    uint64
	underflow uint64
}

// NewVideoLookaheadBuffer constructs a buffer with the given high-water
// mark in frames (typically 15-60).
func NewVideoLookaheadBuffer(highWaterMark int) *VideoLookaheadBuffer {
	b := &VideoLookaheadBuffer{highWaterMark: highWaterMark}
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// Push appends a frame at the tail. It blocks only while the buffer is
// already at or above the high-water mark.
func (b *VideoLookaheadBuffer) Push(f media.VideoFrame) {
	b.mu.Lock()
	for len(b.frames) >= b.highWaterMark {
		b.notFull.Wait()
	}
	b.frames = append(b.frames, f)
	b.pushed++
	b.mu.Unlock()
}

// TryPop removes and returns the head frame. ok is false if the buffer
// is empty — an underflow that the caller must count, not silently
// retry.
func (b *VideoLookaheadBuffer) TryPop() (media.VideoFrame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		b.underflow++
		return media.VideoFrame{}, false
	}
	f := b.frames[0]
	b.frames = b.frames[1:]
	b.popped++
	b.notFull.Signal()
	return f, true
}

// DepthFrames reports the current buffered frame count without blocking.
func (b *VideoLookaheadBuffer) DepthFrames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Stats is a snapshot of the buffer's push/pop/underflow counters.
type Stats struct {
	Pushed    uint64
	Popped    uint64
	Underflow uint64
}

// Stats returns a copy of the current counters.
func (b *VideoLookaheadBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Pushed: b.pushed, Popped: b.popped, Underflow: b.underflow}
}
