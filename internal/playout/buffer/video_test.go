package buffer

import (
	"testing"
	"time"

	"github.com/alxayo/playout-engine/internal/playout/media"
)

func vf(n int) media.VideoFrame {
	return media.VideoFrame{Width: 2, Height: 2, Y: []byte{1, 2, 3, 4}, PtsUs: int64(n)}
}

func TestVideoBufferPushPopOrder(t *testing.T) {
	b := NewVideoLookaheadBuffer(4)
	b.Push(vf(1))
	b.Push(vf(2))

	f, ok := b.TryPop()
	if !ok || f.PtsUs != 1 {
		t.Fatalf("expected first pushed frame first, got %+v ok=%v", f, ok)
	}
	f, ok = b.TryPop()
	if !ok || f.PtsUs != 2 {
		t.Fatalf("expected second frame, got %+v ok=%v", f, ok)
	}
}

func TestVideoBufferUnderflowCounted(t *testing.T) {
	b := NewVideoLookaheadBuffer(4)
	if _, ok := b.TryPop(); ok {
		t.Fatalf("expected empty buffer to report not-ok")
	}
	if b.Stats().Underflow != 1 {
		t.Fatalf("expected underflow counter to increment")
	}
}

func TestVideoBufferDepthFrames(t *testing.T) {
	b := NewVideoLookaheadBuffer(4)
	b.Push(vf(1))
	b.Push(vf(2))
	if d := b.DepthFrames(); d != 2 {
		t.Fatalf("DepthFrames() = %d, want 2", d)
	}
}

func TestVideoBufferPushBlocksAtHighWaterMark(t *testing.T) {
	b := NewVideoLookaheadBuffer(1)
	b.Push(vf(1))

	done := make(chan struct{})
	go func() {
		b.Push(vf(2)) // must block until a pop frees a slot
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("Push should have blocked at high-water mark")
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := b.TryPop(); !ok {
		t.Fatalf("expected a frame to pop")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Push did not unblock after pop freed capacity")
	}
}
