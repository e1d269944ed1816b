package sink

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alxayo/playout-engine/internal/playout/media"
)

type recordingMuxer struct {
	w io.Writer

	mu          sync.Mutex
	videoCount  int
	audioCount  int
	closed      bool
}

func (m *recordingMuxer) Open() error { return nil }

func (m *recordingMuxer) ConsumeVideo(media.VideoFrame) error {
	m.mu.Lock()
	m.videoCount++
	m.mu.Unlock()
	return nil
}

func (m *recordingMuxer) ConsumeAudio(media.AudioFrame) error {
	m.mu.Lock()
	m.audioCount++
	m.mu.Unlock()
	return nil
}

func (m *recordingMuxer) Status() Status { return StatusRunning }

func (m *recordingMuxer) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *recordingMuxer) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoCount, m.audioCount
}

func TestTransportSinkAcceptsAndDrainsFrames(t *testing.T) {
	var muxer *recordingMuxer
	ts := NewTransportSink("tcp", "127.0.0.1:0", func(w io.Writer) Muxer {
		muxer = &recordingMuxer{w: w}
		return muxer
	}, BackpressureConfig{}, nil, nil)

	openErr := make(chan error, 1)
	go func() { openErr <- ts.Open() }()

	var addr net.Addr
	deadline := time.Now().Add(2 * time.Second)
	for addr == nil && time.Now().Before(deadline) {
		addr = ts.Addr()
		time.Sleep(time.Millisecond)
	}
	if addr == nil {
		t.Fatal("listener never became ready")
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case err := <-openErr:
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Open never returned after connection accepted")
	}
	defer ts.Close()

	if err := ts.ConsumeVideo(media.VideoFrame{IsKeyframe: true}); err != nil {
		t.Fatalf("ConsumeVideo: %v", err)
	}
	if err := ts.ConsumeAudio(media.AudioFrame{NumSamples: 1600}); err != nil {
		t.Fatalf("ConsumeAudio: %v", err)
	}

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		v, a := muxer.counts()
		if v == 1 && a == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("mux thread never drained the enqueued frames")
}

func TestTransportSinkNeverBlocksOnFullQueue(t *testing.T) {
	blockCh := make(chan struct{})
	var muxer *recordingMuxer
	ts := NewTransportSink("tcp", "127.0.0.1:0", func(w io.Writer) Muxer {
		muxer = &recordingMuxer{w: w}
		return muxer
	}, BackpressureConfig{VideoQueueDepth: 1, AudioQueueDepth: 1}, nil, nil)
	_ = blockCh

	go ts.Open()

	var addr net.Addr
	deadline := time.Now().Add(2 * time.Second)
	for addr == nil && time.Now().Before(deadline) {
		addr = ts.Addr()
		time.Sleep(time.Millisecond)
	}
	if addr == nil {
		t.Fatal("listener never became ready")
	}
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer ts.Close()

	// Never blocks regardless of queue depth.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			_ = ts.ConsumeVideo(media.VideoFrame{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeVideo blocked under a full queue")
	}
}
