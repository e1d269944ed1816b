package sink

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alxayo/playout-engine/internal/playout/media"
)

// Muxer is the inner encoder a TransportSink owns the lifecycle of —
// opened once per session, against the connection TransportSink
// accepted. tsmux.Muxer satisfies this.
type Muxer interface {
	Open() error
	ConsumeVideo(media.VideoFrame) error
	ConsumeAudio(media.AudioFrame) error
	Status() Status
	Close() error
}

// MuxerFactory constructs a Muxer bound to the connection the
// TransportSink accepted.
type MuxerFactory func(w io.Writer) Muxer

// BackpressureConfig bounds the adapter's video/audio queues. Per
// spec.md §5, the exact threshold is a tunable, not a fixed constant.
type BackpressureConfig struct {
	VideoQueueDepth int
	AudioQueueDepth int
}

func (c BackpressureConfig) withDefaults() BackpressureConfig {
	if c.VideoQueueDepth == 0 {
		c.VideoQueueDepth = 64
	}
	if c.AudioQueueDepth == 0 {
		c.AudioQueueDepth = 256
	}
	return c
}

// TransportSink is the shipped "external sink adapter": a TCP or UDS
// listener, a background mux thread, and bounded frame/audio queues in
// front of an inner Muxer. ConsumeVideo/ConsumeAudio never block the
// tick thread — a full queue drops its oldest entry and reports
// backpressure, per spec.md §5's "sink backpressure drops the oldest
// queued frame, never the current tick" rule.
type TransportSink struct {
	network string // "tcp" or "unix"
	addr    string
	newMuxer MuxerFactory
	bp      BackpressureConfig

	mu       sync.Mutex
	listener net.Listener
	muxer    Muxer
	status   Status
	onStatus StatusCallback

	videoCh chan media.VideoFrame
	audioCh chan media.AudioFrame

	stopCh chan struct{}
	wg     sync.WaitGroup

	logger      *slog.Logger
	dropLimiter *rate.Limiter
}

// NewTransportSink constructs a TransportSink. network is "tcp" or
// "unix"; addr is a host:port or a socket path accordingly. logger may
// be nil, in which case slog.Default() is used.
func NewTransportSink(network, addr string, newMuxer MuxerFactory, bp BackpressureConfig, onStatus StatusCallback, logger *slog.Logger) *TransportSink {
	bp = bp.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &TransportSink{
		network:  network,
		addr:     addr,
		newMuxer: newMuxer,
		bp:       bp,
		onStatus: onStatus,
		videoCh:  make(chan media.VideoFrame, bp.VideoQueueDepth),
		audioCh:  make(chan media.AudioFrame, bp.AudioQueueDepth),
		stopCh:   make(chan struct{}),
		logger:   logger,
		// The exact backpressure threshold is a tunable (spec.md §9), but
		// repeated drops under sustained backpressure must not flood the
		// log; one WARN per second is enough to see the condition persist.
		dropLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (t *TransportSink) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
	if t.onStatus != nil {
		t.onStatus(s)
	}
}

// Addr returns the listener's bound address once Open has started
// listening, or nil beforehand. Useful for tests binding to port 0.
func (t *TransportSink) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Open listens, accepts exactly one connection, opens the inner muxer
// against it, and starts the background mux thread. Open blocks until a
// downstream consumer connects; it is called once per session, before
// the tick thread starts.
func (t *TransportSink) Open() error {
	t.setStatus(StatusStarting)

	ln, err := net.Listen(t.network, t.addr)
	if err != nil {
		t.setStatus(StatusError)
		return fmt.Errorf("sink: listen %s %s: %w", t.network, t.addr, err)
	}
	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()

	conn, err := ln.Accept()
	if err != nil {
		t.setStatus(StatusError)
		return fmt.Errorf("sink: accept: %w", err)
	}

	muxer := t.newMuxer(conn)
	if err := muxer.Open(); err != nil {
		t.setStatus(StatusError)
		return err
	}
	t.mu.Lock()
	t.muxer = muxer
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run()

	t.setStatus(StatusRunning)
	return nil
}

func (t *TransportSink) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.stopCh:
			return
		case vf := <-t.videoCh:
			if err := t.muxer.ConsumeVideo(vf); err != nil {
				t.setStatus(StatusError)
			}
		case af := <-t.audioCh:
			if err := t.muxer.ConsumeAudio(af); err != nil {
				t.setStatus(StatusError)
			}
		}
	}
}

// ConsumeVideo enqueues frame for the mux thread. Never blocks: a full
// queue drops its oldest entry and reports StatusBackpressure.
func (t *TransportSink) ConsumeVideo(frame media.VideoFrame) error {
	select {
	case t.videoCh <- frame:
		return nil
	default:
	}
	select {
	case <-t.videoCh:
	default:
	}
	t.onBackpressure("video")
	select {
	case t.videoCh <- frame:
	default:
	}
	return nil
}

// ConsumeAudio enqueues frame for the mux thread, with the same
// drop-oldest backpressure policy as ConsumeVideo.
func (t *TransportSink) ConsumeAudio(frame media.AudioFrame) error {
	select {
	case t.audioCh <- frame:
		return nil
	default:
	}
	select {
	case <-t.audioCh:
	default:
	}
	t.onBackpressure("audio")
	select {
	case t.audioCh <- frame:
	default:
	}
	return nil
}

// onBackpressure marks the sink as backpressured and logs it, rate
// limited so sustained backpressure doesn't flood the log with one WARN
// per dropped frame.
func (t *TransportSink) onBackpressure(queue string) {
	t.setStatus(StatusBackpressure)
	if t.dropLimiter.Allow() {
		t.logger.Warn("sink queue full, dropping oldest frame", "queue", queue)
	}
}

// Status returns the adapter's current lifecycle status.
func (t *TransportSink) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Close stops the mux thread, closes the inner muxer, and closes the
// listener. Called once, at session end.
func (t *TransportSink) Close() error {
	t.setStatus(StatusStopping)
	close(t.stopCh)
	t.wg.Wait()

	t.mu.Lock()
	muxer := t.muxer
	listener := t.listener
	t.mu.Unlock()

	var err error
	if muxer != nil {
		err = muxer.Close()
	}
	if listener != nil {
		if cerr := listener.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	t.setStatus(StatusStopped)
	return err
}
