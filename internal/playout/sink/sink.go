// Package sink defines the engine's one outbound polymorphic boundary:
// where emitted frames go. The tick loop calls ConsumeVideo/ConsumeAudio
// exactly once per tick; the sink must be thread-safe and must never
// block the tick thread beyond the configured backpressure policy.
package sink

import (
	"sync/atomic"

	"github.com/alxayo/playout-engine/internal/playout/media"
)

// Status is the sink's lifecycle state, reported via a callback.
type Status int

const (
	StatusIdle Status = iota
	StatusStarting
	StatusRunning
	StatusBackpressure
	StatusError
	StatusStopping
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusBackpressure:
		return "backpressure"
	case StatusError:
		return "error"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StatusCallback is invoked whenever the sink's status changes.
type StatusCallback func(Status)

// Sink is the engine's outbound media boundary. Open is called exactly
// once per session (the "one encoder per session" rule); Close only on
// session end.
type Sink interface {
	Open() error
	ConsumeVideo(frame media.VideoFrame) error
	ConsumeAudio(frame media.AudioFrame) error
	Status() Status
	Close() error
}

// NullSink discards every frame. It is used by tests and by
// PADDED_GAP-only smoke runs that don't need transport output.
type NullSink struct {
	status       Status
	videoFrames  atomic.Int64
	audioFrames  atomic.Int64
	onStatus     StatusCallback
}

// NewNullSink constructs a NullSink. onStatus may be nil.
func NewNullSink(onStatus StatusCallback) *NullSink {
	return &NullSink{status: StatusIdle, onStatus: onStatus}
}

func (s *NullSink) setStatus(st Status) {
	s.status = st
	if s.onStatus != nil {
		s.onStatus(st)
	}
}

func (s *NullSink) Open() error {
	s.setStatus(StatusRunning)
	return nil
}

func (s *NullSink) ConsumeVideo(frame media.VideoFrame) error {
	s.videoFrames.Add(1)
	return nil
}

func (s *NullSink) ConsumeAudio(frame media.AudioFrame) error {
	s.audioFrames.Add(1)
	return nil
}

func (s *NullSink) Status() Status { return s.status }

func (s *NullSink) Close() error {
	s.setStatus(StatusStopped)
	return nil
}

// VideoFrameCount and AudioFrameCount expose counters for test
// assertions.
func (s *NullSink) VideoFrameCount() int { return int(s.videoFrames.Load()) }
func (s *NullSink) AudioFrameCount() int { return int(s.audioFrames.Load()) }
