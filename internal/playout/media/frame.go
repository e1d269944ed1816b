// Package media holds the value types that flow through the tick loop —
// video/audio frames, the session-lifetime pad source, and the loudness
// postprocessing helper — plus fade-in/out alpha computation.
package media

// VideoFrame is one decoded (or pad) video frame in planar YUV 4:2:0,
// ready for hand-off to the sink. Width/Height describe the luma plane;
// chroma planes are half resolution in both dimensions as required by
// 4:2:0.
type VideoFrame struct {
	Width  int
	Height int
	Y      []byte
	U      []byte
	V      []byte

	PtsUs           int64
	OriginSegmentID string

	// IsKeyframe is forwarded to the sink; the sink adapter relies on it
	// to satisfy the "first packet after a switch must be a keyframe"
	// invariant. Pad frames and every synchronously-created first frame
	// of a segment are keyframes by construction.
	IsKeyframe bool
}

// AudioFrame is one tick's worth of S16 interleaved house-format audio
// (canonical: 48kHz, 2 channels unless the session config says
// otherwise).
type AudioFrame struct {
	SampleRate int
	Channels   int
	NumSamples int
	PCM        []byte // len == NumSamples * Channels * 2

	PtsUs           int64
	OriginSegmentID string
}

// YSize returns the luma plane size in bytes (Width*Height).
func (f VideoFrame) YSize() int { return f.Width * f.Height }

// ChromaSize returns one chroma plane's size in bytes for 4:2:0 ((W/2)*(H/2)).
func (f VideoFrame) ChromaSize() int { return (f.Width / 2) * (f.Height / 2) }
