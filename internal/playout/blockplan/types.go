// Package blockplan holds the data model fed into the engine by the
// external scheduling core: blocks, segments, and the per-session queue
// that hands them to the PipelineManager.
package blockplan

import "github.com/alxayo/playout-engine/internal/playout/media"

// SegmentType distinguishes real content from a pad filler segment.
type SegmentType int

const (
	SegmentContent SegmentType = iota
	SegmentPad
)

func (t SegmentType) String() string {
	if t == SegmentPad {
		return "pad"
	}
	return "content"
}

// TransitionType names the supported segment-boundary transition kinds.
type TransitionType int

const (
	TransitionNone TransitionType = iota
	TransitionFade
)

func (t TransitionType) String() string {
	if t == TransitionFade {
		return "fade"
	}
	return "none"
}

// Transition describes a fade applied at a segment's in or out boundary.
type Transition struct {
	Type       TransitionType
	DurationMs int64
}

// Segment is one scheduled unit of playback inside a FedBlock.
type Segment struct {
	Index int

	SegmentType SegmentType
	// AssetURI is empty (or the pad sentinel) for pad segments.
	AssetURI string

	AssetStartOffsetMs int64
	SegmentDurationMs  int64

	TransitionIn  *Transition
	TransitionOut *Transition

	// LoudnessDB is the gain adjustment in dB applied to this segment's
	// audio. Zero means no adjustment; callers must skip ApplyGainS16
	// entirely when this is zero (see media.ApplyGainS16 docs).
	LoudnessDB float64
}

// IsPad reports whether this segment is pad filler.
func (s Segment) IsPad() bool { return s.SegmentType == SegmentPad }

// FedBlock is one scheduled block handed in by the external core.
type FedBlock struct {
	BlockID   string
	ChannelID string

	StartUTCMs int64
	EndUTCMs   int64

	// CommitSeq is a strictly increasing sequence number assigned by the
	// core at enqueue time; used to detect STALE_BLOCK_FROM_CORE.
	CommitSeq int64

	Segments []Segment
}

// DurationMs returns the block's total scheduled duration.
func (b FedBlock) DurationMs() int64 { return b.EndUTCMs - b.StartUTCMs }

// SumSegmentDurationsMs returns the sum of every segment's declared
// duration, which the SEGMENT_DURATION_MISMATCH invariant requires to
// equal DurationMs().
func (b FedBlock) SumSegmentDurationsMs() int64 {
	var sum int64
	for _, s := range b.Segments {
		sum += s.SegmentDurationMs
	}
	return sum
}

// PadSegment builds a synchronously-creatable pad segment of the given
// duration; pad segments are never handed to a SeamPreparer.
func PadSegment(index int, durationMs int64) Segment {
	return Segment{
		Index:             index,
		SegmentType:       SegmentPad,
		AssetURI:          media.PadSentinelAssetURI(),
		SegmentDurationMs: durationMs,
	}
}
