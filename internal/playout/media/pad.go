package media

import "hash/crc32"

// Broadcast-black/silence constants for the pad source, matching the
// original engine's pad template: luma at broadcast black (not full
// black 0x00), chroma at neutral, and S16 silence is all-zero.
const (
	broadcastBlackY byte = 0x10
	neutralChroma   byte = 0x80
)

// worstCaseSamplesPerFrame is the largest samples-per-tick value across
// every supported frame rate at 48kHz: 23.976fps (24000/1001) needs
// ceil(48000*1001/24000) = 2002 samples per frame in the worst case
// tick. Sized once so the pad buffer never needs to grow.
const worstCaseSamplesPerFrame = 2002

// sentinelPadAssetURI marks a pad segment's asset URI; pad segments
// never resolve to a real asset and are never handed to a SeamPreparer.
const sentinelPadAssetURI = "internal://pad"

// PadSentinelAssetURI exposes the sentinel pad asset URI for callers
// building or validating Segment values.
func PadSentinelAssetURI() string { return sentinelPadAssetURI }

// PadProducer is an immutable, session-lifetime black/silence source.
// It is constructed once per session and pre-allocates its frame and
// silence buffers so pad emission never allocates.
type PadProducer struct {
	width, height int
	y, u, v       []byte
	silence       []byte // worst-case sized S16 interleaved silence buffer
	sampleRate    int
	channels      int
	yFingerprint  uint32
}

// NewPadProducer builds the immutable pad template for the session's
// fixed output resolution and house audio format.
func NewPadProducer(width, height, sampleRate, channels int) *PadProducer {
	y := make([]byte, width*height)
	for i := range y {
		y[i] = broadcastBlackY
	}
	chromaW, chromaH := width/2, height/2
	u := make([]byte, chromaW*chromaH)
	v := make([]byte, chromaW*chromaH)
	for i := range u {
		u[i] = neutralChroma
		v[i] = neutralChroma
	}

	silenceSamples := worstCaseSamplesPerFrame
	silence := make([]byte, silenceSamples*channels*2) // all-zero already

	return &PadProducer{
		width:        width,
		height:       height,
		y:            y,
		u:            u,
		v:            v,
		silence:      silence,
		sampleRate:   sampleRate,
		channels:     channels,
		yFingerprint: crc32.ChecksumIEEE(y),
	}
}

// VideoFrame returns the pad video frame stamped with the given PTS and
// origin segment. The returned frame shares the pad's underlying byte
// slices — callers must not mutate them.
func (p *PadProducer) VideoFrame(ptsUs int64, originSegmentID string) VideoFrame {
	return VideoFrame{
		Width:           p.width,
		Height:          p.height,
		Y:               p.y,
		U:               p.u,
		V:               p.v,
		PtsUs:           ptsUs,
		OriginSegmentID: originSegmentID,
		IsKeyframe:      true,
	}
}

// AudioFrame returns exactly nSamples of silence stamped with the given
// PTS and origin segment. nSamples must not exceed the pre-allocated
// worst-case buffer (callers are responsible for sizing ticks correctly;
// the engine never requests more than one tick's worth of samples).
func (p *PadProducer) AudioFrame(nSamples int, ptsUs int64, originSegmentID string) AudioFrame {
	need := nSamples * p.channels * 2
	if need > len(p.silence) {
		need = len(p.silence)
		nSamples = len(p.silence) / (p.channels * 2)
	}
	return AudioFrame{
		SampleRate:      p.sampleRate,
		Channels:        p.channels,
		NumSamples:      nSamples,
		PCM:             p.silence[:need],
		PtsUs:           ptsUs,
		OriginSegmentID: originSegmentID,
	}
}

// YFingerprint returns the CRC32 of the pad's Y plane, used by the
// seam-verification harness to distinguish pad frames from content
// frames inside a fingerprinted frame window.
func (p *PadProducer) YFingerprint() uint32 { return p.yFingerprint }
