package buffer

import (
	"sync"

	"github.com/alxayo/playout-engine/internal/playout/media"
)

// AudioLookaheadBuffer is a bounded FIFO of house-format (S16 interleaved,
// single sample rate/channel count) audio, with depth tracked in
// milliseconds rather than frame count since audio frames may carry
// differing sample counts across cadence changes.
type AudioLookaheadBuffer struct {
	mu               sync.Mutex
	notFull          *sync.Cond
	frames           []media.AudioFrame
	highWaterMarkMs  int64
	sampleRate       int
	channels         int

	pushed    uint64
	popped    uint64
	underflow uint64
}

// NewAudioLookaheadBuffer constructs a buffer with the given high-water
// mark in milliseconds (typically 1000ms) for house-format audio at
// sampleRate/channels.
func NewAudioLookaheadBuffer(highWaterMarkMs int64, sampleRate, channels int) *AudioLookaheadBuffer {
	b := &AudioLookaheadBuffer{
		highWaterMarkMs: highWaterMarkMs,
		sampleRate:      sampleRate,
		channels:        channels,
	}
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// msForSamples converts a sample count to milliseconds at the buffer's
// configured sample rate, using integer arithmetic.
func (b *AudioLookaheadBuffer) msForSamples(n int) int64 {
	return int64(n) * 1000 / int64(b.sampleRate)
}

func (b *AudioLookaheadBuffer) depthSamplesLocked() int {
	total := 0
	for _, f := range b.frames {
		total += f.NumSamples
	}
	return total
}

// Push appends an audio frame at the tail. It blocks only while the
// buffer's buffered duration is already at or above the high-water mark.
func (b *AudioLookaheadBuffer) Push(f media.AudioFrame) {
	b.mu.Lock()
	for b.msForSamples(b.depthSamplesLocked()) >= b.highWaterMarkMs {
		b.notFull.Wait()
	}
	b.frames = append(b.frames, f)
	b.pushed++
	b.mu.Unlock()
}

// TryPopSamples removes exactly nSamples worth of house-format audio
// from the head, splitting the leading queued frame if necessary. ok is
// false (underflow, counted) if fewer than nSamples are currently
// buffered; in that case nothing is removed.
func (b *AudioLookaheadBuffer) TryPopSamples(nSamples int) (media.AudioFrame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.depthSamplesLocked() < nSamples {
		b.underflow++
		return media.AudioFrame{}, false
	}

	bytesPerSample := b.channels * 2
	out := media.AudioFrame{
		SampleRate: b.sampleRate,
		Channels:   b.channels,
		NumSamples: nSamples,
		PCM:        make([]byte, nSamples*bytesPerSample),
	}

	remaining := nSamples
	writeOff := 0
	for remaining > 0 {
		head := &b.frames[0]
		if out.PtsUs == 0 {
			out.PtsUs = head.PtsUs
			out.OriginSegmentID = head.OriginSegmentID
		}
		take := head.NumSamples
		if take > remaining {
			take = remaining
		}
		n := copy(out.PCM[writeOff:], head.PCM[:take*bytesPerSample])
		writeOff += n
		remaining -= take

		if take == head.NumSamples {
			b.frames = b.frames[1:]
		} else {
			head.PCM = head.PCM[take*bytesPerSample:]
			head.NumSamples -= take
		}
	}

	b.popped++
	b.notFull.Signal()
	return out, true
}

// DepthMs reports the currently buffered audio duration in milliseconds,
// without blocking.
func (b *AudioLookaheadBuffer) DepthMs() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.msForSamples(b.depthSamplesLocked())
}

// Stats returns a copy of the current push/pop/underflow counters.
func (b *AudioLookaheadBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Pushed: b.pushed, Popped: b.popped, Underflow: b.underflow}
}
