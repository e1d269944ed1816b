package producer

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alxayo/playout-engine/internal/playout/blockplan"
	"github.com/alxayo/playout-engine/internal/playout/buffer"
	"github.com/alxayo/playout-engine/internal/playout/media"
	"github.com/alxayo/playout-engine/internal/playout/rationalfps"
)

// fillPollInterval bounds how often the fill thread re-checks buffer
// depth while above the low-water mark, so it parks instead of spinning.
const fillPollInterval = 2 * time.Millisecond

// Config controls the buffer sizing and fill-thread behavior of a
// TickProducer.
type Config struct {
	VideoHighWaterFrames int
	VideoLowWaterFrames  int
	AudioHighWaterMs     int64
	SampleRate           int
	Channels             int
	// SourceFPS is the segment's own decode cadence, used for fade/freeze
	// content-time bookkeeping; it may differ from the output cadence
	// (the tick loop resolves that mismatch, see rationalfps.CadenceAdvances).
	SourceFPS rationalfps.FPS
}

func (c Config) withDefaults() Config {
	if c.VideoHighWaterFrames == 0 {
		c.VideoHighWaterFrames = 30
	}
	if c.VideoLowWaterFrames == 0 {
		c.VideoLowWaterFrames = 10
	}
	if c.AudioHighWaterMs == 0 {
		c.AudioHighWaterMs = 1000
	}
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}
	if c.Channels == 0 {
		c.Channels = 2
	}
	return c
}

// TickProducer owns exactly one decoder for one segment. It is
// constructed off the tick thread (by the SeamPreparer), its fill thread
// decodes ahead into the lookahead buffers applying fade postprocessing
// and loudness gain, and TryGetFrame pops fully-ready frames for the
// tick loop. It never self-advances to the next segment: once exhausted
// it returns empty forever.
type TickProducer struct {
	segment   blockplan.Segment
	originID  string
	decoder   Decoder
	cfg       Config
	videoBuf  *buffer.VideoLookaheadBuffer
	audioBuf  *buffer.AudioLookaheadBuffer

	contentFrameCount atomic.Int64
	exhausted         atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewTickProducer constructs a TickProducer and starts its fill thread.
// path is the already-resolved decoder-ready asset path (see
// internal/playout/asset for URI resolution); it is empty for pad
// segments, which are never constructed through this path (see §4.4).
func NewTickProducer(segment blockplan.Segment, originID, path string, width, height int, decoder Decoder, cfg Config) (*TickProducer, error) {
	cfg = cfg.withDefaults()
	if err := decoder.Open(path, width, height, segment.AssetStartOffsetMs); err != nil {
		return nil, err
	}

	tp := &TickProducer{
		segment:  segment,
		originID: originID,
		decoder:  decoder,
		cfg:      cfg,
		videoBuf: buffer.NewVideoLookaheadBuffer(cfg.VideoHighWaterFrames),
		audioBuf: buffer.NewAudioLookaheadBuffer(cfg.AudioHighWaterMs, cfg.SampleRate, cfg.Channels),
		stopCh:   make(chan struct{}),
	}
	tp.wg.Add(1)
	go tp.fillLoop()
	return tp, nil
}

// PrimeFirstFrame blocks until the first video frame is decoded and
// buffered, or an error occurs. The SeamPreparer calls this synchronously
// off the tick thread before declaring IsReady(); it is not called by
// the tick loop itself.
func (tp *TickProducer) PrimeFirstFrame() error {
	for {
		if tp.videoBuf.DepthFrames() > 0 {
			return nil
		}
		if tp.exhausted.Load() {
			return errors.New("tickproducer: segment exhausted before first frame")
		}
		select {
		case <-tp.stopCh:
			return errors.New("tickproducer: cancelled before first frame")
		case <-time.After(fillPollInterval):
		}
	}
}

// fillLoop decodes ahead with hysteresis: it fills until the video
// lookahead reaches the high-water mark, then idles until depth drops to
// the low-water mark before resuming, matching spec.md §4.5.5's "wakes
// when its lookahead buffer falls below a low-water mark" wording while
// avoiding the thrash of refilling one frame at a time at the boundary.
func (tp *TickProducer) fillLoop() {
	defer tp.wg.Done()
	filling := true
	for {
		select {
		case <-tp.stopCh:
			return
		default:
		}

		depth := tp.videoBuf.DepthFrames()
		if filling && depth >= tp.cfg.VideoHighWaterFrames {
			filling = false
		} else if !filling && depth <= tp.cfg.VideoLowWaterFrames {
			filling = true
		}
		if !filling {
			select {
			case <-tp.stopCh:
				return
			case <-time.After(fillPollInterval):
			}
			continue
		}

		vf, err := tp.decoder.DecodeVideoFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				tp.exhausted.Store(true)
				return
			}
			tp.exhausted.Store(true)
			return
		}
		frameIdx := tp.contentFrameCount.Add(1) - 1
		contentTimeMs := frameIdx * tp.cfg.SourceFPS.FrameDurationMs()

		tp.applyFade(&vf, contentTimeMs)
		vf.OriginSegmentID = tp.originID
		vf.IsKeyframe = frameIdx == 0

		samplesPerFrame := tp.cfg.SampleRate * int(tp.cfg.SourceFPS.Den) / int(tp.cfg.SourceFPS.Num)
		af, err := tp.decoder.DecodeAudioSamples(samplesPerFrame)
		if err != nil && !errors.Is(err, io.EOF) {
			tp.exhausted.Store(true)
			return
		}
		if err == nil {
			af.OriginSegmentID = tp.originID
			if tp.segment.LoudnessDB != 0 {
				media.ApplyGainS16(af.PCM, tp.segment.LoudnessDB)
			}
			tp.audioBuf.Push(af)
		}

		tp.videoBuf.Push(vf)
	}
}

// applyFade attenuates vf's planes toward broadcast black/neutral when
// contentTimeMs falls inside a configured fade-in/out window.
func (tp *TickProducer) applyFade(vf *media.VideoFrame, contentTimeMs int64) {
	if in := tp.segment.TransitionIn; in != nil && in.Type == blockplan.TransitionFade {
		if contentTimeMs <= in.DurationMs {
			alpha := media.FadeAlphaQ16(contentTimeMs, 0, in.DurationMs, true)
			media.ApplyAlphaY(vf.Y, alpha)
			media.ApplyAlphaChroma(vf.U, alpha)
			media.ApplyAlphaChroma(vf.V, alpha)
		}
	}
	if out := tp.segment.TransitionOut; out != nil && out.Type == blockplan.TransitionFade {
		windowStart := tp.segment.SegmentDurationMs - out.DurationMs
		if contentTimeMs >= windowStart {
			alpha := media.FadeAlphaQ16(contentTimeMs, windowStart, out.DurationMs, false)
			media.ApplyAlphaY(vf.Y, alpha)
			media.ApplyAlphaChroma(vf.U, alpha)
			media.ApplyAlphaChroma(vf.V, alpha)
		}
	}
}

// TryGetFrame pops one fully-postprocessed video frame and nSamples of
// matching audio from the lookahead buffers. ok is false whenever the
// video buffer is empty, whether the segment's content is exhausted or
// the video buffer is only temporarily underflowed. An audio-only
// underflow still returns ok=true, with an empty AudioFrame.
func (tp *TickProducer) TryGetFrame(nSamples int) (media.VideoFrame, media.AudioFrame, bool) {
	vf, ok := tp.videoBuf.TryPop()
	if !ok {
		return media.VideoFrame{}, media.AudioFrame{}, false
	}
	af, ok := tp.audioBuf.TryPopSamples(nSamples)
	if !ok {
		// Audio underflow without video underflow: still deliver video,
		// pairing it with silence would require a pad reference the
		// producer does not own, so the tick loop is responsible for
		// the pad-audio fallback when this occurs.
		return vf, media.AudioFrame{}, true
	}
	return vf, af, true
}

// IsExhausted reports whether the fill thread has permanently stopped
// because the segment's content ran out or errored.
func (tp *TickProducer) IsExhausted() bool { return tp.exhausted.Load() }

// VideoDepthFrames reports the buffered video frame count (seam
// eligibility gate: video readiness).
func (tp *TickProducer) VideoDepthFrames() int { return tp.videoBuf.DepthFrames() }

// AudioDepthMs reports the buffered audio duration in ms (seam
// eligibility gate: audio readiness).
func (tp *TickProducer) AudioDepthMs() int64 { return tp.audioBuf.DepthMs() }

// Segment returns the segment this producer was constructed for.
func (tp *TickProducer) Segment() blockplan.Segment { return tp.segment }

// OriginSegmentID returns the identity every frame from this producer
// must carry.
func (tp *TickProducer) OriginSegmentID() string { return tp.originID }

// Stop signals the fill thread to exit and joins it. Idempotent. The
// underlying decoder is closed only after the fill thread has observed
// the stop signal and returned, matching the "decoder lifecycle owned
// exclusively by its producer, destroyed on that producer's thread" rule
// — callers invoke Stop from the thread responsible for this producer's
// deferred cleanup, not from the tick thread itself.
func (tp *TickProducer) Stop() {
	tp.stopOnce.Do(func() {
		close(tp.stopCh)
	})
	tp.wg.Wait()
	_ = tp.decoder.Close()
}
