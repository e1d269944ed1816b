// Package seam implements ProducerPreloader: priming the next segment's
// TickProducer off the tick thread so the seam transition can be a plain
// atomic pointer swap with no decode work on the real-time path.
package seam

import (
	"sync"
	"sync/atomic"

	"github.com/alxayo/playout-engine/internal/playout/blockplan"
	"github.com/alxayo/playout-engine/internal/playout/media"
	"github.com/alxayo/playout-engine/internal/playout/producer"
)

// state values for Preparer's internal status machine.
const (
	stateIdle int32 = iota
	statePreloading
	stateReady
	stateFailed
	stateCancelled
	stateTaken
)

// DecoderFactory constructs a fresh Decoder for a segment. The pipeline
// injects this so the seam package never depends on a concrete decoder
// implementation, matching the same seam producer.Decoder already draws.
type DecoderFactory func(segment blockplan.Segment) producer.Decoder

// PathResolver resolves a segment's asset URI to a decoder-ready local
// path (see internal/playout/asset).
type PathResolver func(assetURI string) (string, error)

// Preparer (the ProducerPreloader) primes exactly one TickProducer in the background.
// Its API is entirely non-blocking except TakeProducer, which only
// blocks briefly to claim an already-ready result: StartPreload kicks
// off a goroutine, IsReady/HasFailed poll atomic state, TakeProducer
// claims the finished producer exactly once, and Cancel is idempotent
// and safe to call even if preload never started or already finished.
type Preparer struct {
	resolvePath PathResolver
	newDecoder  DecoderFactory
	width       int
	height      int
	cfg         producer.Config

	mu    sync.Mutex
	state atomic.Int32

	result *producer.TickProducer
	err    error

	cancelCh chan struct{}
	wg       sync.WaitGroup
}

// New constructs an idle Preparer. width/height/cfg describe the output
// frame geometry and buffer sizing every preloaded producer is built
// with.
func New(resolvePath PathResolver, newDecoder DecoderFactory, width, height int, cfg producer.Config) *Preparer {
	return &Preparer{
		resolvePath: resolvePath,
		newDecoder:  newDecoder,
		width:       width,
		height:      height,
		cfg:         cfg,
	}
}

// StartPreload begins priming a TickProducer for segment in the
// background. originID is the origin_segment_id every frame the
// resulting producer emits must carry. Pad segments are never preloaded
// through this path — callers construct a pad producer synchronously
// instead (see media.PadProducer) — StartPreload returns immediately
// without starting work if segment.IsPad().
func (p *Preparer) StartPreload(segment blockplan.Segment, originID string) {
	if segment.IsPad() {
		return
	}
	if !p.state.CompareAndSwap(stateIdle, statePreloading) {
		return
	}
	p.cancelCh = make(chan struct{})
	p.wg.Add(1)
	go p.run(segment, originID, p.cancelCh)
}

func (p *Preparer) run(segment blockplan.Segment, originID string, cancelCh chan struct{}) {
	defer p.wg.Done()

	path, err := p.resolvePath(segment.AssetURI)
	if err != nil {
		p.fail(err)
		return
	}

	select {
	case <-cancelCh:
		p.state.Store(stateCancelled)
		return
	default:
	}

	dec := p.newDecoder(segment)
	tp, err := producer.NewTickProducer(segment, originID, path, p.width, p.height, dec, p.cfg)
	if err != nil {
		p.fail(err)
		return
	}

	if err := tp.PrimeFirstFrame(); err != nil {
		tp.Stop()
		select {
		case <-cancelCh:
			p.state.Store(stateCancelled)
		default:
			p.fail(err)
		}
		return
	}

	select {
	case <-cancelCh:
		tp.Stop()
		p.state.Store(stateCancelled)
		return
	default:
	}

	p.mu.Lock()
	p.result = tp
	p.mu.Unlock()
	p.state.Store(stateReady)
}

func (p *Preparer) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.state.Store(stateFailed)
}

// IsReady reports whether a preloaded producer is available to take.
func (p *Preparer) IsReady() bool { return p.state.Load() == stateReady }

// HasFailed reports whether preload failed (asset resolution error,
// decoder open failure, or exhaustion before the first frame). Err
// returns the underlying cause.
func (p *Preparer) HasFailed() bool { return p.state.Load() == stateFailed }

// Err returns the preload failure cause, or nil if none occurred.
func (p *Preparer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// TakeProducer claims the preloaded TickProducer. ok is false unless
// IsReady() was true; it is safe to call at most once per StartPreload —
// a second call after a successful take returns ok=false since the
// preparer has reset to idle.
func (p *Preparer) TakeProducer() (*producer.TickProducer, bool) {
	if !p.state.CompareAndSwap(stateReady, stateTaken) {
		return nil, false
	}
	p.mu.Lock()
	tp := p.result
	p.result = nil
	p.mu.Unlock()
	p.wg.Wait()
	p.state.Store(stateIdle)
	return tp, tp != nil
}

// Cancel aborts an in-flight or completed-but-untaken preload. It is
// idempotent: calling it when nothing is preloading, or calling it
// twice, is a no-op. If a producer had already finished preloading but
// was never taken, Cancel stops it so its decoder and fill thread are
// released.
func (p *Preparer) Cancel() {
	switch p.state.Load() {
	case stateIdle, stateCancelled:
		return
	case statePreloading:
		if p.cancelCh != nil {
			select {
			case <-p.cancelCh:
			default:
				close(p.cancelCh)
			}
		}
		p.wg.Wait()
		p.state.Store(stateIdle)
	case stateReady:
		p.mu.Lock()
		tp := p.result
		p.result = nil
		p.mu.Unlock()
		if tp != nil {
			tp.Stop()
		}
		p.state.Store(stateIdle)
	case stateFailed, stateTaken:
		p.state.Store(stateIdle)
	}
}

// PadVideoFrame and PadAudioFrame are convenience passthroughs used when
// a pad segment's synchronous producer needs the same media types a
// preloaded TickProducer would emit, without needing callers to import
// the media package directly for this one case.
func PadVideoFrame(pad *media.PadProducer, ptsUs int64, originID string) media.VideoFrame {
	return pad.VideoFrame(ptsUs, originID)
}

func PadAudioFrame(pad *media.PadProducer, nSamples int, ptsUs int64, originID string) media.AudioFrame {
	return pad.AudioFrame(nSamples, ptsUs, originID)
}
