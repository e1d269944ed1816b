// Package pipeline implements PipelineManager: the single real-time
// tick thread that drives one frame per output cadence deadline,
// evaluates seam and fence rules, commits source authority, and emits
// to the configured sink.
package pipeline

import (
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alxayo/playout-engine/internal/perr"
	"github.com/alxayo/playout-engine/internal/playout/blockplan"
	"github.com/alxayo/playout-engine/internal/playout/clock"
	"github.com/alxayo/playout-engine/internal/playout/media"
	"github.com/alxayo/playout-engine/internal/playout/metrics"
	"github.com/alxayo/playout-engine/internal/playout/producer"
	"github.com/alxayo/playout-engine/internal/playout/rationalfps"
	"github.com/alxayo/playout-engine/internal/playout/seam"
	"github.com/alxayo/playout-engine/internal/playout/sink"
)

// Callbacks are lifecycle hooks the caller supplies. Each may be nil.
// They are invoked synchronously from the tick thread, so implementations
// must not block.
type Callbacks struct {
	OnBlockCompleted func(blockID string)
	OnSessionEnded   func(reason string)
	OnFrameEmitted   func(frame media.VideoFrame)
	OnBlockSummary   func(blockID string, framesEmitted, padFrames int64)
	OnSeamTransition func(fromSegmentID, toSegmentID string, kind string)
	OnPlaybackProof  func(blockID string, fingerprint uint32)
}

// Config configures one PipelineManager instance.
type Config struct {
	ChannelID string
	Width     int
	Height    int
	FPS       rationalfps.FPS

	ProducerCfg producer.Config

	Sink     sink.Sink
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Clock    *clock.OutputClock

	NewPreparer func() *seam.Preparer
}

// seamKind distinguishes a segment-local seam from a block fence, per
// the "epoch delta" rule that may force the last segment of a block to
// be treated as a block-kind seam even though it is segment-indexed.
type seamKind int

const (
	seamNone seamKind = iota
	seamSegment
	seamBlock
)

// activeBinding names which source is authoritative for video right now.
type activeBinding int

const (
	bindingLive activeBinding = iota
	bindingPreview
	bindingPad
)

// Manager is the tick-loop engine. One Manager drives one channel's
// continuous output for the life of a session.
type Manager struct {
	cfg  Config
	pad  *media.PadProducer
	cb   Callbacks

	queue *blockplan.SessionContext

	sessionEpochUTCMs int64
	haveEpoch         bool

	sessionFrameIndex int64

	live    *producer.TickProducer
	preview *producer.TickProducer

	liveSegmentID    string
	previewSegmentID string

	preparer *seam.Preparer

	currentBlock         blockplan.FedBlock
	haveCurrentBlock     bool
	blockFenceFrame      int64
	remainingBlockFrames int64
	segmentSeamFrames    []int64 // planned_segment_seam_frames, cumulative, rebased to block activation
	activeSegmentIdx     int

	lastGoodVideoFrame media.VideoFrame
	haveLastGoodFrame  bool
	cadenceCounter     int64

	loggedViolations map[string]bool

	stopFlag atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu sync.Mutex
}

// New constructs a Manager. queue is the session's block intake (see
// blockplan.SessionContext); it is drained by the tick thread only.
func New(cfg Config, queue *blockplan.SessionContext, cb Callbacks) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:              cfg,
		pad:              media.NewPadProducer(cfg.Width, cfg.Height, cfg.ProducerCfg.SampleRate, cfg.ProducerCfg.Channels),
		cb:               cb,
		queue:            queue,
		stopCh:           make(chan struct{}),
		loggedViolations: make(map[string]bool),
	}
}

// Start opens the sink once for the session and spawns the tick thread.
func (m *Manager) Start() error {
	if err := m.cfg.Sink.Open(); err != nil {
		return err
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.EncoderOpenCount.Inc()
		m.cfg.Metrics.MarkSessionStart(time.Now())
	}
	m.wg.Add(1)
	go m.run()
	return nil
}

// Stop requests the tick thread to exit, cancels any in-flight preparer,
// and joins. Deferred fill-thread cleanup for live/preview producers
// happens after join, off the (already-stopped) tick thread.
func (m *Manager) Stop() {
	m.stopFlag.Store(true)
	m.queue.RequestStop()
	close(m.stopCh)
	if m.preparer != nil {
		m.preparer.Cancel()
	}
	m.wg.Wait()

	if m.live != nil {
		m.live.Stop()
	}
	if m.preview != nil {
		m.preview.Stop()
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.EncoderCloseCount.Inc()
	}
	_ = m.cfg.Sink.Close()
}

func (m *Manager) run() {
	defer m.wg.Done()
	for !m.stopFlag.Load() {
		m.tick()
	}
	if m.cb.OnSessionEnded != nil {
		m.cb.OnSessionEnded("stopped")
	}
}

// tick executes exactly one iteration of the real-time loop (spec.md
// §4.5, steps 1-10).
func (m *Manager) tick() {
	m.maybeLoadBlock()
	m.maybeArmNextBlockPreload()

	m.cfg.Clock.WaitForFrame(m.sessionFrameIndex)

	if !m.haveCurrentBlock {
		m.emitPaddedGap()
		m.sessionFrameIndex++
		return
	}

	advance := m.classifyCadence()
	kind := m.evaluateSeam()
	binding, eligible := m.commitSource(kind)

	if kind != seamNone && eligible {
		advance = true
	}

	vf, af := m.popFrame(binding, advance)
	m.emit(vf, af)

	m.sessionFrameIndex++
	m.remainingBlockFrames--

	if kind == seamSegment && eligible {
		m.rotateSegmentSeam()
	} else if kind == seamBlock {
		m.rotateBlockFence(eligible)
	}

	if m.remainingBlockFrames <= 0 && kind != seamBlock {
		m.finishBlock()
	}
}

// maybeLoadBlock implements step 1: if live is empty and a block is
// queued, pop it and arm the session for it.
func (m *Manager) maybeLoadBlock() {
	if m.haveCurrentBlock {
		return
	}
	block, ok := m.queue.TryDequeue()
	if !ok {
		return
	}

	if !m.haveEpoch {
		m.sessionEpochUTCMs = block.StartUTCMs
		m.haveEpoch = true
	}

	m.currentBlock = block
	m.haveCurrentBlock = true
	m.blockFenceFrame = m.cfg.FPS.BlockFenceFrame(m.sessionEpochUTCMs, block.EndUTCMs)

	activationFrame := m.sessionFrameIndex
	cumulative := int64(0)
	seams := make([]int64, len(block.Segments))
	for i, seg := range block.Segments {
		cumulative += m.cfg.FPS.FramesFromDurationCeil(seg.SegmentDurationMs)
		seams[i] = activationFrame + cumulative
	}
	// "Epoch delta" rule: if the fence does not fall exactly on the last
	// segment's planned seam, force that seam to block-kind so the swap
	// is governed by the fence rather than indefinite segment deferral.
	if n := len(seams); n > 0 && seams[n-1] != m.blockFenceFrame {
		seams[n-1] = m.blockFenceFrame
	}
	m.segmentSeamFrames = seams
	m.remainingBlockFrames = m.blockFenceFrame - activationFrame
	m.activeSegmentIdx = 0

	// m.live may already hold this very block's segment-0 producer if it
	// was taken at the previous block's fence TAKE (see rotateBlockFence);
	// in that case it is already primed and must not be rebuilt.
	wantOrigin := segmentOriginID(block.BlockID, 0)
	if m.live == nil || m.liveSegmentID != wantOrigin {
		m.live = m.newSyncProducer(block.Segments[0], wantOrigin)
		m.liveSegmentID = wantOrigin
	}

	m.preparer = m.cfg.NewPreparer()
	if len(block.Segments) > 1 {
		m.armPreload(block.Segments[1], segmentOriginID(block.BlockID, 1))
	}
}

func (m *Manager) newSyncProducer(seg blockplan.Segment, originID string) *producer.TickProducer {
	if seg.IsPad() {
		return nil // pad has no TickProducer; handled via m.pad directly
	}
	// In the shipping binary this resolves the asset URI and constructs a
	// real decoder; the concrete Decoder/DecoderFactory wiring is owned by
	// the caller that configures NewPreparer (see internal/playout/asset
	// and cmd/playout-engine). Synchronous segment-0 construction here
	// uses the same preparer machinery without backgrounding it: prime
	// and take immediately.
	p := m.cfg.NewPreparer()
	p.StartPreload(seg, originID)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.PreloadStarted.Inc()
	}
	for !p.IsReady() && !p.HasFailed() {
		time.Sleep(time.Millisecond)
	}
	if p.HasFailed() {
		m.logOnce("segment0_preload_failed", perr.NewAssetError(perr.AssetDecodeFailed, seg.AssetURI, p.Err()))
		return nil
	}
	tp, _ := p.TakeProducer()
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.PreloadReady.Inc()
	}
	return tp
}

func (m *Manager) armPreload(seg blockplan.Segment, originID string) {
	if seg.IsPad() {
		return
	}
	m.previewSegmentID = originID
	m.preparer.StartPreload(seg, originID)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.PreloadStarted.Inc()
	}
}

// maybeArmNextBlockPreload implements step 2.
func (m *Manager) maybeArmNextBlockPreload() {
	if m.preview != nil || m.preparer == nil || m.preparer.IsReady() {
		return
	}
	next, ok := m.queue.Peek()
	if !ok {
		return
	}
	if len(next.Segments) == 0 {
		return
	}
	m.armPreload(next.Segments[0], segmentOriginID(next.BlockID, 0))
}

// classifyCadence implements §4.5.4's advance/repeat classification
// against the session-wide ProducerCfg.SourceFPS; no per-segment source
// cadence is consulted.
func (m *Manager) classifyCadence() bool {
	t := m.cadenceCounter
	m.cadenceCounter++
	return rationalfps.CadenceAdvances(t, m.cfg.ProducerCfg.SourceFPS, m.cfg.FPS)
}

// evaluateSeam implements step 5: determine whether this tick is a
// segment seam, the block fence, or neither.
func (m *Manager) evaluateSeam() seamKind {
	if m.sessionFrameIndex == m.blockFenceFrame {
		return seamBlock
	}
	if m.activeSegmentIdx < len(m.segmentSeamFrames) && m.sessionFrameIndex == m.segmentSeamFrames[m.activeSegmentIdx] {
		return seamSegment
	}
	return seamNone
}

// commitSource implements the TAKE-at-commit rule (§4.5.1) together with
// the eligibility gates (§4.5.2). It returns which source is
// authoritative for this tick and whether an eligible swap occurred.
func (m *Manager) commitSource(kind seamKind) (activeBinding, bool) {
	if kind == seamNone {
		if m.live == nil {
			return bindingPad, false
		}
		return bindingLive, false
	}

	if m.preview == nil && m.preparer != nil && m.preparer.IsReady() {
		tp, ok := m.preparer.TakeProducer()
		if ok {
			m.preview = tp
		}
	}

	eligible := m.isEligible(m.preview)
	if !eligible {
		if kind == seamBlock {
			// Fence is absolute: fall back to pad and keep retrying every
			// tick, counted as a fence-preload-miss, not a silent retry.
			if m.cfg.Metrics != nil {
				m.cfg.Metrics.FencePadFrames.Inc()
			}
			m.logOnce("fence_preload_miss", perr.NewFencePreloadMissError("block_fence", nil))
			return bindingPad, false
		}
		return bindingLive, false
	}

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SourceSwapCount.Inc()
	}
	return bindingPreview, true
}

func (m *Manager) isEligible(tp *producer.TickProducer) bool {
	if tp == nil {
		return false
	}
	if !tp.Segment().IsPad() && tp.VideoDepthFrames() < 1 {
		return false
	}
	return tp.AudioDepthMs() >= 500
}

// popFrame implements steps 6-7: pop a video frame and matching audio,
// applying loudness gain (already applied at fill time by TickProducer)
// and repeating the last good frame when the cadence classifies this
// tick as a repeat.
func (m *Manager) popFrame(binding activeBinding, advance bool) (media.VideoFrame, media.AudioFrame) {
	samplesPerTick := m.cfg.ProducerCfg.SampleRate * int(m.cfg.FPS.Den) / int(m.cfg.FPS.Num)

	switch binding {
	case bindingPad:
		vf := m.pad.VideoFrame(0, m.activeSegmentID())
		af := m.pad.AudioFrame(samplesPerTick, 0, m.activeSegmentID())
		m.haveLastGoodFrame = true
		m.lastGoodVideoFrame = vf
		return vf, af

	case bindingPreview:
		vf, af, ok := m.preview.TryGetFrame(samplesPerTick)
		if !ok {
			return m.fallbackPadOrFreeze(samplesPerTick)
		}
		if af.NumSamples == 0 {
			af = m.pad.AudioFrame(samplesPerTick, 0, vf.OriginSegmentID)
		}
		m.haveLastGoodFrame = true
		m.lastGoodVideoFrame = vf
		return vf, af

	default: // bindingLive
		if m.live == nil {
			return m.fallbackPadOrFreeze(samplesPerTick)
		}
		if !advance && m.haveLastGoodFrame {
			af := media.AudioFrame{
				SampleRate: m.cfg.ProducerCfg.SampleRate,
				Channels:   m.cfg.ProducerCfg.Channels,
				NumSamples: samplesPerTick,
				PCM:        make([]byte, samplesPerTick*m.cfg.ProducerCfg.Channels*2),
			}
			if m.live != nil {
				if _, a, ok := m.live.TryGetFrame(samplesPerTick); ok && a.NumSamples > 0 {
					af = a
				}
			}
			return m.lastGoodVideoFrame, af
		}
		vf, af, ok := m.live.TryGetFrame(samplesPerTick)
		if !ok {
			if m.cfg.Metrics != nil {
				m.cfg.Metrics.FrameAuthorityVacuum.Inc()
			}
			m.logOnce("frame_authority_vacuum", errors.New("active source holds no frame and successor not eligible"))
			return m.fallbackPadOrFreeze(samplesPerTick)
		}
		if af.NumSamples == 0 {
			af = m.pad.AudioFrame(samplesPerTick, 0, vf.OriginSegmentID)
		}
		m.haveLastGoodFrame = true
		m.lastGoodVideoFrame = vf
		return vf, af
	}
}

func (m *Manager) fallbackPadOrFreeze(samplesPerTick int) (media.VideoFrame, media.AudioFrame) {
	if m.haveLastGoodFrame {
		vf := m.lastGoodVideoFrame
		af := m.pad.AudioFrame(samplesPerTick, 0, vf.OriginSegmentID)
		return vf, af
	}
	vf := m.pad.VideoFrame(0, m.activeSegmentID())
	af := m.pad.AudioFrame(samplesPerTick, 0, m.activeSegmentID())
	return vf, af
}

func (m *Manager) activeSegmentID() string {
	if m.liveSegmentID != "" {
		return m.liveSegmentID
	}
	return "pad"
}

// emit implements step 8-9: hand frames to the sink with computed PTS
// and fire the frame-emitted callback.
func (m *Manager) emit(vf media.VideoFrame, af media.AudioFrame) {
	vf.PtsUs = m.cfg.Clock.FrameIndexToPts90k(m.sessionFrameIndex) * 1000 / 90
	if err := m.cfg.Sink.ConsumeVideo(vf); err != nil {
		m.cfg.Logger.Error("sink consume video failed", "err", err)
	}
	if err := m.cfg.Sink.ConsumeAudio(af); err != nil {
		m.cfg.Logger.Error("sink consume audio failed", "err", err)
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.FramesEmitted.Inc()
		if vf.OriginSegmentID == "pad" {
			m.cfg.Metrics.PadFramesEmitted.Inc()
		}
		m.cfg.Metrics.Tick(time.Now())
	}
	if m.cb.OnFrameEmitted != nil {
		m.cb.OnFrameEmitted(vf)
	}
}

// emitPaddedGap handles the no-block-loaded state: pad video plus
// silence, every tick, until the queue receives a block.
func (m *Manager) emitPaddedGap() {
	samplesPerTick := m.cfg.ProducerCfg.SampleRate * int(m.cfg.FPS.Den) / int(m.cfg.FPS.Num)
	vf := m.pad.VideoFrame(0, "pad")
	af := m.pad.AudioFrame(samplesPerTick, 0, "pad")
	m.emit(vf, af)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.PaddedGapTicks.Inc()
	}
}

// rotateSegmentSeam implements step 10 for a segment-kind seam: the
// preview producer becomes live, the old live is stopped off the tick
// thread's critical section (deferred cleanup), and the preparer is
// armed for the next segment if one exists.
func (m *Manager) rotateSegmentSeam() {
	old := m.live
	oldID := m.liveSegmentID

	m.live = m.preview
	m.liveSegmentID = m.previewSegmentID
	m.preview = nil
	m.previewSegmentID = ""
	m.activeSegmentIdx++

	if m.cb.OnSeamTransition != nil {
		m.cb.OnSeamTransition(oldID, m.liveSegmentID, "segment")
	}

	m.deferCleanup(old)

	if m.activeSegmentIdx+1 < len(m.currentBlock.Segments) {
		next := m.currentBlock.Segments[m.activeSegmentIdx+1]
		m.armPreload(next, segmentOriginID(m.currentBlock.BlockID, m.activeSegmentIdx+1))
	}
}

// rotateBlockFence implements step 10 for the block-fence case. eligible
// indicates whether this was a clean TAKE or a forced DEGRADED_TAKE.
func (m *Manager) rotateBlockFence(eligible bool) {
	old := m.live
	oldID := m.liveSegmentID

	if eligible {
		m.live = m.preview
		m.liveSegmentID = m.previewSegmentID
	} else {
		m.logOnce("degraded_take", perr.NewDegradedTakeError("block_fence", nil))
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.DegradedTakeCount.Inc()
		}
	}
	m.preview = nil
	m.previewSegmentID = ""

	if m.cb.OnSeamTransition != nil {
		kind := "block"
		if !eligible {
			kind = "degraded_block"
		}
		m.cb.OnSeamTransition(oldID, m.liveSegmentID, kind)
	}

	m.deferCleanup(old)
	m.finishBlock()
}

func (m *Manager) deferCleanup(old *producer.TickProducer) {
	if old == nil {
		return
	}
	go old.Stop()
}

func (m *Manager) finishBlock() {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.BlocksExecuted.Inc()
	}
	if m.cb.OnBlockCompleted != nil {
		m.cb.OnBlockCompleted(m.currentBlock.BlockID)
	}
	if m.cb.OnBlockSummary != nil {
		m.cb.OnBlockSummary(m.currentBlock.BlockID, 0, 0)
	}
	m.haveCurrentBlock = false
}

func (m *Manager) logOnce(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loggedViolations[key] {
		return
	}
	m.loggedViolations[key] = true
	m.cfg.Logger.Warn("contract violation", "kind", key, "err", err, "frame_index", m.sessionFrameIndex)
}

func segmentOriginID(blockID string, segmentIndex int) string {
	return blockID + "#" + strconv.Itoa(segmentIndex)
}
