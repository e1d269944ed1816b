// Package metrics exposes the engine's observational Prometheus metrics.
// Metrics are purely observational: nothing in the tick loop branches on
// a metric value, only on the domain state the metric also records.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "playout_engine"

// Metrics owns one Prometheus registry per session, labeled by channel_id
// so one process can run several channels without collector collisions.
type Metrics struct {
	reg *prometheus.Registry

	FramesEmitted      prometheus.Counter
	PadFramesEmitted   prometheus.Counter
	SourceSwapCount    prometheus.Counter
	BlocksExecuted     prometheus.Counter
	PreloadStarted     prometheus.Counter
	PreloadReady       prometheus.Counter
	PreloadFailed      prometheus.Counter
	FencePadFrames     prometheus.Counter
	LateTicks          prometheus.Counter
	FrameAuthorityVacuum prometheus.Counter
	DegradedTakeCount  prometheus.Counter
	FenceAudioPadCount prometheus.Counter
	PaddedGapTicks     prometheus.Counter

	InterFrameGapNs prometheus.Histogram
	DecodeLatencyMs prometheus.Histogram

	VideoBufferDepthFrames prometheus.Gauge
	AudioBufferDepthMs     prometheus.Gauge
	VideoUnderflowCount    prometheus.Counter
	AudioUnderflowCount    prometheus.Counter

	EncoderOpenCount  prometheus.Counter
	EncoderCloseCount prometheus.Counter
	SessionDurationS  prometheus.Gauge

	sessionStart time.Time
}

// New constructs and registers a Metrics instance labeled by channelID.
func New(channelID string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"channel_id": channelID}

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(c)
		return c
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(g)
		return g
	}

	m := &Metrics{
		reg:                    reg,
		FramesEmitted:          counter("frames_emitted_total", "Total video frames emitted to the sink."),
		PadFramesEmitted:       counter("pad_frames_emitted_total", "Total pad (black/silence) video frames emitted."),
		SourceSwapCount:        counter("source_swap_total", "Total segment/block authority swaps (TAKEs)."),
		BlocksExecuted:         counter("blocks_executed_total", "Total FedBlocks fully played out."),
		PreloadStarted:         counter("preload_started_total", "Total SeamPreparer preload attempts started."),
		PreloadReady:           counter("preload_ready_total", "Total preloads that reached ready state."),
		PreloadFailed:          counter("preload_failed_total", "Total preloads that failed."),
		FencePadFrames:         counter("fence_pad_frames_total", "Total pad frames emitted at a block fence awaiting preload."),
		LateTicks:              counter("late_ticks_total", "Total ticks whose deadline had already passed when observed."),
		FrameAuthorityVacuum:   counter("frame_authority_vacuum_total", "Total ticks where the active source held no frame and the successor was ineligible."),
		DegradedTakeCount:      counter("degraded_take_total", "Total DEGRADED_TAKE fallbacks (forced TAKE of an unprimed producer at the fence)."),
		FenceAudioPadCount:     counter("fence_audio_pad_total", "Total occurrences of a null audio source at the fence while pad video is active."),
		PaddedGapTicks:         counter("padded_gap_ticks_total", "Total ticks emitted while in PADDED_GAP mode."),
		InterFrameGapNs:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "inter_frame_gap_ns", Help: "Observed gap between consecutive frame emissions, in nanoseconds.", ConstLabels: labels, Buckets: prometheus.ExponentialBuckets(1e5, 2, 12)}),
		DecodeLatencyMs:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "decode_latency_ms", Help: "Observed per-frame decode latency in milliseconds.", ConstLabels: labels, Buckets: prometheus.DefBuckets}),
		VideoBufferDepthFrames: gauge("video_buffer_depth_frames", "Current live producer video lookahead depth, in frames."),
		AudioBufferDepthMs:     gauge("audio_buffer_depth_ms", "Current live producer audio lookahead depth, in milliseconds."),
		VideoUnderflowCount:    counter("video_buffer_underflow_total", "Total video lookahead buffer underflow events."),
		AudioUnderflowCount:    counter("audio_buffer_underflow_total", "Total audio lookahead buffer underflow events."),
		EncoderOpenCount:       counter("encoder_open_total", "Total sink encoder open events (should be 1 per session)."),
		EncoderCloseCount:      counter("encoder_close_total", "Total sink encoder close events."),
		SessionDurationS:       gauge("session_duration_seconds", "Wall-clock seconds since session start."),
		sessionStart:           time.Time{},
	}
	reg.MustRegister(m.InterFrameGapNs, m.DecodeLatencyMs)
	return m
}

// MarkSessionStart records the session's start time for SessionDurationS.
func (m *Metrics) MarkSessionStart(t time.Time) { m.sessionStart = t }

// Tick updates SessionDurationS; called once per emitted tick.
func (m *Metrics) Tick(now time.Time) {
	if m.sessionStart.IsZero() {
		return
	}
	m.SessionDurationS.Set(now.Sub(m.sessionStart).Seconds())
}

// Handler returns an http.Handler serving this session's metrics in
// Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
