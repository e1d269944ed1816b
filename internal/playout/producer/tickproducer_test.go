package producer

import (
	"io"
	"testing"
	"time"

	"github.com/alxayo/playout-engine/internal/playout/blockplan"
	"github.com/alxayo/playout-engine/internal/playout/media"
	"github.com/alxayo/playout-engine/internal/playout/rationalfps"
)

// fakeDecoder produces a fixed number of all-zero video frames and
// matching all-zero (silent) audio, then reports exhaustion via io.EOF.
type fakeDecoder struct {
	width, height int
	totalFrames   int
	emitted       int
	opened        bool
	closed        bool
}

func (d *fakeDecoder) Open(path string, width, height int, startOffsetMs int64) error {
	d.width, d.height = width, height
	d.opened = true
	return nil
}

func (d *fakeDecoder) DecodeVideoFrame() (media.VideoFrame, error) {
	if d.emitted >= d.totalFrames {
		return media.VideoFrame{}, io.EOF
	}
	d.emitted++
	ySize := d.width * d.height
	cSize := ySize / 4
	return media.VideoFrame{
		Width: d.width, Height: d.height,
		Y: make([]byte, ySize), U: make([]byte, cSize), V: make([]byte, cSize),
	}, nil
}

func (d *fakeDecoder) DecodeAudioSamples(n int) (media.AudioFrame, error) {
	if d.emitted > d.totalFrames {
		return media.AudioFrame{}, io.EOF
	}
	return media.AudioFrame{SampleRate: 48000, Channels: 2, NumSamples: n, PCM: make([]byte, n*2*2)}, nil
}

func (d *fakeDecoder) Close() error {
	d.closed = true
	return nil
}

func testConfig() Config {
	return Config{
		VideoHighWaterFrames: 20,
		VideoLowWaterFrames:  10,
		AudioHighWaterMs:     3000,
		SampleRate:           48000,
		Channels:             2,
		SourceFPS:            rationalfps.Standard30,
	}
}

func TestTickProducerPrimeAndPop(t *testing.T) {
	seg := blockplan.Segment{Index: 0, SegmentType: blockplan.SegmentContent, SegmentDurationMs: 1000}
	d := &fakeDecoder{totalFrames: 10}

	tp, err := NewTickProducer(seg, "seg-1", "/assets/clip.mov", 320, 240, d, testConfig())
	if err != nil {
		t.Fatalf("NewTickProducer: %v", err)
	}
	defer tp.Stop()

	if err := tp.PrimeFirstFrame(); err != nil {
		t.Fatalf("PrimeFirstFrame: %v", err)
	}

	vf, af, ok := tp.TryGetFrame(1600)
	if !ok {
		t.Fatalf("expected a frame to be available after priming")
	}
	if vf.OriginSegmentID != "seg-1" {
		t.Fatalf("OriginSegmentID = %q, want seg-1", vf.OriginSegmentID)
	}
	if !vf.IsKeyframe {
		t.Fatalf("expected first frame to be marked keyframe")
	}
	if af.NumSamples != 1600 {
		t.Fatalf("audio NumSamples = %d, want 1600", af.NumSamples)
	}
}

func TestTickProducerExhaustionNeverSelfAdvances(t *testing.T) {
	seg := blockplan.Segment{Index: 0, SegmentType: blockplan.SegmentContent, SegmentDurationMs: 100}
	d := &fakeDecoder{totalFrames: 2}

	tp, err := NewTickProducer(seg, "seg-1", "/assets/short.mov", 320, 240, d, testConfig())
	if err != nil {
		t.Fatalf("NewTickProducer: %v", err)
	}
	defer tp.Stop()

	if err := tp.PrimeFirstFrame(); err != nil {
		t.Fatalf("PrimeFirstFrame: %v", err)
	}

	popped := 0
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, _, ok := tp.TryGetFrame(1600); ok {
			popped++
			if popped == 2 {
				break
			}
			continue
		}
		time.Sleep(time.Millisecond)
	}
	if popped != 2 {
		t.Fatalf("popped = %d, want exactly 2 frames from a 2-frame segment", popped)
	}

	deadline = time.Now().Add(100 * time.Millisecond)
	for !tp.IsExhausted() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !tp.IsExhausted() {
		t.Fatalf("expected producer to report exhausted after segment content ran out")
	}
	if _, _, ok := tp.TryGetFrame(1600); ok {
		t.Fatalf("expected no further frames once exhausted, producer must not self-advance")
	}
}

func TestTickProducerDepthGatesReadiness(t *testing.T) {
	seg := blockplan.Segment{Index: 0, SegmentType: blockplan.SegmentContent, SegmentDurationMs: 5000}
	d := &fakeDecoder{totalFrames: 200}

	tp, err := NewTickProducer(seg, "seg-1", "/assets/long.mov", 320, 240, d, testConfig())
	if err != nil {
		t.Fatalf("NewTickProducer: %v", err)
	}
	defer tp.Stop()

	if err := tp.PrimeFirstFrame(); err != nil {
		t.Fatalf("PrimeFirstFrame: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for tp.VideoDepthFrames() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if tp.VideoDepthFrames() < 1 {
		t.Fatalf("expected at least one buffered frame for seam video readiness gate")
	}
	if tp.AudioDepthMs() < 500 {
		deadline = time.Now().Add(time.Second)
		for tp.AudioDepthMs() < 500 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	if tp.AudioDepthMs() < 500 {
		t.Fatalf("expected at least 500ms buffered audio for seam audio readiness gate, got %dms", tp.AudioDepthMs())
	}
}

func TestTickProducerAppliesFadeInFirstFrameZeroAlpha(t *testing.T) {
	seg := blockplan.Segment{
		Index: 0, SegmentType: blockplan.SegmentContent, SegmentDurationMs: 2000,
		TransitionIn: &blockplan.Transition{Type: blockplan.TransitionFade, DurationMs: 500},
	}
	d := &fakeDecoder{totalFrames: 30}

	tp, err := NewTickProducer(seg, "seg-1", "/assets/fadein.mov", 320, 240, d, testConfig())
	if err != nil {
		t.Fatalf("NewTickProducer: %v", err)
	}
	defer tp.Stop()

	if err := tp.PrimeFirstFrame(); err != nil {
		t.Fatalf("PrimeFirstFrame: %v", err)
	}

	vf, _, ok := tp.TryGetFrame(0)
	if !ok {
		t.Fatalf("expected first frame available")
	}
	for _, b := range vf.Y {
		if b != 0x10 {
			t.Fatalf("first frame of fade-in must be fully attenuated to broadcast black, got byte %#x", b)
			break
		}
	}
}
