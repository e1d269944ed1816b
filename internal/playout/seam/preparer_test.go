package seam

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alxayo/playout-engine/internal/playout/blockplan"
	"github.com/alxayo/playout-engine/internal/playout/media"
	"github.com/alxayo/playout-engine/internal/playout/producer"
	"github.com/alxayo/playout-engine/internal/playout/rationalfps"
)

type stubDecoder struct {
	totalFrames int
	emitted     int
}

func (d *stubDecoder) Open(path string, width, height int, startOffsetMs int64) error { return nil }

func (d *stubDecoder) DecodeVideoFrame() (media.VideoFrame, error) {
	if d.emitted >= d.totalFrames {
		return media.VideoFrame{}, io.EOF
	}
	d.emitted++
	return media.VideoFrame{Width: 16, Height: 16, Y: make([]byte, 256), U: make([]byte, 64), V: make([]byte, 64)}, nil
}

func (d *stubDecoder) DecodeAudioSamples(n int) (media.AudioFrame, error) {
	return media.AudioFrame{SampleRate: 48000, Channels: 2, NumSamples: n, PCM: make([]byte, n*4)}, nil
}

func (d *stubDecoder) Close() error { return nil }

func testCfg() producer.Config {
	return producer.Config{
		VideoHighWaterFrames: 8, VideoLowWaterFrames: 4,
		AudioHighWaterMs: 2000, SampleRate: 48000, Channels: 2,
		SourceFPS: rationalfps.Standard30,
	}
}

func okResolver(uri string) (string, error) { return "/resolved/" + uri, nil }

func TestPreparerStartPreloadBecomesReady(t *testing.T) {
	p := New(okResolver, func(blockplan.Segment) producer.Decoder { return &stubDecoder{totalFrames: 60} }, 16, 16, testCfg())
	seg := blockplan.Segment{Index: 0, SegmentType: blockplan.SegmentContent, AssetURI: "clip.mov", SegmentDurationMs: 2000}

	p.StartPreload(seg, "seg-1")

	deadline := time.Now().Add(time.Second)
	for !p.IsReady() && !p.HasFailed() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !p.IsReady() {
		t.Fatalf("expected preloader to become ready, failed=%v err=%v", p.HasFailed(), p.Err())
	}

	tp, ok := p.TakeProducer()
	if !ok || tp == nil {
		t.Fatalf("expected TakeProducer to return a producer")
	}
	defer tp.Stop()
	if tp.OriginSegmentID() != "seg-1" {
		t.Fatalf("OriginSegmentID = %q, want seg-1", tp.OriginSegmentID())
	}
}

func TestPreparerSkipsPadSegments(t *testing.T) {
	p := New(okResolver, func(blockplan.Segment) producer.Decoder { return &stubDecoder{totalFrames: 60} }, 16, 16, testCfg())
	pad := blockplan.PadSegment(0, 1000)

	p.StartPreload(pad, "pad-1")

	time.Sleep(20 * time.Millisecond)
	if p.IsReady() || p.HasFailed() {
		t.Fatalf("expected no preload work for pad segments")
	}
}

func TestPreparerCancelDuringPreloadIsIdempotent(t *testing.T) {
	p := New(okResolver, func(blockplan.Segment) producer.Decoder { return &stubDecoder{totalFrames: 60} }, 16, 16, testCfg())
	seg := blockplan.Segment{Index: 0, SegmentType: blockplan.SegmentContent, AssetURI: "clip.mov", SegmentDurationMs: 2000}

	p.StartPreload(seg, "seg-1")
	p.Cancel()
	p.Cancel() // must not panic or block

	if p.IsReady() {
		t.Fatalf("cancelled preload must not surface as ready")
	}
}

func TestPreparerCancelAfterReadyStopsUntakenProducer(t *testing.T) {
	p := New(okResolver, func(blockplan.Segment) producer.Decoder { return &stubDecoder{totalFrames: 60} }, 16, 16, testCfg())
	seg := blockplan.Segment{Index: 0, SegmentType: blockplan.SegmentContent, AssetURI: "clip.mov", SegmentDurationMs: 2000}

	p.StartPreload(seg, "seg-1")
	deadline := time.Now().Add(time.Second)
	for !p.IsReady() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !p.IsReady() {
		t.Fatalf("expected preload to become ready")
	}

	p.Cancel()
	if _, ok := p.TakeProducer(); ok {
		t.Fatalf("expected no producer to be takeable after cancel")
	}
}

func TestPreparerFailurePropagatesResolveError(t *testing.T) {
	boom := errors.New("resolve failed")
	p := New(func(string) (string, error) { return "", boom },
		func(blockplan.Segment) producer.Decoder { return &stubDecoder{totalFrames: 10} }, 16, 16, testCfg())
	seg := blockplan.Segment{Index: 0, SegmentType: blockplan.SegmentContent, AssetURI: "clip.mov", SegmentDurationMs: 2000}

	p.StartPreload(seg, "seg-1")

	deadline := time.Now().Add(time.Second)
	for !p.HasFailed() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !p.HasFailed() {
		t.Fatalf("expected HasFailed after resolver error")
	}
	if !errors.Is(p.Err(), boom) {
		t.Fatalf("Err() = %v, want %v", p.Err(), boom)
	}
}

func TestPreparerRestartsAfterTake(t *testing.T) {
	p := New(okResolver, func(blockplan.Segment) producer.Decoder { return &stubDecoder{totalFrames: 60} }, 16, 16, testCfg())
	seg1 := blockplan.Segment{Index: 0, SegmentType: blockplan.SegmentContent, AssetURI: "a.mov", SegmentDurationMs: 2000}
	seg2 := blockplan.Segment{Index: 1, SegmentType: blockplan.SegmentContent, AssetURI: "b.mov", SegmentDurationMs: 2000}

	p.StartPreload(seg1, "seg-1")
	waitReady(t, p)
	tp1, ok := p.TakeProducer()
	if !ok {
		t.Fatalf("expected first take to succeed")
	}
	defer tp1.Stop()

	p.StartPreload(seg2, "seg-2")
	waitReady(t, p)
	tp2, ok := p.TakeProducer()
	if !ok {
		t.Fatalf("expected second take to succeed after preparer reset to idle")
	}
	defer tp2.Stop()

	if tp2.OriginSegmentID() != "seg-2" {
		t.Fatalf("OriginSegmentID = %q, want seg-2", tp2.OriginSegmentID())
	}
}

func waitReady(t *testing.T, p *Preparer) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !p.IsReady() && !p.HasFailed() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !p.IsReady() {
		t.Fatalf("expected ready, failed=%v err=%v", p.HasFailed(), p.Err())
	}
}
