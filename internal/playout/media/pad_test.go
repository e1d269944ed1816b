package media

import "testing"

func TestNewPadProducerBroadcastBlack(t *testing.T) {
	p := NewPadProducer(640, 480, 48000, 2)
	vf := p.VideoFrame(0, "seg-0")
	for i, v := range vf.Y {
		if v != broadcastBlackY {
			t.Fatalf("Y[%d] = %d, want broadcast black %d", i, v, broadcastBlackY)
		}
	}
	for i, v := range vf.U {
		if v != neutralChroma {
			t.Fatalf("U[%d] = %d, want neutral %d", i, v, neutralChroma)
		}
	}
	if !vf.IsKeyframe {
		t.Fatalf("pad frames must be keyframes")
	}
}

func TestPadProducerAudioFrameSilence(t *testing.T) {
	p := NewPadProducer(640, 480, 48000, 2)
	af := p.AudioFrame(1601, 0, "seg-0") // 48000*1001/30000 samples per 29.97fps tick, truncated
	if af.NumSamples != 1601 {
		t.Fatalf("NumSamples = %d, want 1601", af.NumSamples)
	}
	for _, b := range af.PCM {
		if b != 0 {
			t.Fatalf("expected silence, found non-zero byte")
		}
	}
}

func TestPadProducerAudioFrameClampsToWorstCase(t *testing.T) {
	p := NewPadProducer(640, 480, 48000, 2)
	af := p.AudioFrame(100000, 0, "seg-0")
	if af.NumSamples > worstCaseSamplesPerFrame {
		t.Fatalf("NumSamples %d exceeds worst-case buffer %d", af.NumSamples, worstCaseSamplesPerFrame)
	}
}

func TestPadProducerFingerprintDeterministic(t *testing.T) {
	p1 := NewPadProducer(640, 480, 48000, 2)
	p2 := NewPadProducer(640, 480, 48000, 2)
	if p1.YFingerprint() != p2.YFingerprint() {
		t.Fatalf("expected identical pad templates to produce identical fingerprints")
	}
}

func TestPadSentinelAssetURI(t *testing.T) {
	if PadSentinelAssetURI() != "internal://pad" {
		t.Fatalf("unexpected sentinel asset URI: %s", PadSentinelAssetURI())
	}
}
