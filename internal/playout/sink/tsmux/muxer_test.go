package tsmux

import (
	"bytes"
	"testing"

	"github.com/alxayo/playout-engine/internal/playout/media"
	"github.com/alxayo/playout-engine/internal/playout/sink"
)

func TestMuxerRejectsNonKeyframeFirstPacket(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf, 48000, nil)
	if err := m.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	frame := media.VideoFrame{Width: 2, Height: 2, Y: []byte{1, 2, 3, 4}, IsKeyframe: false}
	if err := m.ConsumeVideo(frame); err == nil {
		t.Fatalf("expected error for non-keyframe first video packet")
	}
}

func TestMuxerAcceptsKeyframeFirstPacket(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf, 48000, nil)
	if err := m.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	frame := media.VideoFrame{Width: 2, Height: 2, Y: []byte{1, 2, 3, 4}, IsKeyframe: true, PtsUs: 0}
	if err := m.ConsumeVideo(frame); err != nil {
		t.Fatalf("ConsumeVideo: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected bytes written to the underlying writer")
	}
	if buf.Bytes()[0] != 0x47 {
		t.Fatalf("expected first byte to be the TS sync byte 0x47, got %#x", buf.Bytes()[0])
	}
}

func TestMuxerAudioPTSDerivedFromCumulativeSamples(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf, 48000, nil)
	if err := m.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	kf := media.VideoFrame{Width: 2, Height: 2, Y: []byte{1, 2, 3, 4}, IsKeyframe: true}
	if err := m.ConsumeVideo(kf); err != nil {
		t.Fatalf("ConsumeVideo: %v", err)
	}

	af1 := media.AudioFrame{SampleRate: 48000, Channels: 2, NumSamples: 1600, PCM: make([]byte, 1600*4)}
	if err := m.ConsumeAudio(af1); err != nil {
		t.Fatalf("ConsumeAudio: %v", err)
	}
	if m.cumulativeAudioSamples != 1600 {
		t.Fatalf("cumulativeAudioSamples = %d, want 1600", m.cumulativeAudioSamples)
	}

	af2 := media.AudioFrame{SampleRate: 48000, Channels: 2, NumSamples: 1600, PCM: make([]byte, 1600*4)}
	if err := m.ConsumeAudio(af2); err != nil {
		t.Fatalf("ConsumeAudio: %v", err)
	}
	if m.cumulativeAudioSamples != 3200 {
		t.Fatalf("cumulativeAudioSamples = %d, want 3200", m.cumulativeAudioSamples)
	}
}

func TestMuxerStatusTransitions(t *testing.T) {
	var seen []sink.Status
	var buf bytes.Buffer
	m := New(&buf, 48000, func(s sink.Status) { seen = append(seen, s) })

	if err := m.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []sink.Status{sink.StatusStarting, sink.StatusRunning, sink.StatusStopping, sink.StatusStopped}
	if len(seen) != len(want) {
		t.Fatalf("status transitions = %v, want %v", seen, want)
	}
	for i, s := range want {
		if seen[i] != s {
			t.Fatalf("status[%d] = %v, want %v", i, seen[i], s)
		}
	}
}
