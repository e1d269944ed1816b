package main

import (
	"errors"
	"io"

	"github.com/alxayo/playout-engine/internal/playout/blockplan"
	"github.com/alxayo/playout-engine/internal/playout/media"
	"github.com/alxayo/playout-engine/internal/playout/producer"
)

// errNoDecoderWired is returned by the placeholder decoder shipped in
// this binary. The media decoder is an external collaborator per
// spec.md §1/§6 ("give me frames at offset T" producer) — this repo
// specifies the producer.Decoder seam a real decoder plugs into, but
// does not implement one. Every segment falls back to pad until a real
// DecoderFactory is wired in place of newPlaceholderDecoderFactory below.
var errNoDecoderWired = errors.New("playout-engine: no decoder wired for this build; see producer.Decoder")

// placeholderDecoder satisfies producer.Decoder so the engine can run
// end-to-end in PADDED_GAP/pad-only mode without a real media backend.
type placeholderDecoder struct{}

func (placeholderDecoder) Open(path string, width, height int, startOffsetMs int64) error {
	return errNoDecoderWired
}

func (placeholderDecoder) DecodeVideoFrame() (media.VideoFrame, error) {
	return media.VideoFrame{}, io.EOF
}

func (placeholderDecoder) DecodeAudioSamples(n int) (media.AudioFrame, error) {
	return media.AudioFrame{}, io.EOF
}

func (placeholderDecoder) Close() error { return nil }

// newPlaceholderDecoderFactory returns a seam.DecoderFactory-shaped
// closure that always yields the placeholder.
// A deployment with a real decoder swaps this for one that dispatches on
// segment.AssetURI's scheme/extension to a concrete producer.Decoder.
func newPlaceholderDecoderFactory() func(blockplan.Segment) producer.Decoder {
	return func(blockplan.Segment) producer.Decoder { return placeholderDecoder{} }
}
