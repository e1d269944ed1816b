// Package producer implements TickProducer: the owner of exactly one
// decoder for one segment, its fill thread, and its lookahead buffers.
package producer

import (
	"io"

	"github.com/alxayo/playout-engine/internal/playout/media"
)

// Decoder is the engine's external collaborator for turning a resolved
// asset path into decoded frames. Decoding itself is explicitly out of
// this engine's scope (see Non-goals); this interface is the seam a real
// decoder implementation plugs into. Callers must not call any method
// after Close.
type Decoder interface {
	// Open prepares the decoder for the asset at path, scaled to
	// width/height, and seeks to startOffsetMs.
	Open(path string, width, height int, startOffsetMs int64) error

	// DecodeVideoFrame returns the next video frame at the decoder's
	// native cadence, or io.EOF when the asset is exhausted.
	DecodeVideoFrame() (media.VideoFrame, error)

	// DecodeAudioSamples returns exactly n house-format samples, or
	// io.EOF when the asset's audio is exhausted.
	DecodeAudioSamples(n int) (media.AudioFrame, error)

	Close() error
}

// ErrExhausted is a sentinel alias of io.EOF kept local so producer code
// reads intention-first; decoders may return io.EOF directly.
var ErrExhausted = io.EOF
